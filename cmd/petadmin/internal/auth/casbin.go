package auth

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
)

//go:embed casbin/model.conf
var casbinModelContent string

//go:embed casbin/policy.csv
var casbinPolicyContent string

// RoleSubject returns the Casbin subject for an application role.
func RoleSubject(role string) string {
	return "role:" + role
}

// InitEnforcer creates a Casbin enforcer with the embedded model and route
// policies. The role hierarchy is admin > staff > user; paths use keyMatch2
// and methods regexMatch.
//
// The enforcer is the coarse route gate only. Fine-grained checks run
// against the caller's effective permission set.
func InitEnforcer() (casbin.IEnforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	adapter := stringadapter.NewAdapter(strings.TrimSpace(casbinPolicyContent))
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	return enforcer, nil
}

// AllowRoute reports whether role may call method on path.
func AllowRoute(enforcer casbin.IEnforcer, role, path, method string) (bool, error) {
	ok, err := enforcer.Enforce(RoleSubject(role), path, method)
	if err != nil {
		return false, fmt.Errorf("enforce %s %s for %s: %w", method, path, role, err)
	}
	return ok, nil
}
