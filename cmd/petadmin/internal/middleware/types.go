package middleware

import (
	"context"
	"log/slog"

	"github.com/casbin/casbin/v2"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
)

// UserLookup resolves the reference carried by the trusted header (an id or
// an email) to a user.
type UserLookup interface {
	LookupUser(ctx context.Context, ref string) (*models.User, error)
}

// PermissionChecker answers fine-grained checks against a user's effective
// permission set.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, code string) (bool, error)
}

// AuthnDependencies bundles collaborators required by the authentication middleware.
type AuthnDependencies struct {
	Users UserLookup
	// TrustedHeader names the header set by the fronting proxy.
	TrustedHeader string
	Logger        *slog.Logger
}

// AuthzDependencies provides the collaborators needed for authorization decisions.
type AuthzDependencies struct {
	Enforcer casbin.IEnforcer
	Logger   *slog.Logger
}
