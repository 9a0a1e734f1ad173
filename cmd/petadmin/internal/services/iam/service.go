package iam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/repository"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/rules"
)

// ErrUserDisabled is returned by Login for a user whose account is disabled.
var ErrUserDisabled = errors.New("user is disabled")

// Service provides all authorization resolution, provisioning and IAM admin
// operations.
type Service interface {
	// =========================================================================
	// Resolution (Request Path - Read-Only)
	// =========================================================================

	// ResolveEffectivePermissions computes the user's effective permission set.
	//
	// The set is directAllow ∪ (groupAllow \ directDeny), where:
	//   - expired direct rows are ignored entirely
	//   - only active groups contribute
	//   - a permission held through several groups reports the group with the
	//     lowest id
	//
	// Entries are ordered by category, then name. Returns iamerr.ErrNotFound
	// for an unknown user.
	ResolveEffectivePermissions(ctx context.Context, userID string) ([]EffectivePermission, error)

	// HasPermission reports whether code is in the user's effective set.
	HasPermission(ctx context.Context, userID, code string) (bool, error)

	// =========================================================================
	// Provisioning (Login Path)
	// =========================================================================

	// Login finds or creates the user for identity and then provisions it.
	//
	// Finding or creating the user commits on its own. A provisioning failure
	// does not fail the login: it is returned in LoginResult.ProvisioningErr
	// as *iamerr.ProvisioningError and the user keeps the state committed
	// before the attempt.
	//
	// Returns:
	//   - ValidationError if the identity has no usable email
	//   - ErrUserDisabled if the account is disabled
	Login(ctx context.Context, identity rules.Identity) (*LoginResult, error)

	// ProvisionFromIdentity finds or creates the user, then applies the
	// matching rule. The user row commits on its own; the rule is applied in
	// a second transaction, so a failed apply leaves a user with its prior
	// grants. Any failure is *iamerr.ProvisioningError.
	ProvisionFromIdentity(ctx context.Context, identity rules.Identity) (*ProvisioningResult, error)

	// ResyncProvisioning re-applies the matching rule to an existing user,
	// replacing direct grants and memberships. Manual grants and memberships
	// are discarded. Unknown user is iamerr.ErrNotFound; any failure after
	// that is *iamerr.ProvisioningError.
	ResyncProvisioning(ctx context.Context, userID string) (*ProvisioningResult, error)

	// Rules returns the rule table the service provisions from.
	Rules() *rules.Table

	// =========================================================================
	// Permission Catalog (Admin Operations)
	// =========================================================================

	CreatePermission(ctx context.Context, in CreatePermissionInput) (*models.Permission, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	ListPermissionsByCategory(ctx context.Context) (map[string][]models.Permission, error)
	PermissionCategories(ctx context.Context) ([]string, error)
	// GetPermissionByCode is served from an LRU cache of catalog entries.
	GetPermissionByCode(ctx context.Context, code string) (*models.Permission, error)
	// DeletePermission removes the entry and every grant of it.
	DeletePermission(ctx context.Context, id string) error

	// =========================================================================
	// Groups, Memberships and Group Grants (Admin Operations)
	// =========================================================================

	CreateGroup(ctx context.Context, in CreateGroupInput) (*models.Group, error)
	UpdateGroup(ctx context.Context, id string, patch GroupPatch) (*models.Group, error)
	DeleteGroup(ctx context.Context, id string) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)

	AddGroupMember(ctx context.Context, groupID, userID, addedBy string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
	ListUserGroups(ctx context.Context, userID string) ([]models.GroupMember, error)
	// ReplaceUserGroups swaps the user's memberships for groupIDs atomically.
	// An unknown group id fails the whole call with iamerr.ErrNotFound.
	ReplaceUserGroups(ctx context.Context, userID string, groupIDs []string, addedBy string) error

	GrantGroupPermission(ctx context.Context, groupID, code, grantedBy string) error
	RevokeGroupPermission(ctx context.Context, groupID, code string) error
	ListGroupPermissions(ctx context.Context, groupID string) ([]models.GroupPermission, error)

	// =========================================================================
	// Direct Grants (Admin Operations)
	// =========================================================================

	// GrantUserPermission upserts an allow row. expiresAt, when set, must be
	// in the future.
	GrantUserPermission(ctx context.Context, userID, code, grantedBy string, expiresAt *time.Time) error
	// DenyUserPermission upserts an explicit deny, which overrides any group grant.
	DenyUserPermission(ctx context.Context, userID, code, grantedBy string) error
	RevokeUserPermission(ctx context.Context, userID, code string) error
	ListDirectPermissions(ctx context.Context, userID string) ([]models.UserPermission, error)

	// =========================================================================
	// Users
	// =========================================================================

	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// LookupUser accepts a user id or an email.
	LookupUser(ctx context.Context, ref string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// iamService implements the Service interface.
type iamService struct {
	stores   repository.Stores
	tx       repository.Transactor
	rules    *rules.Table
	catalog  *catalogCache
	logger   *slog.Logger
	now      func() time.Time
	provider string
}

// IAMServiceDependencies contains all dependencies for IAM service construction.
type IAMServiceDependencies struct {
	// Stores are bound to the connection pool and serve reads.
	Stores repository.Stores
	// Transactor runs every write path.
	Transactor repository.Transactor
	Rules      *rules.Table
	Logger     *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// IAMServiceConfig contains configuration for IAM service construction.
type IAMServiceConfig struct {
	// CatalogCacheSize bounds the permission-by-code cache. Defaults to 256.
	CatalogCacheSize int
	// DefaultProvider is recorded on users created from identities that name
	// no provider.
	DefaultProvider string
}

// NewIAMService creates a new IAM service with all dependencies.
func NewIAMService(deps IAMServiceDependencies, cfg IAMServiceConfig) (Service, error) {
	if deps.Transactor == nil {
		return nil, fmt.Errorf("iam: transactor is required")
	}
	if deps.Rules == nil {
		return nil, fmt.Errorf("iam: rule table is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.CatalogCacheSize <= 0 {
		cfg.CatalogCacheSize = 256
	}

	catalog, err := newCatalogCache(deps.Stores.Permissions, cfg.CatalogCacheSize)
	if err != nil {
		return nil, fmt.Errorf("initialize permission cache: %w", err)
	}

	return &iamService{
		stores:   deps.Stores,
		tx:       deps.Transactor,
		rules:    deps.Rules,
		catalog:  catalog,
		logger:   deps.Logger,
		now:      deps.Clock,
		provider: cfg.DefaultProvider,
	}, nil
}

func (s *iamService) Rules() *rules.Table { return s.rules }
