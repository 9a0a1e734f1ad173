package server

import (
	"context"
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/rules"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/services/iam"
)

// iamAdminService lists the IAM methods the HTTP handlers use.
type iamAdminService interface {
	ResolveEffectivePermissions(ctx context.Context, userID string) ([]iam.EffectivePermission, error)
	HasPermission(ctx context.Context, userID, code string) (bool, error)

	Login(ctx context.Context, identity rules.Identity) (*iam.LoginResult, error)
	ResyncProvisioning(ctx context.Context, userID string) (*iam.ProvisioningResult, error)

	CreatePermission(ctx context.Context, in iam.CreatePermissionInput) (*models.Permission, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	PermissionCategories(ctx context.Context) ([]string, error)
	DeletePermission(ctx context.Context, id string) error

	CreateGroup(ctx context.Context, in iam.CreateGroupInput) (*models.Group, error)
	UpdateGroup(ctx context.Context, id string, patch iam.GroupPatch) (*models.Group, error)
	DeleteGroup(ctx context.Context, id string) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)

	AddGroupMember(ctx context.Context, groupID, userID, addedBy string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
	ReplaceUserGroups(ctx context.Context, userID string, groupIDs []string, addedBy string) error

	GrantGroupPermission(ctx context.Context, groupID, code, grantedBy string) error
	RevokeGroupPermission(ctx context.Context, groupID, code string) error
	ListGroupPermissions(ctx context.Context, groupID string) ([]models.GroupPermission, error)

	GrantUserPermission(ctx context.Context, userID, code, grantedBy string, expiresAt *time.Time) error
	DenyUserPermission(ctx context.Context, userID, code, grantedBy string) error
	RevokeUserPermission(ctx context.Context, userID, code string) error
	ListDirectPermissions(ctx context.Context, userID string) ([]models.UserPermission, error)

	GetUser(ctx context.Context, id string) (*models.User, error)
	LookupUser(ctx context.Context, ref string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Compile-time assertion: iam.Service must implement iamAdminService.
var _ iamAdminService = (iam.Service)(nil)
