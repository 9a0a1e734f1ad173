package repository

import (
	"context"
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
)

// UserRepository exposes persistence operations for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetBySubject(ctx context.Context, provider, subject string) (*models.User, error)
	// LockForUpdate loads the user and, where the database supports it, holds a
	// row lock until the surrounding transaction ends. Every per-user write path
	// calls this first so concurrent writers for one user serialize.
	LockForUpdate(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id, role string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context) ([]models.User, error)
}

// PermissionRepository exposes the permission catalog.
type PermissionRepository interface {
	Create(ctx context.Context, permission *models.Permission) error
	GetByID(ctx context.Context, id string) (*models.Permission, error)
	GetByCode(ctx context.Context, code string) (*models.Permission, error)
	// GetByCodes returns the catalog entries for the codes that exist.
	// Unknown codes are silently absent from the result.
	GetByCodes(ctx context.Context, codes []string) ([]models.Permission, error)
	// List returns the catalog ordered by category, then name.
	List(ctx context.Context) ([]models.Permission, error)
	Categories(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// DirectGrantRepository stores per-user grant and deny rows.
type DirectGrantRepository interface {
	// Grant upserts an allow row, refreshing granted_at and replacing expires_at.
	Grant(ctx context.Context, userID, permissionID, grantedBy string, expiresAt *time.Time) error
	// Deny upserts an explicit deny row.
	Deny(ctx context.Context, userID, permissionID, grantedBy string) error
	// Revoke deletes the row; ErrNotFound if there is none.
	Revoke(ctx context.Context, userID, permissionID string) error
	// ListForUser returns every row for the user, expired ones included, with
	// the permission attached.
	ListForUser(ctx context.Context, userID string) ([]models.UserPermission, error)
	// ReplaceForUser deletes all rows for the user and inserts grants atomically.
	ReplaceForUser(ctx context.Context, userID string, grants []models.UserPermission) error
}

// GroupRepository exposes persistence operations for groups.
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	// InsertOrGet inserts group unless a group with the same name exists, and
	// returns the stored row. created is false when another writer got there first.
	InsertOrGet(ctx context.Context, group *models.Group) (stored *models.Group, created bool, err error)
	GetByID(ctx context.Context, id string) (*models.Group, error)
	GetByName(ctx context.Context, name string) (*models.Group, error)
	GetByNames(ctx context.Context, names []string) ([]models.Group, error)
	Update(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, id string) error
	// List returns all groups ordered by name with member and permission counts.
	List(ctx context.Context) ([]models.Group, error)
	Count(ctx context.Context) (int, error)
}

// MembershipRepository stores user to group associations.
type MembershipRepository interface {
	Add(ctx context.Context, member *models.GroupMember) error
	Remove(ctx context.Context, userID, groupID string) error
	// ListForUser returns the user's memberships with the group attached.
	ListForUser(ctx context.Context, userID string) ([]models.GroupMember, error)
	// ListForGroup returns the group's memberships with the user attached.
	ListForGroup(ctx context.Context, groupID string) ([]models.GroupMember, error)
	// ReplaceForUser swaps the user's memberships for groupIDs in one transaction.
	ReplaceForUser(ctx context.Context, userID string, groupIDs []string, addedBy string) error
}

// GroupGrantRepository stores group to permission grants.
type GroupGrantRepository interface {
	Grant(ctx context.Context, grant *models.GroupPermission) error
	Revoke(ctx context.Context, groupID, permissionID string) error
	ListForGroup(ctx context.Context, groupID string) ([]models.GroupPermission, error)
	// ListForGroups returns grants for any of groupIDs with the permission attached.
	ListForGroups(ctx context.Context, groupIDs []string) ([]models.GroupPermission, error)
}
