package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Application roles. Provisioning rules may name any role, these are the ones
// the route gate knows about.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleUser  = "user"
)

// User represents a human principal.
// Subject and Provider carry the upstream identity when the user signed in
// through a federated identity provider.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          string     `bun:"id,pk"`
	Email       string     `bun:"email,notnull,unique"`
	Name        string     `bun:"name"`
	Subject     *string    `bun:"subject"`  // upstream provider ID (e.g. "google-oauth2|123")
	Provider    *string    `bun:"provider"` // provider name (e.g. "google")
	Role        string     `bun:"role,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	LastLoginAt *time.Time `bun:"last_login_at"`
	DisabledAt  *time.Time `bun:"disabled_at"`
}

// IsDisabled reports whether the account has been disabled by an administrator.
func (u *User) IsDisabled() bool {
	return u != nil && u.DisabledAt != nil
}

// Permission is an entry in the permission catalog. Code is immutable once created.
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	ID          string    `bun:"id,pk"`
	Code        string    `bun:"code,notnull,unique"`
	Name        string    `bun:"name,notnull"`
	Category    string    `bun:"category,notnull"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// UserPermission is a direct grant attached to a user.
// Granted=false is an explicit deny, which is different from having no row.
type UserPermission struct {
	bun.BaseModel `bun:"table:user_permissions,alias:up"`

	UserID       string     `bun:"user_id,pk"`
	PermissionID string     `bun:"permission_id,pk"`
	Granted      bool       `bun:"granted,notnull"`
	GrantedBy    string     `bun:"granted_by,notnull"`
	GrantedAt    time.Time  `bun:"granted_at,notnull,default:current_timestamp"`
	ExpiresAt    *time.Time `bun:"expires_at"`

	Permission *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}

// IsExpired reports whether the grant has an expiry at or before now.
func (up *UserPermission) IsExpired(now time.Time) bool {
	return up.ExpiresAt != nil && !up.ExpiresAt.After(now)
}

// Group is a named collection of users that inherits the group's permissions.
type Group struct {
	bun.BaseModel `bun:"table:groups,alias:g"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"name,notnull,unique"`
	Description string    `bun:"description"`
	Color       string    `bun:"color,notnull"`
	IsActive    bool      `bun:"is_active,notnull"`
	CreatedBy   string    `bun:"created_by,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`

	// Populated by list queries only.
	MemberCount     int `bun:"member_count,scanonly"`
	PermissionCount int `bun:"permission_count,scanonly"`
}

// GroupMember associates a user with a group.
type GroupMember struct {
	bun.BaseModel `bun:"table:group_members,alias:gm"`

	UserID  string    `bun:"user_id,pk"`
	GroupID string    `bun:"group_id,pk"`
	AddedBy string    `bun:"added_by,notnull"`
	AddedAt time.Time `bun:"added_at,notnull,default:current_timestamp"`

	User  *User  `bun:"rel:belongs-to,join:user_id=id"`
	Group *Group `bun:"rel:belongs-to,join:group_id=id"`
}

// GroupPermission grants a permission to every active member of a group.
// There is no deny at group level.
type GroupPermission struct {
	bun.BaseModel `bun:"table:group_permissions,alias:gp"`

	GroupID      string    `bun:"group_id,pk"`
	PermissionID string    `bun:"permission_id,pk"`
	GrantedBy    string    `bun:"granted_by,notnull"`
	GrantedAt    time.Time `bun:"granted_at,notnull,default:current_timestamp"`

	Group      *Group      `bun:"rel:belongs-to,join:group_id=id"`
	Permission *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}
