package server

import (
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/services/iam"
)

// UserResponse represents user data in API responses
type UserResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Provider    string     `json:"provider,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	Disabled    bool       `json:"disabled"`
}

func toUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		LastLoginAt: u.LastLoginAt,
		Disabled:    u.IsDisabled(),
	}
	if u.Provider != nil {
		resp.Provider = *u.Provider
	}
	return resp
}

// PermissionResponse is a catalog entry.
type PermissionResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

func toPermissionResponse(p *models.Permission) PermissionResponse {
	return PermissionResponse{
		ID:          p.ID,
		Code:        p.Code,
		Name:        p.Name,
		Category:    p.Category,
		Description: p.Description,
	}
}

// GroupResponse is a group with its list-query counts.
type GroupResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Color           string    `json:"color"`
	IsActive        bool      `json:"is_active"`
	MemberCount     int       `json:"member_count"`
	PermissionCount int       `json:"permission_count"`
	CreatedAt       time.Time `json:"created_at"`
}

func toGroupResponse(g *models.Group) GroupResponse {
	return GroupResponse{
		ID:              g.ID,
		Name:            g.Name,
		Description:     g.Description,
		Color:           g.Color,
		IsActive:        g.IsActive,
		MemberCount:     g.MemberCount,
		PermissionCount: g.PermissionCount,
		CreatedAt:       g.CreatedAt,
	}
}

// MemberResponse is one group membership.
type MemberResponse struct {
	UserID  string    `json:"user_id"`
	Email   string    `json:"email,omitempty"`
	GroupID string    `json:"group_id"`
	AddedBy string    `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}

func toMemberResponse(m models.GroupMember) MemberResponse {
	resp := MemberResponse{
		UserID:  m.UserID,
		GroupID: m.GroupID,
		AddedBy: m.AddedBy,
		AddedAt: m.AddedAt,
	}
	if m.User != nil {
		resp.Email = m.User.Email
	}
	return resp
}

// GrantResponse is a direct or group grant of a catalog entry.
type GrantResponse struct {
	Code      string     `json:"code"`
	Granted   bool       `json:"granted"`
	GrantedBy string     `json:"granted_by"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func directGrantResponses(rows []models.UserPermission) []GrantResponse {
	out := make([]GrantResponse, 0, len(rows))
	for _, row := range rows {
		g := GrantResponse{
			Granted:   row.Granted,
			GrantedBy: row.GrantedBy,
			GrantedAt: row.GrantedAt,
			ExpiresAt: row.ExpiresAt,
		}
		if row.Permission != nil {
			g.Code = row.Permission.Code
		}
		out = append(out, g)
	}
	return out
}

func groupGrantResponses(rows []models.GroupPermission) []GrantResponse {
	out := make([]GrantResponse, 0, len(rows))
	for _, row := range rows {
		g := GrantResponse{
			Granted:   true,
			GrantedBy: row.GrantedBy,
			GrantedAt: row.GrantedAt,
		}
		if row.Permission != nil {
			g.Code = row.Permission.Code
		}
		out = append(out, g)
	}
	return out
}

// EffectivePermissionsResponse is the resolved permission set of one user.
type EffectivePermissionsResponse struct {
	UserID      string                    `json:"user_id"`
	Permissions []iam.EffectivePermission `json:"permissions"`
}

// LoginResponse is returned by the SSO callback.
type LoginResponse struct {
	User         UserResponse            `json:"user"`
	Created      bool                    `json:"created"`
	Provisioning *iam.ProvisioningResult `json:"provisioning,omitempty"`
	// Warning is set when provisioning failed; the login itself succeeded.
	Warning string `json:"warning,omitempty"`
	// RedirectURI is the redirect_uri passed to the login endpoint, if any.
	RedirectURI string `json:"redirect_uri,omitempty"`
}
