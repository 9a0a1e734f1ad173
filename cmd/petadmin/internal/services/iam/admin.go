package iam

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/repository"
)

var (
	permissionCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)
	colorPattern          = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

const maxGroupNameLength = 100

// CreatePermissionInput describes a new catalog entry.
type CreatePermissionInput struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// CreateGroupInput describes a new group. An empty Color picks the next
// palette color.
type CreateGroupInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// GroupPatch holds the group fields to change; nil fields are left alone.
type GroupPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// =============================================================================
// Permission Catalog
// =============================================================================

func (s *iamService) CreatePermission(ctx context.Context, in CreatePermissionInput) (*models.Permission, error) {
	code := strings.TrimSpace(in.Code)
	switch {
	case code == "":
		return nil, iamerr.Invalid("code", "must not be empty")
	case !permissionCodePattern.MatchString(code):
		return nil, iamerr.Invalid("code", "%q must look like resource.action", code)
	case strings.TrimSpace(in.Name) == "":
		return nil, iamerr.Invalid("name", "must not be empty")
	case strings.TrimSpace(in.Category) == "":
		return nil, iamerr.Invalid("category", "must not be empty")
	}

	p := &models.Permission{
		Code:        code,
		Name:        strings.TrimSpace(in.Name),
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.stores.Permissions.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *iamService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	return s.stores.Permissions.List(ctx)
}

func (s *iamService) ListPermissionsByCategory(ctx context.Context) (map[string][]models.Permission, error) {
	perms, err := s.stores.Permissions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]models.Permission)
	for _, p := range perms {
		out[p.Category] = append(out[p.Category], p)
	}
	return out, nil
}

func (s *iamService) PermissionCategories(ctx context.Context) ([]string, error) {
	return s.stores.Permissions.Categories(ctx)
}

func (s *iamService) GetPermissionByCode(ctx context.Context, code string) (*models.Permission, error) {
	return s.catalog.get(ctx, code)
}

func (s *iamService) DeletePermission(ctx context.Context, id string) error {
	if err := s.stores.Permissions.Delete(ctx, id); err != nil {
		return err
	}
	s.catalog.purge()
	return nil
}

// =============================================================================
// Groups
// =============================================================================

func validateGroupName(name string) error {
	switch {
	case name == "":
		return iamerr.Invalid("name", "must not be empty")
	case len(name) > maxGroupNameLength:
		return iamerr.Invalid("name", "must be at most %d characters", maxGroupNameLength)
	}
	return nil
}

func validateColor(color string) error {
	if !colorPattern.MatchString(color) {
		return iamerr.Invalid("color", "%q is not a #RRGGBB color", color)
	}
	return nil
}

func (s *iamService) CreateGroup(ctx context.Context, in CreateGroupInput) (*models.Group, error) {
	name := strings.TrimSpace(in.Name)
	if err := validateGroupName(name); err != nil {
		return nil, err
	}

	color := strings.TrimSpace(in.Color)
	if color == "" {
		n, err := s.stores.Groups.Count(ctx)
		if err != nil {
			return nil, err
		}
		color = PaletteColor(n)
	} else if err := validateColor(color); err != nil {
		return nil, err
	}

	g := &models.Group{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Color:       color,
		IsActive:    true,
		CreatedBy:   auth.ActorID(ctx),
	}
	if err := s.stores.Groups.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *iamService) UpdateGroup(ctx context.Context, id string, patch GroupPatch) (*models.Group, error) {
	g, err := s.stores.Groups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if err := validateGroupName(name); err != nil {
			return nil, err
		}
		g.Name = name
	}
	if patch.Description != nil {
		g.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Color != nil {
		color := strings.TrimSpace(*patch.Color)
		if err := validateColor(color); err != nil {
			return nil, err
		}
		g.Color = color
	}
	if patch.IsActive != nil {
		g.IsActive = *patch.IsActive
	}

	if err := s.stores.Groups.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *iamService) DeleteGroup(ctx context.Context, id string) error {
	return s.stores.Groups.Delete(ctx, id)
}

func (s *iamService) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	return s.stores.Groups.GetByID(ctx, id)
}

func (s *iamService) ListGroups(ctx context.Context) ([]models.Group, error) {
	return s.stores.Groups.List(ctx)
}

// =============================================================================
// Memberships
// =============================================================================

func (s *iamService) AddGroupMember(ctx context.Context, groupID, userID, addedBy string) error {
	return s.tx.InTx(ctx, func(ctx context.Context, st repository.Stores) error {
		if _, err := st.Users.LockForUpdate(ctx, userID); err != nil {
			return err
		}
		if _, err := st.Groups.GetByID(ctx, groupID); err != nil {
			return err
		}
		return st.Memberships.Add(ctx, &models.GroupMember{
			UserID:  userID,
			GroupID: groupID,
			AddedBy: addedBy,
		})
	})
}

func (s *iamService) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	return s.tx.InTx(ctx, func(ctx context.Context, st repository.Stores) error {
		if _, err := st.Users.LockForUpdate(ctx, userID); err != nil {
			return err
		}
		return st.Memberships.Remove(ctx, userID, groupID)
	})
}

func (s *iamService) ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	if _, err := s.stores.Groups.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	return s.stores.Memberships.ListForGroup(ctx, groupID)
}

func (s *iamService) ListUserGroups(ctx context.Context, userID string) ([]models.GroupMember, error) {
	if _, err := s.stores.Users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.stores.Memberships.ListForUser(ctx, userID)
}

func (s *iamService) ReplaceUserGroups(ctx context.Context, userID string, groupIDs []string, addedBy string) error {
	return s.tx.InTx(ctx, func(ctx context.Context, st repository.Stores) error {
		if _, err := st.Users.LockForUpdate(ctx, userID); err != nil {
			return err
		}
		for _, id := range groupIDs {
			if _, err := st.Groups.GetByID(ctx, id); err != nil {
				return err
			}
		}
		if err := st.Memberships.ReplaceForUser(ctx, userID, groupIDs, addedBy); err != nil {
			return fmt.Errorf("replace memberships: %w", err)
		}
		return nil
	})
}

// =============================================================================
// Group Grants
// =============================================================================

func (s *iamService) GrantGroupPermission(ctx context.Context, groupID, code, grantedBy string) error {
	return s.tx.InTx(ctx, func(ctx context.Context, st repository.Stores) error {
		p, err := s.permissionInTx(ctx, st, code)
		if err != nil {
			return err
		}
		if _, err := st.Groups.GetByID(ctx, groupID); err != nil {
			return err
		}
		return st.GroupGrants.Grant(ctx, &models.GroupPermission{
			GroupID:      groupID,
			PermissionID: p.ID,
			GrantedBy:    grantedBy,
		})
	})
}

func (s *iamService) RevokeGroupPermission(ctx context.Context, groupID, code string) error {
	return s.tx.InTx(ctx, func(ctx context.Context, st repository.Stores) error {
		p, err := s.permissionInTx(ctx, st, code)
		if err != nil {
			return err
		}
		return st.GroupGrants.Revoke(ctx, groupID, p.ID)
	})
}

func (s *iamService) ListGroupPermissions(ctx context.Context, groupID string) ([]models.GroupPermission, error) {
	if _, err := s.stores.Groups.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	return s.stores.GroupGrants.ListForGroup(ctx, groupID)
}

// =============================================================================
// Direct Grants
// =============================================================================

// permissionInTx resolves code against the catalog rows visible to st and
// refreshes the read cache with the result.
func (s *iamService) permissionInTx(ctx context.Context, st repository.Stores, code string) (*models.Permission, error) {
	p, err := st.Permissions.GetByCode(ctx, code)
	if err != nil {
		if iamerr.IsNotFound(err) {
			s.catalog.forget(code)
		}
		return nil, err
	}
	s.catalog.put(*p)
	return p, nil
}

func (s *iamService) GrantUserPermission(ctx context.Context, userID, code, grantedBy string, expiresAt *time.Time) error {
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return iamerr.Invalid("expires_at", "must be in the future")
	}
	return s.tx.InTx(ctx, func(ctx context.Context, st repository.Stores) error {
		if _, err := st.Users.LockForUpdate(ctx, userID); err != nil {
			return err
		}
		p, err := s.permissionInTx(ctx, st, code)
		if err != nil {
			return err
		}
		return st.DirectGrants.Grant(ctx, userID, p.ID, grantedBy, expiresAt)
	})
}

func (s *iamService) DenyUserPermission(ctx context.Context, userID, code, grantedBy string) error {
	return s.tx.InTx(ctx, func(ctx context.Context, st repository.Stores) error {
		if _, err := st.Users.LockForUpdate(ctx, userID); err != nil {
			return err
		}
		p, err := s.permissionInTx(ctx, st, code)
		if err != nil {
			return err
		}
		return st.DirectGrants.Deny(ctx, userID, p.ID, grantedBy)
	})
}

func (s *iamService) RevokeUserPermission(ctx context.Context, userID, code string) error {
	return s.tx.InTx(ctx, func(ctx context.Context, st repository.Stores) error {
		if _, err := st.Users.LockForUpdate(ctx, userID); err != nil {
			return err
		}
		p, err := s.permissionInTx(ctx, st, code)
		if err != nil {
			return err
		}
		return st.DirectGrants.Revoke(ctx, userID, p.ID)
	})
}

func (s *iamService) ListDirectPermissions(ctx context.Context, userID string) ([]models.UserPermission, error) {
	if _, err := s.stores.Users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.stores.DirectGrants.ListForUser(ctx, userID)
}

// =============================================================================
// Users
// =============================================================================

func (s *iamService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.stores.Users.GetByID(ctx, id)
}

func (s *iamService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.stores.Users.GetByEmail(ctx, email)
}

func (s *iamService) LookupUser(ctx context.Context, ref string) (*models.User, error) {
	ref = strings.TrimSpace(ref)
	if _, err := uuid.Parse(ref); err == nil {
		return s.stores.Users.GetByID(ctx, ref)
	}
	return s.stores.Users.GetByEmail(ctx, ref)
}

func (s *iamService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.stores.Users.List(ctx)
}
