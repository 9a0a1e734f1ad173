package iam

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/repository"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/telemetry"
)

// ResolveEffectivePermissions implements Service.
func (s *iamService) ResolveEffectivePermissions(ctx context.Context, userID string) ([]EffectivePermission, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.ResolveEffectivePermissions",
		attribute.String(telemetry.AttrUserID, userID),
	)
	defer span.End()

	perms, err := resolve(ctx, s.stores, userID, s.now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int(telemetry.AttrPermissionCount, len(perms)))
	return perms, nil
}

// HasPermission implements Service.
func (s *iamService) HasPermission(ctx context.Context, userID, code string) (bool, error) {
	perms, err := s.ResolveEffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Code == code {
			return true, nil
		}
	}
	return false, nil
}

// resolve computes directAllow ∪ (groupAllow \ directDeny) as of now.
func resolve(ctx context.Context, st repository.Stores, userID string, now time.Time) ([]EffectivePermission, error) {
	if _, err := st.Users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	direct, err := st.DirectGrants.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions for user %s: %w", userID, err)
	}

	result := make([]EffectivePermission, 0, len(direct))
	decided := make(map[string]struct{}, len(direct))
	for _, row := range direct {
		if row.IsExpired(now) || row.Permission == nil {
			continue
		}
		decided[row.PermissionID] = struct{}{}
		if !row.Granted {
			continue
		}
		result = append(result, EffectivePermission{
			PermissionID: row.PermissionID,
			Code:         row.Permission.Code,
			Name:         row.Permission.Name,
			Category:     row.Permission.Category,
			Source:       DirectSource(),
			ExpiresAt:    row.ExpiresAt,
		})
	}

	memberships, err := st.Memberships.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions for user %s: %w", userID, err)
	}
	groups := make(map[string]*models.Group, len(memberships))
	groupIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		if m.Group == nil || !m.Group.IsActive {
			continue
		}
		groups[m.GroupID] = m.Group
		groupIDs = append(groupIDs, m.GroupID)
	}

	if len(groupIDs) > 0 {
		sort.Strings(groupIDs)
		grants, err := st.GroupGrants.ListForGroups(ctx, groupIDs)
		if err != nil {
			return nil, fmt.Errorf("resolve permissions for user %s: %w", userID, err)
		}

		// lowest group id per permission
		inherited := make(map[string]models.GroupPermission, len(grants))
		for _, g := range grants {
			if g.Permission == nil {
				continue
			}
			if _, ok := decided[g.PermissionID]; ok {
				continue
			}
			if cur, ok := inherited[g.PermissionID]; !ok || g.GroupID < cur.GroupID {
				inherited[g.PermissionID] = g
			}
		}
		for _, g := range inherited {
			grp := groups[g.GroupID]
			result = append(result, EffectivePermission{
				PermissionID: g.PermissionID,
				Code:         g.Permission.Code,
				Name:         g.Permission.Name,
				Category:     g.Permission.Category,
				Source:       GroupSource(GroupRef{ID: grp.ID, Name: grp.Name, Color: grp.Color}),
			})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Code < b.Code
	})
	return result, nil
}
