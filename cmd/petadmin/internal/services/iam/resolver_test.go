package iam

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
)

func TestResolveEffectivePermissions_DirectGrants(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")

	require.NoError(t, f.svc.GrantUserPermission(ctx, alice.ID, models.PermPetsView, auth.SystemUserID, nil))
	require.NoError(t, f.svc.GrantUserPermission(ctx, alice.ID, models.PermUsersView, auth.SystemUserID, nil))

	perms, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)

	// pets < users by category
	assert.Equal(t, []string{models.PermPetsView, models.PermUsersView}, codes(perms))
	for _, p := range perms {
		assert.True(t, p.Source.IsDirect())
		assert.Nil(t, p.Source.Group)
	}
}

func TestResolveEffectivePermissions_Expiry(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")

	expires := f.clock.Now().Add(time.Hour)
	require.NoError(t, f.svc.GrantUserPermission(ctx, alice.ID, models.PermQRGenerate, auth.SystemUserID, &expires))

	perms, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	p, ok := find(perms, models.PermQRGenerate)
	require.True(t, ok)
	require.NotNil(t, p.ExpiresAt)
	assert.True(t, p.ExpiresAt.Equal(expires))

	f.clock.Advance(2 * time.Hour)

	perms, err = f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	_, ok = find(perms, models.PermQRGenerate)
	assert.False(t, ok, "expired grant must not be effective")

	// the row itself is kept
	rows, err := f.svc.ListDirectPermissions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestResolveEffectivePermissions_ExpiryBoundaryIsExclusive(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")

	expires := f.clock.Now().Add(time.Minute)
	require.NoError(t, f.svc.GrantUserPermission(ctx, alice.ID, models.PermQRGenerate, auth.SystemUserID, &expires))

	f.clock.Advance(time.Minute)

	ok, err := f.svc.HasPermission(ctx, alice.ID, models.PermQRGenerate)
	require.NoError(t, err)
	assert.False(t, ok, "a grant expiring exactly now is expired")
}

func TestResolveEffectivePermissions_DenyOverridesGroup(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")
	vets := f.group(t, "Vets")

	require.NoError(t, f.svc.GrantGroupPermission(ctx, vets.ID, models.PermPetsEdit, auth.SystemUserID))
	require.NoError(t, f.svc.AddGroupMember(ctx, vets.ID, alice.ID, auth.SystemUserID))

	ok, err := f.svc.HasPermission(ctx, alice.ID, models.PermPetsEdit)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.svc.DenyUserPermission(ctx, alice.ID, models.PermPetsEdit, auth.SystemUserID))

	ok, err = f.svc.HasPermission(ctx, alice.ID, models.PermPetsEdit)
	require.NoError(t, err)
	assert.False(t, ok, "direct deny must hide the group grant")

	require.NoError(t, f.svc.RevokeUserPermission(ctx, alice.ID, models.PermPetsEdit))

	perms, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	p, ok := find(perms, models.PermPetsEdit)
	require.True(t, ok)
	assert.Equal(t, SourceGroup, p.Source.Kind)
	require.NotNil(t, p.Source.Group)
	assert.Equal(t, vets.ID, p.Source.Group.ID)
	assert.Equal(t, "Vets", p.Source.Group.Name)
	assert.Equal(t, vets.Color, p.Source.Group.Color)
}

func TestResolveEffectivePermissions_ExpiredAllowDoesNotShadowGroup(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")
	vets := f.group(t, "Vets")
	require.NoError(t, f.svc.GrantGroupPermission(ctx, vets.ID, models.PermPetsView, auth.SystemUserID))
	require.NoError(t, f.svc.AddGroupMember(ctx, vets.ID, alice.ID, auth.SystemUserID))

	expires := f.clock.Now().Add(time.Minute)
	require.NoError(t, f.svc.GrantUserPermission(ctx, alice.ID, models.PermPetsView, auth.SystemUserID, &expires))
	f.clock.Advance(time.Hour)

	perms, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	p, ok := find(perms, models.PermPetsView)
	require.True(t, ok)
	assert.Equal(t, SourceGroup, p.Source.Kind)
	assert.Nil(t, p.ExpiresAt)
}

func TestResolveEffectivePermissions_DirectWinsOverGroupSource(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")
	vets := f.group(t, "Vets")
	require.NoError(t, f.svc.GrantGroupPermission(ctx, vets.ID, models.PermPetsView, auth.SystemUserID))
	require.NoError(t, f.svc.AddGroupMember(ctx, vets.ID, alice.ID, auth.SystemUserID))
	require.NoError(t, f.svc.GrantUserPermission(ctx, alice.ID, models.PermPetsView, auth.SystemUserID, nil))

	perms, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.True(t, perms[0].Source.IsDirect())
}

func TestResolveEffectivePermissions_MembershipRemoval(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")
	vets := f.group(t, "Vets")
	require.NoError(t, f.svc.GrantGroupPermission(ctx, vets.ID, models.PermPetsDelete, auth.SystemUserID))
	require.NoError(t, f.svc.AddGroupMember(ctx, vets.ID, alice.ID, auth.SystemUserID))
	require.NoError(t, f.svc.GrantUserPermission(ctx, alice.ID, models.PermPetsView, auth.SystemUserID, nil))

	before, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{models.PermPetsDelete, models.PermPetsView}, codes(before))

	require.NoError(t, f.svc.ReplaceUserGroups(ctx, alice.ID, nil, auth.SystemUserID))

	after, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	var direct []EffectivePermission
	for _, p := range before {
		if p.Source.IsDirect() {
			direct = append(direct, p)
		}
	}
	assert.Equal(t, direct, after)
	for _, p := range after {
		assert.True(t, p.Source.IsDirect())
	}

	ok, err := f.svc.HasPermission(ctx, alice.ID, models.PermPetsDelete)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveEffectivePermissions_RepeatedCallsAgree(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")
	vets := f.group(t, "Vets")
	require.NoError(t, f.svc.GrantGroupPermission(ctx, vets.ID, models.PermPetsEdit, auth.SystemUserID))
	require.NoError(t, f.svc.GrantGroupPermission(ctx, vets.ID, models.PermUsersView, auth.SystemUserID))
	require.NoError(t, f.svc.AddGroupMember(ctx, vets.ID, alice.ID, auth.SystemUserID))
	expires := f.clock.Now().Add(time.Hour)
	require.NoError(t, f.svc.GrantUserPermission(ctx, alice.ID, models.PermQRGenerate, auth.SystemUserID, &expires))
	require.NoError(t, f.svc.DenyUserPermission(ctx, alice.ID, models.PermUsersView, auth.SystemUserID))

	first, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	second, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{models.PermPetsEdit, models.PermQRGenerate}, codes(first))
}

func TestResolveEffectivePermissions_InactiveGroupIgnored(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")
	vets := f.group(t, "Vets")
	require.NoError(t, f.svc.GrantGroupPermission(ctx, vets.ID, models.PermPetsView, auth.SystemUserID))
	require.NoError(t, f.svc.AddGroupMember(ctx, vets.ID, alice.ID, auth.SystemUserID))

	inactive := false
	_, err := f.svc.UpdateGroup(ctx, vets.ID, GroupPatch{IsActive: &inactive})
	require.NoError(t, err)

	perms, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestResolveEffectivePermissions_LowestGroupIDWins(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")

	// ids are time ordered, so the first group created has the lowest id
	first := f.group(t, "Zookeepers")
	second := f.group(t, "Admins of Cats")
	require.Less(t, first.ID, second.ID)

	for _, g := range []*models.Group{second, first} {
		require.NoError(t, f.svc.GrantGroupPermission(ctx, g.ID, models.PermPetsView, auth.SystemUserID))
		require.NoError(t, f.svc.AddGroupMember(ctx, g.ID, alice.ID, auth.SystemUserID))
	}

	perms, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	require.NotNil(t, perms[0].Source.Group)
	assert.Equal(t, first.ID, perms[0].Source.Group.ID)
}

func TestResolveEffectivePermissions_Ordering(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	alice := f.user(t, "alice@pets.test")

	for _, code := range []string{
		models.PermUsersView,
		models.PermAuditView,
		models.PermPetsView,
		models.PermPetsCreate,
		models.PermGroupsManage,
	} {
		require.NoError(t, f.svc.GrantUserPermission(ctx, alice.ID, code, auth.SystemUserID, nil))
	}

	perms, err := f.svc.ResolveEffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)

	for i := 1; i < len(perms); i++ {
		prev, cur := perms[i-1], perms[i]
		if prev.Category == cur.Category {
			assert.LessOrEqual(t, prev.Name, cur.Name)
		} else {
			assert.Less(t, prev.Category, cur.Category)
		}
	}
	assert.Equal(t, "audit", perms[0].Category)
	assert.Equal(t, "users", perms[len(perms)-1].Category)
}

func TestResolveEffectivePermissions_UnknownUser(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.svc.ResolveEffectivePermissions(context.Background(), "0192f5b8-0000-7000-8000-000000000000")
	require.Error(t, err)
	assert.True(t, iamerr.IsNotFound(err))
}

func TestPermissionSource_MarshalJSON(t *testing.T) {
	direct, err := json.Marshal(DirectSource())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"direct"}`, string(direct))

	group, err := json.Marshal(GroupSource(GroupRef{ID: "g1", Name: "Vets", Color: "#10B981"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"group","group_id":"g1","group_name":"Vets","color":"#10B981"}`, string(group))

	assert.Equal(t, "direct", DirectSource().String())
	assert.Equal(t, "group:Vets", GroupSource(GroupRef{Name: "Vets"}).String())
}
