package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/config"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/dbtest"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/repository"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/rules"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/services/iam"
)

type testServer struct {
	handler http.Handler
	svc     iam.Service
	users   map[string]*models.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := dbtest.New(t)
	table, err := rules.Default()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := iam.NewIAMService(iam.IAMServiceDependencies{
		Stores:     repository.NewBunStores(db),
		Transactor: repository.NewBunTransactor(db),
		Rules:      table,
		Logger:     logger,
	}, iam.IAMServiceConfig{DefaultProvider: "oidc"})
	require.NoError(t, err)

	enforcer, err := auth.InitEnforcer()
	require.NoError(t, err)

	router, err := NewRouter(RouterOptions{
		IAMService: svc,
		Enforcer:   enforcer,
		Cfg:        &config.Config{Auth: config.AuthConfig{TrustedHeader: "X-Remote-User"}},
		Logger:     logger,
	})
	require.NoError(t, err)

	ts := &testServer{handler: router, svc: svc, users: map[string]*models.User{}}
	for _, email := range []string{"admin@example.com", "carol@example.com", "bob@unknown-domain.test"} {
		res, err := svc.Login(context.Background(), rules.Identity{Email: email, ProviderID: "sub|" + email})
		require.NoError(t, err)
		require.Nil(t, res.ProvisioningErr)
		ts.users[email] = res.User
	}
	return ts
}

func (ts *testServer) do(t *testing.T, as, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if as != "" {
		req.Header.Set("X-Remote-User", as)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type effectiveBody struct {
	UserID      string `json:"user_id"`
	Permissions []struct {
		Code   string `json:"code"`
		Source struct {
			Type      string `json:"type"`
			GroupName string `json:"group_name"`
		} `json:"source"`
	} `json:"permissions"`
}

func (b effectiveBody) codes() []string {
	out := make([]string, 0, len(b.Permissions))
	for _, p := range b.Permissions {
		out = append(out, p.Code)
	}
	return out
}

const (
	admin = "admin@example.com"
	staff = "carol@example.com"
	bob   = "bob@unknown-domain.test"
)

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMyPermissions(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, bob, http.MethodGet, "/api/v1/me/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[effectiveBody](t, rec)
	assert.Equal(t, ts.users[bob].ID, body.UserID)
	assert.Equal(t, []string{models.PermUsersView}, body.codes())
	assert.Equal(t, "direct", body.Permissions[0].Source.Type)

	// the trusted header may carry the id as well
	rec = ts.do(t, ts.users[bob].ID, http.MethodGet, "/api/v1/me/permissions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "", http.MethodGet, "/api/v1/me/permissions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, "stranger@pets.test", http.MethodGet, "/api/v1/me/permissions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouteGate(t *testing.T) {
	ts := newTestServer(t)

	// role user only reaches /me
	rec := ts.do(t, bob, http.MethodGet, "/api/v1/groups", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// staff may not touch the catalog regardless of permissions
	rec = ts.do(t, staff, http.MethodPost, "/api/v1/permissions",
		iam.CreatePermissionInput{Code: "pets.adopt", Name: "Adopt", Category: "pets"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// staff passes the gate but lacks groups.manage
	rec = ts.do(t, staff, http.MethodPost, "/api/v1/groups", iam.CreateGroupInput{Name: "Night Shift"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), models.PermGroupsManage)

	rec = ts.do(t, staff, http.MethodGet, "/api/v1/groups", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPermissionCatalogEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, admin, http.MethodPost, "/api/v1/permissions",
		iam.CreatePermissionInput{Code: "pets.adopt", Name: "Adopt pets", Category: "pets"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[PermissionResponse](t, rec)
	assert.Equal(t, "pets.adopt", created.Code)

	rec = ts.do(t, admin, http.MethodPost, "/api/v1/permissions",
		iam.CreatePermissionInput{Code: "pets.adopt", Name: "Adopt pets", Category: "pets"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, admin, http.MethodPost, "/api/v1/permissions",
		iam.CreatePermissionInput{Code: "Bad Code", Name: "x", Category: "pets"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "code", decode[ErrorResponse](t, rec).Field)

	rec = ts.do(t, admin, http.MethodGet, "/api/v1/permissions/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[[]string](t, rec), "pets")

	rec = ts.do(t, admin, http.MethodDelete, "/api/v1/permissions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, admin, http.MethodDelete, "/api/v1/permissions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupEndpoints(t *testing.T) {
	ts := newTestServer(t)
	bobID := ts.users[bob].ID

	rec := ts.do(t, admin, http.MethodPost, "/api/v1/groups", iam.CreateGroupInput{Name: "Vets"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	group := decode[GroupResponse](t, rec)
	assert.Regexp(t, `^#[0-9A-F]{6}$`, group.Color)

	rec = ts.do(t, admin, http.MethodPost, "/api/v1/groups/"+group.ID+"/permissions", map[string]string{"code": models.PermPetsEdit})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, admin, http.MethodPost, "/api/v1/groups/"+group.ID+"/members", map[string]string{"user_id": bobID})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, admin, http.MethodGet, "/api/v1/users/"+bobID+"/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[effectiveBody](t, rec)
	assert.ElementsMatch(t, []string{models.PermUsersView, models.PermPetsEdit}, body.codes())
	for _, p := range body.Permissions {
		if p.Code == models.PermPetsEdit {
			assert.Equal(t, "group", p.Source.Type)
			assert.Equal(t, "Vets", p.Source.GroupName)
		}
	}

	rec = ts.do(t, admin, http.MethodGet, "/api/v1/groups/"+group.ID+"/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[[]MemberResponse](t, rec)
	require.Len(t, members, 1)
	assert.Equal(t, bobID, members[0].UserID)
	assert.Equal(t, ts.users[admin].ID, members[0].AddedBy)

	rec = ts.do(t, admin, http.MethodPost, "/api/v1/groups/"+group.ID+"/members", map[string]string{"user_id": bobID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	inactive := false
	rec = ts.do(t, admin, http.MethodPatch, "/api/v1/groups/"+group.ID, iam.GroupPatch{IsActive: &inactive})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[GroupResponse](t, rec).IsActive)

	rec = ts.do(t, admin, http.MethodPatch, "/api/v1/groups/"+group.ID, map[string]string{"color": "red"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "color", decode[ErrorResponse](t, rec).Field)

	rec = ts.do(t, admin, http.MethodDelete, "/api/v1/groups/"+group.ID+"/permissions/"+models.PermPetsEdit, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, admin, http.MethodDelete, "/api/v1/groups/"+group.ID+"/members/"+bobID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, admin, http.MethodDelete, "/api/v1/groups/"+group.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, admin, http.MethodGet, "/api/v1/groups/"+group.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDirectGrantEndpoints(t *testing.T) {
	ts := newTestServer(t)
	bobID := ts.users[bob].ID
	base := "/api/v1/users/" + bobID + "/permissions/"

	rec := ts.do(t, admin, http.MethodPut, base+models.PermPetsView, map[string]string{"expires_at": "2000-01-01T00:00:00Z"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "expires_at", decode[ErrorResponse](t, rec).Field)

	rec = ts.do(t, admin, http.MethodPut, base+models.PermPetsView, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, admin, http.MethodPut, base+"pets.teleport", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, admin, http.MethodPut, base+models.PermUsersView+"/deny", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, admin, http.MethodGet, base+"direct", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	grants := decode[[]GrantResponse](t, rec)
	require.Len(t, grants, 2)

	rec = ts.do(t, admin, http.MethodGet, "/api/v1/users/"+bobID+"/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{models.PermPetsView}, decode[effectiveBody](t, rec).codes())

	// /me needs no permission, so the deny does not lock bob out of it
	rec = ts.do(t, bob, http.MethodGet, "/api/v1/me/permissions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, admin, http.MethodDelete, base+models.PermPetsView, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, admin, http.MethodDelete, base+models.PermPetsView, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, admin, http.MethodGet, "/api/v1/users/"+uuid.Must(uuid.NewV7()).String()+"/permissions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplaceGroupsAndResync(t *testing.T) {
	ts := newTestServer(t)
	bobID := ts.users[bob].ID

	rec := ts.do(t, admin, http.MethodPut, "/api/v1/users/"+bobID+"/groups",
		map[string][]string{"group_ids": {uuid.Must(uuid.NewV7()).String()}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, admin, http.MethodPost, "/api/v1/groups", iam.CreateGroupInput{Name: "Night Shift"})
	require.Equal(t, http.StatusCreated, rec.Code)
	night := decode[GroupResponse](t, rec)

	rec = ts.do(t, admin, http.MethodPut, "/api/v1/users/"+bobID+"/groups",
		map[string][]string{"group_ids": {night.ID}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, admin, http.MethodPost, "/api/v1/users/"+bobID+"/provisioning/resync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[iam.ProvisioningResult](t, rec)
	assert.Equal(t, "default", res.Rule)
	assert.Equal(t, []string{"Users"}, res.GroupNames)

	rec = ts.do(t, admin, http.MethodGet, "/api/v1/groups/"+night.ID+"/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]MemberResponse](t, rec))

	rec = ts.do(t, admin, http.MethodPost, "/api/v1/users/"+uuid.Must(uuid.NewV7()).String()+"/provisioning/resync", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListUsers(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, staff, http.MethodGet, "/api/v1/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]UserResponse](t, rec)

	var emails []string
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	assert.Subset(t, emails, []string{admin, staff, bob})

	rec = ts.do(t, staff, http.MethodGet, "/api/v1/users/"+ts.users[bob].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleUser, decode[UserResponse](t, rec).Role)
}
