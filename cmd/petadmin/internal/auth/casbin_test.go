package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowRoute(t *testing.T) {
	enforcer, err := InitEnforcer()
	require.NoError(t, err)

	tests := []struct {
		role   string
		method string
		path   string
		want   bool
	}{
		{"user", http.MethodGet, "/api/v1/me/permissions", true},
		{"user", http.MethodGet, "/api/v1/users", false},
		{"user", http.MethodPost, "/api/v1/me/permissions", false},
		{"staff", http.MethodGet, "/api/v1/me/permissions", true},
		{"staff", http.MethodGet, "/api/v1/permissions", true},
		{"staff", http.MethodPost, "/api/v1/groups", true},
		{"staff", http.MethodPatch, "/api/v1/groups/abc", true},
		{"staff", http.MethodPut, "/api/v1/users/abc/permissions/pets.view", true},
		{"staff", http.MethodPost, "/api/v1/permissions", false},
		{"staff", http.MethodDelete, "/api/v1/permissions/abc", false},
		{"admin", http.MethodPost, "/api/v1/permissions", true},
		{"admin", http.MethodDelete, "/api/v1/groups/abc/members/def", true},
		{"admin", http.MethodGet, "/api/v1/me/permissions", true},
		{"admin", http.MethodGet, "/metrics", false},
		{"nobody", http.MethodGet, "/api/v1/me/permissions", false},
	}

	for _, tt := range tests {
		t.Run(tt.role+" "+tt.method+" "+tt.path, func(t *testing.T) {
			ok, err := AllowRoute(enforcer, tt.role, tt.path, tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestRoleSubject(t *testing.T) {
	assert.Equal(t, "role:admin", RoleSubject("admin"))
	assert.Equal(t, "role:staff", Principal{Role: "staff"}.Subject())
}
