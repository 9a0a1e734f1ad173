package iam

import (
	"strings"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
)

// Palette holds the colors assigned to groups created without one.
var Palette = []string{
	"#4F46E5",
	"#0EA5E9",
	"#10B981",
	"#F59E0B",
	"#EF4444",
	"#8B5CF6",
	"#EC4899",
	"#14B8A6",
}

// PaletteColor picks the color for the group created after existing groups.
func PaletteColor(existing int) string {
	if existing < 0 {
		existing = 0
	}
	return Palette[existing%len(Palette)]
}

var (
	broadDefaults = []string{
		models.PermUsersView,
		models.PermUsersCreate,
		models.PermUsersEdit,
		models.PermUsersDelete,
		models.PermGroupsManage,
		models.PermPermissionsManage,
	}
	editorDefaults = []string{
		models.PermUsersView,
		models.PermUsersEdit,
		models.PermPetsView,
		models.PermPetsEdit,
	}
	readDefaults = []string{
		models.PermUsersView,
	}

	broadMarkers  = []string{"admin", "superuser", "root"}
	editorMarkers = []string{"manager", "staff", "editor", "moderator"}
)

// DefaultPermissionsFor returns the permission codes seeded into a group
// that provisioning creates, chosen from the group's normalized name.
func DefaultPermissionsFor(groupName string) []string {
	name := strings.ToLower(strings.TrimSpace(groupName))
	switch {
	case containsAny(name, broadMarkers):
		return append([]string(nil), broadDefaults...)
	case containsAny(name, editorMarkers):
		return append([]string(nil), editorDefaults...)
	default:
		return append([]string(nil), readDefaults...)
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
