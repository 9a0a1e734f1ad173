package iam

import (
	"encoding/json"
	"time"
)

// SourceKind discriminates where an effective permission comes from.
type SourceKind string

const (
	SourceDirect SourceKind = "direct"
	SourceGroup  SourceKind = "group"
)

// GroupRef identifies the group an inherited permission comes from.
type GroupRef struct {
	ID    string `json:"group_id"`
	Name  string `json:"group_name"`
	Color string `json:"color"`
}

// PermissionSource is a tagged variant: Kind is SourceDirect with a nil
// Group, or SourceGroup with Group set.
type PermissionSource struct {
	Kind  SourceKind
	Group *GroupRef
}

// DirectSource marks a permission granted directly to the user.
func DirectSource() PermissionSource {
	return PermissionSource{Kind: SourceDirect}
}

// GroupSource marks a permission inherited from g.
func GroupSource(g GroupRef) PermissionSource {
	return PermissionSource{Kind: SourceGroup, Group: &g}
}

// IsDirect reports whether the permission was granted directly.
func (s PermissionSource) IsDirect() bool { return s.Kind == SourceDirect }

// String renders "direct" or "group:<name>".
func (s PermissionSource) String() string {
	if s.Kind == SourceGroup && s.Group != nil {
		return "group:" + s.Group.Name
	}
	return string(s.Kind)
}

// MarshalJSON flattens the variant: {"type":"direct"} or
// {"type":"group","group_id":...,"group_name":...,"color":...}.
func (s PermissionSource) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type SourceKind `json:"type"`
		*GroupRef
	}
	w := wire{Type: s.Kind}
	if s.Kind == SourceGroup {
		w.GroupRef = s.Group
	}
	return json.Marshal(w)
}

// EffectivePermission is one entry of a user's resolved permission set.
type EffectivePermission struct {
	PermissionID string           `json:"permission_id"`
	Code         string           `json:"code"`
	Name         string           `json:"name"`
	Category     string           `json:"category"`
	Source       PermissionSource `json:"source"`
	// ExpiresAt is set only for direct grants with an expiry.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
