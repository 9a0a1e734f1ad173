package auth

import "context"

// Principal captures the authenticated caller propagated through the request context.
type Principal struct {
	// UserID references users.id.
	UserID string
	Email  string
	Name   string
	// Role is the user's application role (admin, staff or user).
	Role string
}

// Subject is the Casbin subject for the principal's role.
func (p Principal) Subject() string {
	return RoleSubject(p.Role)
}

type principalContextKey struct{}

// SetPrincipal stores the authenticated principal on the context for downstream consumers.
func SetPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext retrieves the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok
}

// ActorID returns the id recorded as granted_by / added_by / created_by for
// writes made on behalf of ctx: the principal's user id, or the system user
// when there is no principal (CLI, provisioning).
func ActorID(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok && p.UserID != "" {
		return p.UserID
	}
	return SystemUserID
}
