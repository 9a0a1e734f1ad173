package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
)

// NewAuthzMiddleware constructs a Chi middleware that gates routes by the
// principal's role using the Casbin route policy. It runs after authn.
func NewAuthzMiddleware(deps AuthzDependencies) (func(http.Handler) http.Handler, error) {
	if deps.Enforcer == nil {
		return nil, errors.New("authz middleware requires casbin enforcer")
	}
	logger := loggerOrDefault(deps.Logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok || principal.UserID == "" {
				unauthenticated(w)
				return
			}

			allowed, err := auth.AllowRoute(deps.Enforcer, principal.Role, r.URL.Path, r.Method)
			if err != nil {
				logger.ErrorContext(r.Context(), "route authorization", "user_id", principal.UserID, "error", err)
				http.Error(w, "authorization error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				logger.DebugContext(r.Context(), "route denied",
					"user_id", principal.UserID, "role", principal.Role, "method", r.Method, "path", r.URL.Path)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// RequirePermission allows the request only when the principal's effective
// permission set contains code.
func RequirePermission(checker PermissionChecker, code string, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = loggerOrDefault(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok || principal.UserID == "" {
				unauthenticated(w)
				return
			}

			allowed, err := checker.HasPermission(r.Context(), principal.UserID, code)
			if err != nil {
				logger.ErrorContext(r.Context(), "permission check", "user_id", principal.UserID, "permission", code, "error", err)
				http.Error(w, "authorization error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, "forbidden: requires "+code, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
