package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
)

// NewAuthnMiddleware establishes the request principal from the trusted
// header. Requests without the header, for an unknown user or for a
// disabled account are rejected with 401.
func NewAuthnMiddleware(deps AuthnDependencies) (func(http.Handler) http.Handler, error) {
	if deps.Users == nil {
		return nil, errors.New("authn middleware requires a user lookup")
	}
	if deps.TrustedHeader == "" {
		return nil, errors.New("authn middleware requires a trusted header name")
	}
	logger := loggerOrDefault(deps.Logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ref := strings.TrimSpace(r.Header.Get(deps.TrustedHeader))
			if ref == "" {
				unauthenticated(w)
				return
			}

			user, err := deps.Users.LookupUser(r.Context(), ref)
			if err != nil {
				if iamerr.IsNotFound(err) {
					unauthenticated(w)
					return
				}
				logger.ErrorContext(r.Context(), "resolve principal", "ref", ref, "method", r.Method, "path", r.URL.Path, "error", err)
				http.Error(w, "authentication error", http.StatusInternalServerError)
				return
			}
			if user.IsDisabled() {
				http.Error(w, "account disabled", http.StatusUnauthorized)
				return
			}

			ctx := auth.SetPrincipal(r.Context(), auth.Principal{
				UserID: user.ID,
				Email:  user.Email,
				Name:   user.Name,
				Role:   user.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

func unauthenticated(w http.ResponseWriter) {
	http.Error(w, "unauthenticated", http.StatusUnauthorized)
}
