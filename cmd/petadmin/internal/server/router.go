package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/config"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	petmiddleware "github.com/talpa/pet-management-sub001/cmd/petadmin/internal/middleware"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/services/iam"
)

// RouterOptions controls the construction of the admin HTTP router.
type RouterOptions struct {
	IAMService   iam.Service
	Enforcer     casbin.IEnforcer
	RelyingParty *auth.RelyingParty
	Cfg          *config.Config
	Logger       *slog.Logger
	CORSOptions  *cors.Options
	// Middleware is applied after the baseline middleware, before routing.
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization", config.DefaultTrustedHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, the
// SSO endpoints when an external IdP is configured and the admin API.
func NewRouter(opts RouterOptions) (chi.Router, error) {
	if opts.IAMService == nil {
		return nil, fmt.Errorf("router requires the IAM service")
	}
	if opts.Enforcer == nil {
		return nil, fmt.Errorf("router requires a casbin enforcer")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trustedHeader := config.DefaultTrustedHeader
	corsCfg := DefaultCORSOptions()
	if opts.Cfg != nil {
		if opts.Cfg.Auth.TrustedHeader != "" {
			trustedHeader = opts.Cfg.Auth.TrustedHeader
		}
		if len(opts.Cfg.CORS.AllowedOrigins) > 0 {
			corsCfg.AllowedOrigins = opts.Cfg.CORS.AllowedOrigins
		}
	}
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}

	authn, err := petmiddleware.NewAuthnMiddleware(petmiddleware.AuthnDependencies{
		Users:         opts.IAMService,
		TrustedHeader: trustedHeader,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	authz, err := petmiddleware.NewAuthzMiddleware(petmiddleware.AuthzDependencies{
		Enforcer: opts.Enforcer,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(petmiddleware.Tracing)
	r.Use(cors.Handler(corsCfg))
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.RelyingParty != nil {
		r.Get("/auth/sso/login", HandleSSOLogin(opts.RelyingParty))
		r.Get("/auth/sso/callback", HandleSSOCallback(opts.RelyingParty, opts.IAMService, logger))
	}

	h := &handlers{svc: opts.IAMService, logger: logger}
	need := func(code string) func(http.Handler) http.Handler {
		return petmiddleware.RequirePermission(opts.IAMService, code, logger)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn, authz)

		r.Get("/me/permissions", h.myPermissions)

		r.Route("/permissions", func(r chi.Router) {
			r.With(need(models.PermUsersView)).Get("/", h.listPermissions)
			r.With(need(models.PermUsersView)).Get("/categories", h.permissionCategories)
			r.With(need(models.PermPermissionsManage)).Post("/", h.createPermission)
			r.With(need(models.PermPermissionsManage)).Delete("/{permissionID}", h.deletePermission)
		})

		r.Route("/groups", func(r chi.Router) {
			r.With(need(models.PermUsersView)).Get("/", h.listGroups)
			r.With(need(models.PermGroupsManage)).Post("/", h.createGroup)

			r.Route("/{groupID}", func(r chi.Router) {
				r.With(need(models.PermUsersView)).Get("/", h.getGroup)
				r.With(need(models.PermGroupsManage)).Patch("/", h.updateGroup)
				r.With(need(models.PermGroupsManage)).Delete("/", h.deleteGroup)

				r.With(need(models.PermUsersView)).Get("/members", h.listGroupMembers)
				r.With(need(models.PermGroupsManage)).Post("/members", h.addGroupMember)
				r.With(need(models.PermGroupsManage)).Delete("/members/{userID}", h.removeGroupMember)

				r.With(need(models.PermUsersView)).Get("/permissions", h.listGroupPermissions)
				r.With(need(models.PermGroupsManage)).Post("/permissions", h.grantGroupPermission)
				r.With(need(models.PermGroupsManage)).Delete("/permissions/{code}", h.revokeGroupPermission)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.With(need(models.PermUsersView)).Get("/", h.listUsers)

			r.Route("/{userID}", func(r chi.Router) {
				r.With(need(models.PermUsersView)).Get("/", h.getUser)
				r.With(need(models.PermUsersView)).Get("/permissions", h.userPermissions)
				r.With(need(models.PermUsersView)).Get("/permissions/direct", h.listDirectPermissions)
				r.With(need(models.PermPermissionsManage)).Put("/permissions/{code}", h.grantUserPermission)
				r.With(need(models.PermPermissionsManage)).Put("/permissions/{code}/deny", h.denyUserPermission)
				r.With(need(models.PermPermissionsManage)).Delete("/permissions/{code}", h.revokeUserPermission)
				r.With(need(models.PermGroupsManage)).Put("/groups", h.replaceUserGroups)
				r.With(need(models.PermUsersEdit)).Post("/provisioning/resync", h.resyncProvisioning)
			})
		})
	})

	return r, nil
}

// handlers serves the /api/v1 admin routes.
type handlers struct {
	svc    iamAdminService
	logger *slog.Logger
}
