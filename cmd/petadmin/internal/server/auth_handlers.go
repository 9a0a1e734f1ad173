package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/services/iam"
)

// HandleSSOLogin initiates the OIDC Authorization Code Flow.
// An optional redirect_uri query parameter is remembered in a cookie and
// echoed back by the callback response.
func HandleSSOLogin(rpAuth *auth.RelyingParty) http.HandlerFunc {
	// The library handler generates the PKCE challenge, stores state and
	// verifier in cookies and redirects to the IdP.
	libraryAuthHandler := rp.AuthURLHandler(func() string {
		state, _ := auth.GenerateNonce()
		return state
	}, rpAuth.RP())
	return func(w http.ResponseWriter, r *http.Request) {
		if redirectURI := r.URL.Query().Get("redirect_uri"); redirectURI != "" {
			auth.SetRedirectURICookie(w, r, redirectURI)
		}
		libraryAuthHandler.ServeHTTP(w, r)
	}
}

// HandleSSOCallback completes the code exchange and signs the user in,
// provisioning them from the rule table. A provisioning failure is reported
// as a warning in the response; the login still succeeds.
func HandleSSOCallback(rpAuth *auth.RelyingParty, iamService iamAdminService, logger *slog.Logger) http.HandlerFunc {
	codeExchangeCallback := func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens[*oidc.IDTokenClaims], _ string, _ rp.RelyingParty) {
		ctx := r.Context()

		identity, err := rpAuth.Identity(tokens)
		if err != nil {
			logger.WarnContext(ctx, "sso callback: unusable id token", "error", err)
			http.Error(w, "identity provider returned an unusable id token", http.StatusBadRequest)
			return
		}

		res, err := iamService.Login(ctx, identity)
		if err != nil {
			if errors.Is(err, iam.ErrUserDisabled) {
				http.Error(w, "account disabled", http.StatusForbidden)
				return
			}
			writeError(w, r, logger, err)
			return
		}

		resp := LoginResponse{
			User:         toUserResponse(res.User),
			Created:      res.Created,
			Provisioning: res.Provisioning,
		}
		if res.ProvisioningErr != nil {
			resp.Warning = "provisioning failed; previous permissions are unchanged"
		}

		resp.RedirectURI = auth.GetRedirectURICookie(w, r)
		writeJSON(w, http.StatusOK, resp)
	}
	// The library handler validates state, sends the PKCE verifier and
	// verifies the ID token before calling back.
	return rp.CodeExchangeHandler(codeExchangeCallback, rpAuth.RP())
}
