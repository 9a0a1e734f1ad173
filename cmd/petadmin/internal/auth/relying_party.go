package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	httphelper "github.com/zitadel/oidc/v3/pkg/http"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/config"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/rules"
)

const (
	stateCookieName    = "petadmin.state"
	redirectCookieName = "petadmin.redirect_uri"
	cookieTTL          = 10 * time.Minute
)

// RelyingParty runs the authorization code flow against the external IdP
// whose ID tokens feed identity provisioning.
type RelyingParty struct {
	rp       rp.RelyingParty
	provider string
}

// NewRelyingParty creates a new RelyingParty for external IdP authentication.
func NewRelyingParty(ctx context.Context, cfg *config.ExternalIdPConfig) (*RelyingParty, error) {
	// Per-process keys: an SSO flow in flight across a restart has to start over.
	hashKey, err := generateRandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cookie hash key: %w", err)
	}
	cryptoKey, err := generateRandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cookie crypto key: %w", err)
	}

	var cookieOpts []httphelper.CookieHandlerOpt
	if strings.HasPrefix(cfg.RedirectURI, "http://") {
		cookieOpts = append(cookieOpts, httphelper.WithUnsecure())
	}
	cookieHandler := httphelper.NewCookieHandler(hashKey, cryptoKey, cookieOpts...)

	options := []rp.Option{
		rp.WithCookieHandler(cookieHandler),
		rp.WithVerifierOpts(rp.WithIssuedAtMaxAge(10 * time.Second)),
		rp.WithPKCE(cookieHandler),
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI,
		cfg.Scopes, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC relying party: %w", err)
	}

	return &RelyingParty{rp: relyingParty, provider: cfg.ProviderName}, nil
}

// RP exposes the underlying relying party for the library's auth URL and
// code exchange handlers.
func (r *RelyingParty) RP() rp.RelyingParty {
	return r.rp
}

// Provider is the name recorded on users who sign in through this IdP.
func (r *RelyingParty) Provider() string {
	return r.provider
}

// Identity maps verified tokens from the code exchange to a provisioning
// identity.
func (r *RelyingParty) Identity(tokens *oidc.Tokens[*oidc.IDTokenClaims]) (rules.Identity, error) {
	if tokens == nil {
		return rules.Identity{}, fmt.Errorf("no tokens from code exchange")
	}
	return IdentityFromIDToken(tokens.IDTokenClaims, r.provider)
}

// generateRandomBytes creates a slice of random bytes of a specified size.
func generateRandomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	_, err := io.ReadFull(rand.Reader, b)
	if err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// GenerateNonce generates a random nonce string.
func GenerateNonce() (string, error) {
	b, err := generateRandomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetRedirectURICookie remembers where to send the browser after the callback.
func SetRedirectURICookie(w http.ResponseWriter, r *http.Request, redirectURI string) {
	cookie := &http.Cookie{
		Name:     redirectCookieName,
		Value:    redirectURI,
		Path:     "/",
		Expires:  time.Now().Add(cookieTTL),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
}

// GetRedirectURICookie reads and clears the redirect URI cookie. Empty when absent.
func GetRedirectURICookie(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(redirectCookieName)
	if err != nil {
		return ""
	}

	// Clear the cookie after reading
	clearCookie := &http.Cookie{
		Name:     redirectCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, clearCookie)

	return cookie.Value
}
