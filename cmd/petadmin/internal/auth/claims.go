package auth

import (
	"fmt"
	"strings"

	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/rules"
)

// IdentityFromIDToken builds the provisioning identity from verified ID
// token claims. The email claim is required; the display name falls back to
// preferred_username.
func IdentityFromIDToken(claims *oidc.IDTokenClaims, provider string) (rules.Identity, error) {
	if claims == nil {
		return rules.Identity{}, fmt.Errorf("id token claims missing")
	}
	email := strings.TrimSpace(claims.Email)
	if email == "" {
		raw, err := ExtractClaimString(claims.Claims, "email")
		if err != nil {
			return rules.Identity{}, err
		}
		email = raw
	}

	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = strings.TrimSpace(claims.PreferredUsername)
	}

	return rules.Identity{
		Email:       email,
		DisplayName: name,
		ProviderID:  claims.Subject,
		Provider:    provider,
	}, nil
}

// ExtractClaimString extracts a non-empty string claim.
func ExtractClaimString(claims map[string]any, claimField string) (string, error) {
	rawValue, ok := claims[claimField]
	if !ok {
		return "", fmt.Errorf("claim field %s not found", claimField)
	}

	value, ok := rawValue.(string)
	if !ok {
		return "", fmt.Errorf("claim field %s is not a string", claimField)
	}

	if value == "" {
		return "", fmt.Errorf("claim field %s is empty", claimField)
	}

	return value, nil
}
