package providers

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/pkpauth/core"
)

// TokenClaims are the claims read from OAuth id_tokens and OTP session tokens
type TokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// ParseUnverifiedClaims decodes the claims of token without checking its signature.
// Signature checks belong to the nodes or to an IDTokenVerifier.
func ParseUnverifiedClaims(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: parsing token: %v", core.ErrAuthentication, err)
	}
	return claims, nil
}

// Identity returns the subject and the first audience
func (c *TokenClaims) Identity() (userID, appID string, err error) {
	if c.Subject == "" {
		return "", "", fmt.Errorf("%w: token has no subject", core.ErrAuthentication)
	}
	if len(c.Audience) == 0 || c.Audience[0] == "" {
		return "", "", fmt.Errorf("%w: token has no audience", core.ErrAuthentication)
	}
	return c.Subject, c.Audience[0], nil
}

// Expired reports whether the token carries an expiry before now
func (c *TokenClaims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Time.Before(now)
}
