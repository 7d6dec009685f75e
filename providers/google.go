package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/layer-3/pkpauth/core"
)

// GoogleIssuer is the OIDC issuer of Google id_tokens
const GoogleIssuer = "https://accounts.google.com"

// IDTokenVerifier checks the signature and audience of an id_token
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// NewGoogleVerifier discovers Google's signing keys and returns a verifier for clientID
func NewGoogleVerifier(ctx context.Context, clientID string) (IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("creating google oidc provider: %w", err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// GoogleProvider authenticates Google accounts by OAuth id_token
type GoogleProvider struct {
	base
	oauthFlow
	verifier IDTokenVerifier
}

// NewGoogleProvider creates a Google provider. verifier may be nil, in which case
// tokens are only decoded and their signature is left to the nodes.
func NewGoogleProvider(deps Deps, cfg OAuthConfig, verifier IDTokenVerifier) *GoogleProvider {
	return &GoogleProvider{
		base: base{kind: core.AuthMethodTypeGoogleJWT, deps: deps},
		oauthFlow: oauthFlow{
			kind:       core.AuthMethodTypeGoogleJWT,
			name:       "google",
			tokenParam: "id_token",
			cfg:        cfg,
			now:        time.Now,
		},
		verifier: verifier,
	}
}

// Authenticate completes the login started by BeginLogin using the callback URL
func (p *GoogleProvider) Authenticate(ctx context.Context, opts AuthenticateOptions) (core.AuthMethod, error) {
	token, err := p.callbackToken(opts.Session, opts.CallbackURL)
	if err != nil {
		return core.AuthMethod{}, err
	}

	if p.verifier != nil {
		if _, err := p.verifier.Verify(ctx, token); err != nil {
			return core.AuthMethod{}, fmt.Errorf("%w: %v", core.ErrAuthentication, err)
		}
	} else {
		claims, err := ParseUnverifiedClaims(token)
		if err != nil {
			return core.AuthMethod{}, err
		}
		if _, _, err := claims.Identity(); err != nil {
			return core.AuthMethod{}, err
		}
		if claims.Expired(p.now()) {
			return core.AuthMethod{}, fmt.Errorf("%w: id_token expired", core.ErrAuthentication)
		}
	}

	return core.AuthMethod{Type: core.AuthMethodTypeGoogleJWT, AccessToken: token}, nil
}
