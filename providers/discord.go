package providers

import (
	"context"
	"time"

	"github.com/layer-3/pkpauth/core"
)

// DiscordProvider authenticates Discord accounts by OAuth access token
type DiscordProvider struct {
	base
	oauthFlow
}

// NewDiscordProvider creates a Discord provider
func NewDiscordProvider(deps Deps, cfg OAuthConfig) *DiscordProvider {
	return &DiscordProvider{
		base: base{kind: core.AuthMethodTypeDiscord, deps: deps},
		oauthFlow: oauthFlow{
			kind:       core.AuthMethodTypeDiscord,
			name:       "discord",
			tokenParam: "access_token",
			cfg:        cfg,
			now:        time.Now,
		},
	}
}

// Authenticate completes the login started by BeginLogin using the callback URL.
// The access token is opaque; the Discord user behind it is looked up when the
// identifier is derived.
func (p *DiscordProvider) Authenticate(_ context.Context, opts AuthenticateOptions) (core.AuthMethod, error) {
	token, err := p.callbackToken(opts.Session, opts.CallbackURL)
	if err != nil {
		return core.AuthMethod{}, err
	}
	return core.AuthMethod{Type: core.AuthMethodTypeDiscord, AccessToken: token}, nil
}
