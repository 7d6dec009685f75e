// Package providers turns heterogeneous identity proofs into AuthMethods.
//
// Every provider kind is a variant of the sealed Provider interface. Variants
// hold only immutable configuration; the state of a single login lives in the
// LoginSession it started.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/layer-3/pkpauth/adapters/relay"
	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/ports"
)

var (
	ErrNoRelay         = errors.New("provider has no relay")
	ErrNoSessionSigner = errors.New("provider has no session signer")
)

// Provider authenticates one kind of identity proof
type Provider interface {
	Type() core.AuthMethodType
	Authenticate(ctx context.Context, opts AuthenticateOptions) (core.AuthMethod, error)
	AuthMethodID(ctx context.Context, m core.AuthMethod) (string, error)
	MintPKPThroughRelayer(ctx context.Context, m core.AuthMethod) (string, error)
	FetchPKPsThroughRelayer(ctx context.Context, m core.AuthMethod) ([]core.PKP, error)
	GetSessionSigs(ctx context.Context, params core.SessionSigsParams) (core.SessionSigs, error)

	sealed()
}

// SignMessageFunc signs message with a wallet and returns the hex signature
type SignMessageFunc func(ctx context.Context, message string) (string, error)

// AuthenticateOptions carries the proof for whichever variant is called.
// Fields not used by a variant are ignored.
type AuthenticateOptions struct {
	// Session is the flow started by BeginLogin (OAuth and WebAuthn variants).
	Session *LoginSession
	// CallbackURL is the URL an OAuth login redirected back to.
	CallbackURL string
	// Credential is a WebAuthn assertion response as JSON.
	Credential []byte
	// AccessToken is an OTP session JWT.
	AccessToken string
	// UserID must match the OTP token subject when set.
	UserID string

	// AuthSig is a pre-signed wallet statement.
	AuthSig *core.AuthSig
	// Address is the wallet address. With AuthSig it must match the statement.
	Address string
	// SignMessage signs a freshly built statement when no AuthSig is given.
	SignMessage SignMessageFunc
	Chain       string
	Statement   string
	Expiration  time.Time
	Resources   []string
}

// Deps are the collaborators shared by every provider
type Deps struct {
	Relay    ports.Relay
	Sessions ports.SessionSigner
	Resolver ports.AuthMethodResolver
	// Store caches wallet signatures by address. Optional, and only safe when
	// the store belongs to a single user: a hit skips the signing prompt.
	Store  ports.Store
	Logger zerolog.Logger
}

type base struct {
	kind core.AuthMethodType
	deps Deps
}

func (b base) sealed() {}

// Type returns the auth method kind the provider produces
func (b base) Type() core.AuthMethodType {
	return b.kind
}

// AuthMethodID derives the relay lookup key of m
func (b base) AuthMethodID(ctx context.Context, m core.AuthMethod) (string, error) {
	if err := b.owns(m); err != nil {
		return "", err
	}
	return b.deps.Resolver.AuthMethodID(ctx, m)
}

// MintPKPThroughRelayer submits a mint request for m and returns its request id
func (b base) MintPKPThroughRelayer(ctx context.Context, m core.AuthMethod) (string, error) {
	if err := b.owns(m); err != nil {
		return "", err
	}
	return MintPKPThroughRelayer(ctx, b.deps.Relay, b.deps.Resolver, m)
}

// FetchPKPsThroughRelayer lists the PKPs bound to m
func (b base) FetchPKPsThroughRelayer(ctx context.Context, m core.AuthMethod) ([]core.PKP, error) {
	if err := b.owns(m); err != nil {
		return nil, err
	}
	return FetchPKPsThroughRelayer(ctx, b.deps.Relay, b.deps.Resolver, m)
}

// GetSessionSigs derives session signatures for params
func (b base) GetSessionSigs(ctx context.Context, params core.SessionSigsParams) (core.SessionSigs, error) {
	if err := b.owns(params.AuthMethod); err != nil {
		return nil, err
	}
	if b.deps.Sessions == nil {
		return nil, ErrNoSessionSigner
	}
	return b.deps.Sessions.GetSessionSigs(ctx, params)
}

func (b base) owns(m core.AuthMethod) error {
	if m.Type != b.kind {
		return fmt.Errorf("%w: %s provider given %s", core.ErrUnsupportedAuthMethod, b.kind, m.Type)
	}
	return nil
}

// MintPKPThroughRelayer submits a single-method mint request with the default scope
func MintPKPThroughRelayer(ctx context.Context, r ports.Relay, resolver ports.AuthMethodResolver, m core.AuthMethod) (string, error) {
	if r == nil {
		return "", ErrNoRelay
	}
	req, err := relay.BuildMintRequest(ctx, resolver, []core.AuthMethod{m}, core.MintOptions{})
	if err != nil {
		return "", err
	}
	return r.MintPKP(ctx, req)
}

// FetchPKPsThroughRelayer derives the identifier of m and looks up its PKPs
func FetchPKPsThroughRelayer(ctx context.Context, r ports.Relay, resolver ports.AuthMethodResolver, m core.AuthMethod) ([]core.PKP, error) {
	if r == nil {
		return nil, ErrNoRelay
	}
	if resolver == nil {
		return nil, relay.ErrNoResolver
	}
	id, err := resolver.AuthMethodID(ctx, m)
	if err != nil {
		return nil, err
	}
	return r.FetchPKPs(ctx, core.FetchRequest{AuthMethodType: m.Type, AuthMethodID: id})
}

// Config configures every variant built by New
type Config struct {
	Wallet   WalletConfig
	Google   OAuthConfig
	Discord  OAuthConfig
	WebAuthn WebAuthnConfig
	// GoogleVerifier checks Google id_tokens. Optional.
	GoogleVerifier IDTokenVerifier
}

// New builds the provider for kind
func New(kind core.AuthMethodType, deps Deps, cfg Config) (Provider, error) {
	switch kind {
	case core.AuthMethodTypeEthWallet:
		return NewEthWalletProvider(deps, cfg.Wallet), nil
	case core.AuthMethodTypeWebAuthn:
		p, err := NewWebAuthnProvider(deps, cfg.WebAuthn)
		if err != nil {
			return nil, err
		}
		return p, nil
	case core.AuthMethodTypeDiscord:
		return NewDiscordProvider(deps, cfg.Discord), nil
	case core.AuthMethodTypeGoogleJWT:
		return NewGoogleProvider(deps, cfg.Google, cfg.GoogleVerifier), nil
	case core.AuthMethodTypeStytchOTP:
		return NewOTPProvider(deps), nil
	}
	return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedAuthMethod, kind)
}
