package providers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"slices"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/layer-3/pkpauth/core"
)

const DefaultRPDisplayName = "pkpauth"

// WebAuthnConfig configures the relying party
type WebAuthnConfig struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
	// Timeout bounds a started ceremony. Zero means DefaultLoginTTL.
	Timeout time.Duration
}

// WebAuthnProvider authenticates passkeys. Assertions are parsed and bound to
// the issued challenge here; the signature itself is checked by the nodes
// against the key registered with the PKP.
type WebAuthnProvider struct {
	base
	cfg      WebAuthnConfig
	webauthn *webauthn.WebAuthn
	now      func() time.Time
}

// registrant is the user a new credential is created for
type registrant struct {
	id   []byte
	name string
}

func (u registrant) WebAuthnID() []byte                         { return u.id }
func (u registrant) WebAuthnName() string                       { return u.name }
func (u registrant) WebAuthnDisplayName() string                { return u.name }
func (u registrant) WebAuthnCredentials() []webauthn.Credential { return nil }

// NewWebAuthnProvider creates a WebAuthn provider
func NewWebAuthnProvider(deps Deps, cfg WebAuthnConfig) (*WebAuthnProvider, error) {
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = DefaultRPDisplayName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLoginTTL
	}

	w, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring webauthn: %w", err)
	}

	return &WebAuthnProvider{
		base:     base{kind: core.AuthMethodTypeWebAuthn, deps: deps},
		cfg:      cfg,
		webauthn: w,
		now:      time.Now,
	}, nil
}

// BeginLogin issues an assertion challenge for any discoverable credential
func (p *WebAuthnProvider) BeginLogin() (*LoginSession, *protocol.CredentialAssertion, error) {
	options, data, err := p.webauthn.BeginDiscoverableLogin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin webauthn login: %w", err)
	}
	return p.session(data.Challenge), options, nil
}

// BeginRegistration issues a creation challenge for a new credential named username
func (p *WebAuthnProvider) BeginRegistration(username string) (*LoginSession, *protocol.CredentialCreation, error) {
	user := registrant{id: []byte(username), name: username}
	options, data, err := p.webauthn.BeginRegistration(user)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin webauthn registration: %w", err)
	}
	return p.session(data.Challenge), options, nil
}

// Authenticate checks the assertion in opts.Credential against opts.Session
func (p *WebAuthnProvider) Authenticate(_ context.Context, opts AuthenticateOptions) (core.AuthMethod, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(opts.Credential))
	if err != nil {
		return core.AuthMethod{}, fmt.Errorf("%w: parsing assertion: %v", core.ErrAuthentication, err)
	}

	client := parsed.Response.CollectedClientData
	if err := p.checkCeremony(client, protocol.AssertCeremony, parsed.Response.AuthenticatorData.RPIDHash); err != nil {
		return core.AuthMethod{}, err
	}
	if err := opts.Session.consume(p.kind, client.Challenge, p.now()); err != nil {
		return core.AuthMethod{}, err
	}

	return core.AuthMethod{Type: core.AuthMethodTypeWebAuthn, AccessToken: string(opts.Credential)}, nil
}

// Register checks a creation response against session. The returned method
// carries the credential public key and can be minted with.
func (p *WebAuthnProvider) Register(session *LoginSession, creation []byte) (core.AuthMethod, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(creation))
	if err != nil {
		return core.AuthMethod{}, fmt.Errorf("%w: parsing registration: %v", core.ErrAuthentication, err)
	}

	authData := parsed.Response.AttestationObject.AuthData
	if err := p.checkCeremony(parsed.Response.CollectedClientData, protocol.CreateCeremony, authData.RPIDHash); err != nil {
		return core.AuthMethod{}, err
	}
	if len(authData.AttData.CredentialPublicKey) == 0 {
		return core.AuthMethod{}, fmt.Errorf("%w: registration has no credential public key", core.ErrAuthentication)
	}
	if err := session.consume(p.kind, parsed.Response.CollectedClientData.Challenge, p.now()); err != nil {
		return core.AuthMethod{}, err
	}

	return core.AuthMethod{Type: core.AuthMethodTypeWebAuthn, AccessToken: string(creation)}, nil
}

func (p *WebAuthnProvider) checkCeremony(client protocol.CollectedClientData, want protocol.CeremonyType, rpIDHash []byte) error {
	if client.Type != want {
		return fmt.Errorf("%w: ceremony %q, want %q", core.ErrAuthentication, client.Type, want)
	}
	if !slices.Contains(p.cfg.RPOrigins, client.Origin) {
		return fmt.Errorf("%w: origin %q not allowed", core.ErrAuthentication, client.Origin)
	}
	expected := sha256.Sum256([]byte(p.cfg.RPID))
	if !bytes.Equal(rpIDHash, expected[:]) {
		return fmt.Errorf("%w: relying party mismatch", core.ErrAuthentication)
	}
	return nil
}

func (p *WebAuthnProvider) session(challenge string) *LoginSession {
	s := newLoginSession(p.kind, challenge, p.now())
	s.ExpiresAt = p.now().Add(p.cfg.Timeout)
	return s
}
