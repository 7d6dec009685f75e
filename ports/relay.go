package ports

import (
	"context"

	"github.com/layer-3/pkpauth/core"
)

// Relay brokers key-record creation and lookup
type Relay interface {
	MintPKP(ctx context.Context, req core.MintRequest) (string, error)
	PollRequestUntilTerminalState(ctx context.Context, requestID string, opts core.PollOptions) (*core.PollStatus, error)
	FetchPKPs(ctx context.Context, req core.FetchRequest) ([]core.PKP, error)
	MintPKPWithAuthMethods(ctx context.Context, methods []core.AuthMethod, opts core.MintOptions) (*core.PKP, error)
}

// AuthMethodResolver derives relay-facing artifacts from an auth method
type AuthMethodResolver interface {
	// AuthMethodID returns the stable identifier the relay indexes key records by.
	AuthMethodID(ctx context.Context, m core.AuthMethod) (string, error)

	// WebAuthnPublicKey extracts the credential public key from a registration response.
	WebAuthnPublicKey(m core.AuthMethod) (string, error)
}
