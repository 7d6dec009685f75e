package ports

import (
	"context"

	"github.com/layer-3/pkpauth/core"
)

// NodeSigner asks a single signing node to delegate a capability to a session key
type NodeSigner interface {
	SignSessionKey(ctx context.Context, node string, req core.SignSessionKeyRequest) (core.AuthSig, error)
}

// SessionSigner produces session signatures for every node
type SessionSigner interface {
	GetSessionSigs(ctx context.Context, params core.SessionSigsParams) (core.SessionSigs, error)
}
