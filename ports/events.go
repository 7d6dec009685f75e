package ports

import (
	"context"

	"github.com/layer-3/pkpauth/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishPKPMinted(ctx context.Context, pkp core.PKP, authMethodTypes []core.AuthMethodType) error
	PublishSessionIssued(ctx context.Context, pkpPublicKey, sessionKey, expiration string, nodes []string) error
}
