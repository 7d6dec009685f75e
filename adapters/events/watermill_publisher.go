package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/ports"
)

const (
	TopicPKPMinted     = "pkpauth.pkp_minted"
	TopicSessionIssued = "pkpauth.session_issued"
)

// PKPMintedEvent is published once a mint request reached Succeeded
type PKPMintedEvent struct {
	TokenID         string   `json:"token_id"`
	PublicKey       string   `json:"public_key"`
	EthAddress      string   `json:"eth_address"`
	AuthMethodTypes []string `json:"auth_method_types"`
	MintedAt        int64    `json:"minted_at"`
}

// SessionIssuedEvent is published when session signatures are derived
type SessionIssuedEvent struct {
	PKPPublicKey string   `json:"pkp_public_key"`
	SessionKey   string   `json:"session_key"`
	Expiration   string   `json:"expiration"`
	Nodes        []string `json:"nodes"`
	IssuedAt     int64    `json:"issued_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishPKPMinted publishes a pkp minted event
func (p *WatermillPublisher) PublishPKPMinted(ctx context.Context, pkp core.PKP, authMethodTypes []core.AuthMethodType) error {
	types := make([]string, 0, len(authMethodTypes))
	for _, t := range authMethodTypes {
		types = append(types, t.String())
	}

	return p.publish(ctx, TopicPKPMinted, PKPMintedEvent{
		TokenID:         pkp.TokenID,
		PublicKey:       pkp.PublicKey,
		EthAddress:      pkp.EthAddress,
		AuthMethodTypes: types,
		MintedAt:        time.Now().Unix(),
	})
}

// PublishSessionIssued publishes a session issued event
func (p *WatermillPublisher) PublishSessionIssued(ctx context.Context, pkpPublicKey, sessionKey, expiration string, nodes []string) error {
	return p.publish(ctx, TopicSessionIssued, SessionIssuedEvent{
		PKPPublicKey: pkpPublicKey,
		SessionKey:   sessionKey,
		Expiration:   expiration,
		Nodes:        nodes,
		IssuedAt:     time.Now().Unix(),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
