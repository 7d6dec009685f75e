package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/pkpauth/capability"
	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/internal/metrics"
	"github.com/layer-3/pkpauth/ports"
	"github.com/layer-3/pkpauth/sessionkey"
)

// DefaultSessionTTL applies when a request carries no expiration
const DefaultSessionTTL = 24 * time.Hour

var ErrNoNodes = errors.New("no signing nodes configured")

// Generator derives one session signature per signing node
type Generator struct {
	nodes  []string
	signer ports.NodeSigner
	logger zerolog.Logger

	ttl    time.Duration
	now    func() time.Time
	newKey func() (*sessionkey.KeyPair, error)
}

var _ ports.SessionSigner = (*Generator)(nil)

// GeneratorOption configures a Generator
type GeneratorOption func(*Generator)

// WithLogger sets the generator logger
func WithLogger(logger zerolog.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = logger }
}

// WithSessionTTL sets the expiration used when a request has none
func WithSessionTTL(ttl time.Duration) GeneratorOption {
	return func(g *Generator) { g.ttl = ttl }
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithSessionKey makes every call delegate to key instead of a fresh one
func WithSessionKey(key *sessionkey.KeyPair) GeneratorOption {
	return func(g *Generator) {
		g.newKey = func() (*sessionkey.KeyPair, error) { return key, nil }
	}
}

// NewGenerator creates a generator requesting delegations from nodes through signer
func NewGenerator(nodes []string, signer ports.NodeSigner, opts ...GeneratorOption) *Generator {
	g := &Generator{
		nodes:  append([]string(nil), nodes...),
		signer: signer,
		logger: zerolog.Nop(),
		ttl:    DefaultSessionTTL,
		now:    time.Now,
		newKey: sessionkey.Generate,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Nodes returns the node URLs signatures are requested from
func (g *Generator) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// GetSessionSigs asks every node, concurrently, to delegate the requested
// abilities over the PKP to a session key. A single node failure fails the call.
func (g *Generator) GetSessionSigs(ctx context.Context, params core.SessionSigsParams) (core.SessionSigs, error) {
	if len(g.nodes) == 0 {
		return nil, ErrNoNodes
	}
	if params.PKPPublicKey == "" {
		return nil, &core.ValidationError{Errors: []string{"pkpPublicKey is required"}}
	}

	now := g.now().UTC()
	expiration, err := g.expiration(params.Expiration, now)
	if err != nil {
		return nil, err
	}

	resources := []string{}
	if len(params.ResourceAbilityRequests) > 0 {
		urn, err := capability.EncodeRecap(params.ResourceAbilityRequests)
		if err != nil {
			return nil, fmt.Errorf("failed to encode resources: %w", err)
		}
		resources = append(resources, urn)
	}

	key, err := g.newKey()
	if err != nil {
		return nil, err
	}

	req := core.SignSessionKeyRequest{
		SessionKey:   key.URI(),
		PKPPublicKey: params.PKPPublicKey,
		Expiration:   expiration,
		Resources:    resources,
		Statement:    params.Statement,
		ChainID:      g.chainID(params.Chain),
	}

	// capabilities carried into every envelope besides the node's own
	var extra []core.AuthSig

	switch params.AuthMethod.Type {
	case core.AuthMethodTypeEthWallet:
		authSig, err := walletAuthSig(params.AuthMethod)
		if err != nil {
			return nil, err
		}
		req.AuthSig = &authSig
		req.AuthMethods = []core.AuthMethod{}
		extra = append(extra, authSig)

	case core.AuthMethodTypeWebAuthn,
		core.AuthMethodTypeDiscord,
		core.AuthMethodTypeGoogleJWT,
		core.AuthMethodTypeStytchOTP:
		req.AuthMethods = []core.AuthMethod{params.AuthMethod}

	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedAuthMethod, params.AuthMethod.Type)
	}

	var mu sync.Mutex
	sigs := make(core.SessionSigs, len(g.nodes))

	grp, gctx := errgroup.WithContext(ctx)
	for _, node := range g.nodes {
		grp.Go(func() error {
			nodeReq := req
			nodeReq.Nonce = uuid.NewString()

			start := time.Now()
			delegation, err := g.signer.SignSessionKey(gctx, node, nodeReq)
			metrics.NodeRequestDuration.WithLabelValues(metrics.Outcome(err)).Observe(time.Since(start).Seconds())
			if err != nil {
				return fmt.Errorf("failed to sign session key with %s: %w", node, err)
			}

			sig, err := key.SignEnvelope(core.SessionEnvelope{
				ResourceAbilityRequests: params.ResourceAbilityRequests,
				Capabilities:            append([]core.AuthSig{delegation}, extra...),
				IssuedAt:                capability.FormatTime(now),
				Expiration:              expiration,
				NodeAddress:             node,
			})
			if err != nil {
				return err
			}

			mu.Lock()
			sigs[node] = sig
			mu.Unlock()
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}

	metrics.SessionSigsIssued.Inc()
	g.logger.Debug().
		Str("pkp", params.PKPPublicKey).
		Str("session_key", key.PublicKey()).
		Int("nodes", len(sigs)).
		Msg("session signatures issued")

	return sigs, nil
}

func (g *Generator) expiration(raw string, now time.Time) (string, error) {
	if raw == "" {
		return capability.FormatTime(now.Add(g.ttl)), nil
	}
	t, err := capability.ParseTime(raw)
	if err != nil {
		return "", &core.ValidationError{Errors: []string{fmt.Sprintf("Invalid Expiration Time format in request: %s", raw)}}
	}
	return capability.FormatTime(t), nil
}

func (g *Generator) chainID(name string) int64 {
	id, ok := capability.ResolveChainID(name)
	if !ok {
		g.logger.Warn().
			Str("chain", name).
			Int64("chain_id", id).
			Msg("unknown chain, falling back")
	}
	return id
}

func walletAuthSig(m core.AuthMethod) (core.AuthSig, error) {
	if m.AccessToken == "" {
		return core.AuthSig{}, core.ErrMissingAuthSig
	}
	sig, err := core.ParseAuthSig(m.AccessToken)
	if err != nil {
		if errors.Is(err, core.ErrMissingAuthSig) {
			return core.AuthSig{}, err
		}
		return core.AuthSig{}, fmt.Errorf("%w: %v", core.ErrMissingAuthSig, err)
	}
	return sig, nil
}
