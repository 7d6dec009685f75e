// Package pkpauth wires the PKP auth pipeline: providers turn identity proofs
// into auth methods, the relay mints and looks up PKPs, and the session
// generator derives per-node session signatures that can be validated offline.
package pkpauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/layer-3/pkpauth/adapters/events"
	"github.com/layer-3/pkpauth/adapters/nodes"
	"github.com/layer-3/pkpauth/adapters/relay"
	"github.com/layer-3/pkpauth/adapters/store"
	"github.com/layer-3/pkpauth/config"
	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/internal/eth"
	pkplog "github.com/layer-3/pkpauth/internal/log"
	"github.com/layer-3/pkpauth/internal/ratelimit"
	"github.com/layer-3/pkpauth/ports"
	"github.com/layer-3/pkpauth/providers"
	"github.com/layer-3/pkpauth/service"
	transport "github.com/layer-3/pkpauth/transport/http"
)

// Client represents the public interface of the auth pipeline
type Client interface {
	// Provider returns the provider for an auth method kind
	Provider(kind core.AuthMethodType) (providers.Provider, error)

	// AuthMethodID derives the relay identifier of an auth method
	AuthMethodID(ctx context.Context, m core.AuthMethod) (string, error)

	// FetchPKPs lists the PKPs bound to an auth method
	FetchPKPs(ctx context.Context, m core.AuthMethod) ([]core.PKP, error)

	// MintPKP mints a PKP bound to every given auth method
	MintPKP(ctx context.Context, methods []core.AuthMethod, opts core.MintOptions) (*core.PKP, error)

	// SessionSigs derives, or reuses, session signatures for a PKP
	SessionSigs(ctx context.Context, params core.SessionSigsParams) (core.SessionSigs, error)

	// ValidateSessionSigs checks session signatures offline
	ValidateSessionSigs(sigs core.SessionSigs) core.ValidationResult

	// Close releases the event publisher and the Redis connection
	Close() error
}

// Service is the Client built from a config.Config
type Service struct {
	*service.AuthService

	cfg       *config.Config
	logger    zerolog.Logger
	deps      providers.Deps
	provCfg   providers.Config
	relay     *relay.Client
	publisher message.Publisher
	redis     redis.UniversalClient

	mu        sync.Mutex
	providers map[core.AuthMethodType]providers.Provider
}

var _ Client = (*Service)(nil)

// New wires every component described by cfg
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	s := &Service{
		cfg:       cfg,
		logger:    logger,
		providers: make(map[core.AuthMethodType]providers.Provider),
	}

	resolver := newResolver(cfg)

	relayOpts := []relay.Option{
		relay.WithResolver(resolver),
		relay.WithLogger(logger.With().Str("component", "relay").Logger()),
	}
	if cfg.Relay.RateLimit > 0 {
		relayOpts = append(relayOpts, relay.WithRateLimit(cfg.Relay.RateLimit, cfg.Relay.RateBurst))
	}
	s.relay = relay.New(cfg.Relay.URL, cfg.Relay.APIKey, relayOpts...)

	signer, err := newNodeSigner(cfg, s.relay, resolver, logger)
	if err != nil {
		return nil, err
	}
	generator := service.NewGenerator(cfg.Nodes.URLs, signer,
		service.WithLogger(logger.With().Str("component", "generator").Logger()),
		service.WithSessionTTL(cfg.Session.TTL),
	)

	sessionStore, err := s.connect()
	if err != nil {
		return nil, err
	}

	s.AuthService = service.NewAuthService(s.relay, resolver, generator, sessionStore,
		events.NewWatermillPublisher(s.publisher), logger)

	s.deps = providers.Deps{
		Relay:    s.relay,
		Sessions: s.AuthService,
		Resolver: resolver,
		Logger:   logger.With().Str("component", "providers").Logger(),
	}
	s.provCfg, err = providerConfig(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// connect builds the session store and the event publisher, on Redis when configured
func (s *Service) connect() (ports.Store, error) {
	wmLogger := pkplog.NewWatermillAdapter(s.logger.With().Str("component", "events").Logger())

	if s.cfg.Redis.URL == "" {
		s.publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		return store.NewMemoryStore(), nil
	}

	opts, err := redis.ParseURL(s.cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	s.redis = client
	s.publisher = publisher
	return store.NewRedisStore(client, s.cfg.Redis.Prefix), nil
}

// MintPKP mints a PKP, polling at the configured cadence unless opts says otherwise
func (s *Service) MintPKP(ctx context.Context, methods []core.AuthMethod, opts core.MintOptions) (*core.PKP, error) {
	if opts.Poll.Interval == 0 {
		opts.Poll.Interval = s.cfg.Relay.PollInterval
	}
	if opts.Poll.MaxPolls == 0 {
		opts.Poll.MaxPolls = s.cfg.Relay.MaxPolls
	}
	return s.AuthService.MintPKP(ctx, methods, opts)
}

// Provider returns the provider for kind, building it on first use
func (s *Service) Provider(kind core.AuthMethodType) (providers.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.providers[kind]; ok {
		return p, nil
	}
	p, err := providers.New(kind, s.deps, s.provCfg)
	if err != nil {
		return nil, err
	}
	s.providers[kind] = p
	return p, nil
}

// Handler returns the HTTP API over this service
func (s *Service) Handler() http.Handler {
	limiter := ratelimit.New(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst, 0)
	return transport.SetupRouter(s, limiter, s.logger.With().Str("component", "http").Logger())
}

// Close releases the event publisher and the Redis connection
func (s *Service) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

func newResolver(cfg *config.Config) *providers.Resolver {
	var opts []providers.ResolverOption
	if cfg.Providers.AppID != "" {
		opts = append(opts, providers.WithAppID(cfg.Providers.AppID))
	}
	if cfg.Providers.Discord.ClientID != "" {
		opts = append(opts, providers.WithDiscordClientID(cfg.Providers.Discord.ClientID))
	}
	if cfg.Providers.Discord.APIURL != "" {
		opts = append(opts, providers.WithDiscordAPI(cfg.Providers.Discord.APIURL))
	}
	return providers.NewResolver(opts...)
}

// newNodeSigner talks to the configured nodes over HTTP, or signs in process
// when a local key is configured
func newNodeSigner(cfg *config.Config, r ports.Relay, resolver ports.AuthMethodResolver, logger zerolog.Logger) (ports.NodeSigner, error) {
	if cfg.Nodes.LocalKey == "" {
		return nodes.NewHTTPSigner(&http.Client{Timeout: cfg.Nodes.Timeout}), nil
	}

	key, err := eth.KeyFromHex(cfg.Nodes.LocalKey)
	if err != nil {
		return nil, fmt.Errorf("nodes.local_key: %w", err)
	}
	signer := nodes.NewLocalSigner(key, cfg.Nodes.LocalDomain, pkpBinding(r, resolver))
	logger.Warn().Str("address", signer.Address()).Msg("signing session keys locally")
	return signer, nil
}

// pkpBinding accepts an auth method only when the relay lists the PKP under it
func pkpBinding(r ports.Relay, resolver ports.AuthMethodResolver) nodes.AuthMethodCheck {
	return func(ctx context.Context, pkpPublicKey string, m core.AuthMethod) error {
		id, err := resolver.AuthMethodID(ctx, m)
		if err != nil {
			return err
		}
		pkps, err := r.FetchPKPs(ctx, core.FetchRequest{AuthMethodType: m.Type, AuthMethodID: id})
		if err != nil {
			return err
		}
		bound := slices.ContainsFunc(pkps, func(p core.PKP) bool {
			return strings.EqualFold(p.PublicKey, pkpPublicKey)
		})
		if !bound {
			return fmt.Errorf("%w: %s is not bound to the pkp", core.ErrAuthentication, m.Type)
		}
		return nil
	}
}

func providerConfig(ctx context.Context, cfg *config.Config) (providers.Config, error) {
	p := cfg.Providers
	out := providers.Config{
		Wallet: providers.WalletConfig{
			Domain: p.Wallet.Domain,
			Origin: p.Wallet.Origin,
			TTL:    p.Wallet.TTL,
		},
		Google: providers.OAuthConfig{
			LoginURL:    p.Google.LoginURL,
			RedirectURI: p.Google.RedirectURI,
			ClientID:    p.Google.ClientID,
		},
		Discord: providers.OAuthConfig{
			LoginURL:    p.Discord.LoginURL,
			RedirectURI: p.Discord.RedirectURI,
			ClientID:    p.Discord.ClientID,
		},
		WebAuthn: providers.WebAuthnConfig{
			RPID:          p.WebAuthn.RPID,
			RPDisplayName: p.WebAuthn.RPDisplayName,
			RPOrigins:     p.WebAuthn.RPOrigins,
			Timeout:       p.WebAuthn.Timeout,
		},
	}

	if p.Google.VerifyTokens {
		verifier, err := providers.NewGoogleVerifier(ctx, p.Google.ClientID)
		if err != nil {
			return providers.Config{}, err
		}
		out.GoogleVerifier = verifier
	}
	return out, nil
}
