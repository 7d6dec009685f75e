package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/layer-3/pkpauth/capability"
	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/internal/eth"
	"github.com/layer-3/pkpauth/internal/metrics"
	"github.com/layer-3/pkpauth/ports"
)

// AuthService ties the relay, the session generator and the session cache together
type AuthService struct {
	relay    ports.Relay
	resolver ports.AuthMethodResolver
	signer   ports.SessionSigner
	store    ports.Store
	eventPub ports.EventPublisher
	logger   zerolog.Logger

	now func() time.Time
}

var _ ports.SessionSigner = (*AuthService)(nil)

// NewAuthService creates a new auth service. store and eventPub may be nil.
func NewAuthService(
	relay ports.Relay,
	resolver ports.AuthMethodResolver,
	signer ports.SessionSigner,
	store ports.Store,
	eventPub ports.EventPublisher,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		relay:    relay,
		resolver: resolver,
		signer:   signer,
		store:    store,
		eventPub: eventPub,
		logger:   logger,
		now:      time.Now,
	}
}

// AuthMethodID derives the relay lookup key of an auth method
func (s *AuthService) AuthMethodID(ctx context.Context, m core.AuthMethod) (string, error) {
	id, err := s.resolver.AuthMethodID(ctx, m)
	if err != nil {
		return "", fmt.Errorf("failed to derive auth method id: %w", err)
	}
	return id, nil
}

// FetchPKPs lists the key records bound to an auth method
func (s *AuthService) FetchPKPs(ctx context.Context, m core.AuthMethod) ([]core.PKP, error) {
	id, err := s.AuthMethodID(ctx, m)
	if err != nil {
		return nil, err
	}

	pkps, err := s.relay.FetchPKPs(ctx, core.FetchRequest{AuthMethodType: m.Type, AuthMethodID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pkps: %w", err)
	}
	return pkps, nil
}

// MintPKP mints one key record bound to every given auth method and waits for it
func (s *AuthService) MintPKP(ctx context.Context, methods []core.AuthMethod, opts core.MintOptions) (*core.PKP, error) {
	pkp, err := s.relay.MintPKPWithAuthMethods(ctx, methods, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to mint pkp: %w", err)
	}

	s.logger.Info().
		Str("token_id", pkp.TokenID).
		Str("eth_address", pkp.EthAddress).
		Msg("pkp minted")

	if s.eventPub != nil {
		types := make([]core.AuthMethodType, 0, len(methods))
		for _, m := range methods {
			types = append(types, m.Type)
		}
		if err := s.eventPub.PublishPKPMinted(ctx, *pkp, types); err != nil {
			s.logger.Error().Err(err).Str("token_id", pkp.TokenID).Msg("failed to publish pkp minted event")
		}
	}

	return pkp, nil
}

// cachedSessionSigs is a cache entry. Proof fingerprints the access token
// the signatures were derived with; a hit requires the caller to present it again.
type cachedSessionSigs struct {
	Proof string           `json:"proof"`
	Sigs  core.SessionSigs `json:"sigs"`
}

// SessionSigs returns cached session signatures when they still validate and
// the caller presents the same proof, and derives fresh ones otherwise
func (s *AuthService) SessionSigs(ctx context.Context, params core.SessionSigsParams) (core.SessionSigs, error) {
	if err := verifyWalletProof(params.AuthMethod); err != nil {
		return nil, err
	}

	key, err := s.cacheKey(ctx, params)
	if err != nil {
		return nil, err
	}
	proof := proofOf(params.AuthMethod)

	if cached, ok := s.cached(ctx, key, proof); ok {
		return cached, nil
	}

	sigs, err := s.signer.GetSessionSigs(ctx, params)
	if err != nil {
		return nil, err
	}

	s.remember(ctx, key, proof, sigs)

	if s.eventPub != nil {
		sessionKey, expiration := envelopeSummary(sigs)
		if err := s.eventPub.PublishSessionIssued(ctx, params.PKPPublicKey, sessionKey, expiration, sortedNodes(sigs)); err != nil {
			s.logger.Error().Err(err).Str("pkp", params.PKPPublicKey).Msg("failed to publish session issued event")
		}
	}

	return sigs, nil
}

// GetSessionSigs is SessionSigs, letting the service stand in for a bare generator
func (s *AuthService) GetSessionSigs(ctx context.Context, params core.SessionSigsParams) (core.SessionSigs, error) {
	return s.SessionSigs(ctx, params)
}

// InvalidateSessionSigs drops the cached session signatures for params
func (s *AuthService) InvalidateSessionSigs(ctx context.Context, params core.SessionSigsParams) error {
	if s.store == nil {
		return nil
	}
	key, err := s.cacheKey(ctx, params)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, key)
}

// ValidateSessionSigs validates a session signature map against the current clock
func (s *AuthService) ValidateSessionSigs(sigs core.SessionSigs) core.ValidationResult {
	result := ValidateSessionSigsAt(sigs, s.now())
	metrics.Validations.WithLabelValues(validationLabel(result)).Inc()
	return result
}

func (s *AuthService) cached(ctx context.Context, key, proof string) (core.SessionSigs, bool) {
	if s.store == nil {
		return nil, false
	}

	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, core.ErrCacheMiss) {
			s.logger.Warn().Err(err).Msg("session cache read failed")
		}
		metrics.SessionCache.WithLabelValues("miss").Inc()
		return nil, false
	}

	var entry cachedSessionSigs
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.logger.Warn().Err(err).Msg("discarding undecodable cached session")
		metrics.SessionCache.WithLabelValues("stale").Inc()
		return nil, false
	}

	if subtle.ConstantTimeCompare([]byte(entry.Proof), []byte(proof)) != 1 {
		s.logger.Debug().Msg("cached session derived with another proof")
		metrics.SessionCache.WithLabelValues("miss").Inc()
		return nil, false
	}

	sigs := entry.Sigs
	if res := ValidateSessionSigsAt(sigs, s.now()); !res.Valid {
		s.logger.Debug().Strs("errors", res.Errors).Msg("cached session no longer valid")
		metrics.SessionCache.WithLabelValues("stale").Inc()
		return nil, false
	}

	metrics.SessionCache.WithLabelValues("hit").Inc()
	return sigs, true
}

func (s *AuthService) remember(ctx context.Context, key, proof string, sigs core.SessionSigs) {
	if s.store == nil {
		return
	}

	_, expiration := envelopeSummary(sigs)
	exp, err := capability.ParseTime(expiration)
	if err != nil {
		return
	}
	ttl := exp.Sub(s.now())
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(cachedSessionSigs{Proof: proof, Sigs: sigs})
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, key, string(raw), ttl); err != nil {
		s.logger.Warn().Err(err).Msg("session cache write failed")
	}
}

// cacheKey fingerprints the identity, the PKP and the requested resource set
func (s *AuthService) cacheKey(ctx context.Context, params core.SessionSigsParams) (string, error) {
	id, err := s.AuthMethodID(ctx, params.AuthMethod)
	if err != nil {
		return "", err
	}

	abilities := make([]string, 0, len(params.ResourceAbilityRequests))
	for _, r := range params.ResourceAbilityRequests {
		abilities = append(abilities, r.Resource.Key()+"#"+r.Ability)
	}
	sort.Strings(abilities)

	return eth.Keccak256Hex(strings.Join([]string{
		id,
		strings.ToLower(params.PKPPublicKey),
		strings.Join(abilities, ","),
	}, "|")), nil
}

// proofOf fingerprints the credential an auth method was presented with
func proofOf(m core.AuthMethod) string {
	return eth.Keccak256Hex(m.Type.String() + ":" + m.AccessToken)
}

// verifyWalletProof checks the EIP-191 signature of a wallet auth method.
// Other methods carry tokens only the nodes can verify.
func verifyWalletProof(m core.AuthMethod) error {
	if m.Type != core.AuthMethodTypeEthWallet {
		return nil
	}
	sig, err := walletAuthSig(m)
	if err != nil {
		return err
	}
	if err := eth.VerifyPersonalSign(sig.SignedMessage, sig.Sig, sig.Address); err != nil {
		return fmt.Errorf("%w: wallet signature: %v", core.ErrAuthentication, err)
	}
	return nil
}

func envelopeSummary(sigs core.SessionSigs) (sessionKey, expiration string) {
	for _, node := range sortedNodes(sigs) {
		var env core.SessionEnvelope
		if err := json.Unmarshal([]byte(sigs[node].SignedMessage), &env); err == nil {
			return env.SessionKey, env.Expiration
		}
	}
	return "", ""
}

func sortedNodes(sigs core.SessionSigs) []string {
	nodes := sigs.Nodes()
	sort.Strings(nodes)
	return nodes
}

func validationLabel(r core.ValidationResult) string {
	if r.Valid {
		return "valid"
	}
	return "invalid"
}
