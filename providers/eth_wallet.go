package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/layer-3/pkpauth/capability"
	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/internal/eth"
)

const (
	DefaultWalletDomain = "localhost"
	DefaultWalletOrigin = "http://localhost"
	DefaultWalletTTL    = 24 * time.Hour

	authSigCachePrefix = "authsig:"
)

// WalletConfig configures the sign-in statements built for wallets
type WalletConfig struct {
	Domain string
	Origin string
	TTL    time.Duration
}

func (c WalletConfig) withDefaults() WalletConfig {
	if c.Domain == "" {
		c.Domain = DefaultWalletDomain
	}
	if c.Origin == "" {
		c.Origin = DefaultWalletOrigin
	}
	if c.TTL <= 0 {
		c.TTL = DefaultWalletTTL
	}
	return c
}

// EthWalletProvider authenticates Ethereum accounts by EIP-191 signatures
type EthWalletProvider struct {
	base
	cfg WalletConfig
	now func() time.Time
}

// NewEthWalletProvider creates a wallet provider
func NewEthWalletProvider(deps Deps, cfg WalletConfig) *EthWalletProvider {
	return &EthWalletProvider{
		base: base{kind: core.AuthMethodTypeEthWallet, deps: deps},
		cfg:  cfg.withDefaults(),
		now:  time.Now,
	}
}

// Authenticate accepts opts.AuthSig, or signs a fresh statement for opts.Address
// through opts.SignMessage. The access token is the AuthSig as JSON.
func (p *EthWalletProvider) Authenticate(ctx context.Context, opts AuthenticateOptions) (core.AuthMethod, error) {
	var (
		sig core.AuthSig
		err error
	)
	switch {
	case opts.AuthSig != nil:
		sig, err = p.checkAuthSig(*opts.AuthSig, opts.Address)
	case opts.Address != "" && opts.SignMessage != nil:
		sig, err = p.signIn(ctx, opts)
	default:
		return core.AuthMethod{}, core.ErrMissingAuthSig
	}
	if err != nil {
		return core.AuthMethod{}, err
	}

	raw, err := json.Marshal(sig)
	if err != nil {
		return core.AuthMethod{}, fmt.Errorf("encoding auth sig: %w", err)
	}
	return core.AuthMethod{Type: core.AuthMethodTypeEthWallet, AccessToken: string(raw)}, nil
}

func (p *EthWalletProvider) checkAuthSig(sig core.AuthSig, address string) (core.AuthSig, error) {
	if sig.Sig == "" || sig.SignedMessage == "" {
		return core.AuthSig{}, core.ErrMissingAuthSig
	}

	statement, err := capability.ParseSIWE(sig.SignedMessage)
	if err != nil {
		return core.AuthSig{}, fmt.Errorf("%w: %v", core.ErrAuthentication, err)
	}
	if address != "" && !eth.SameAddress(statement.Address, address) {
		return core.AuthSig{}, &core.AddressMismatchError{Expected: address, Got: statement.Address}
	}
	if err := eth.VerifyPersonalSign(sig.SignedMessage, sig.Sig, statement.Address); err != nil {
		return core.AuthSig{}, fmt.Errorf("%w: %v", core.ErrAuthentication, err)
	}
	if statement.ExpirationTime != "" {
		if res := capability.ValidateExpirationAt(statement.ExpirationTime, "auth sig", p.now()); !res.Valid {
			return core.AuthSig{}, fmt.Errorf("%w: %s", core.ErrAuthentication, strings.Join(res.Errors, "; "))
		}
	}

	if sig.Address == "" {
		sig.Address = statement.Address
	}
	if sig.DerivedVia == "" {
		sig.DerivedVia = core.DerivedViaPersonalSign
	}
	return sig, nil
}

func (p *EthWalletProvider) signIn(ctx context.Context, opts AuthenticateOptions) (core.AuthSig, error) {
	if !eth.IsAddress(opts.Address) {
		return core.AuthSig{}, fmt.Errorf("%w: %q", eth.ErrInvalidAddress, opts.Address)
	}
	address := common.HexToAddress(opts.Address).Hex()

	if sig, ok := p.cachedAuthSig(ctx, address); ok {
		return sig, nil
	}

	now := p.now().UTC()
	expiration := opts.Expiration
	if expiration.IsZero() {
		expiration = now.Add(p.cfg.TTL)
	}
	chainID, _ := capability.ResolveChainID(opts.Chain)

	statement := capability.SIWE{
		Domain:         p.cfg.Domain,
		Address:        address,
		Statement:      opts.Statement,
		URI:            p.cfg.Origin,
		ChainID:        chainID,
		Nonce:          strings.ReplaceAll(uuid.NewString(), "-", ""),
		IssuedAt:       capability.FormatTime(now),
		ExpirationTime: capability.FormatTime(expiration),
		Resources:      opts.Resources,
	}
	message := statement.String()

	signature, err := opts.SignMessage(ctx, message)
	if err != nil {
		return core.AuthSig{}, fmt.Errorf("failed to sign statement: %w", err)
	}
	recovered, err := eth.RecoverPersonalSign(message, signature)
	if err != nil {
		return core.AuthSig{}, fmt.Errorf("%w: %v", core.ErrAuthentication, err)
	}
	if !eth.SameAddress(recovered, address) {
		return core.AuthSig{}, &core.AddressMismatchError{Expected: address, Got: recovered}
	}

	sig := core.AuthSig{
		Sig:           signature,
		DerivedVia:    core.DerivedViaPersonalSign,
		SignedMessage: message,
		Address:       address,
	}
	p.rememberAuthSig(ctx, sig, expiration.Sub(now))
	return sig, nil
}

func (p *EthWalletProvider) cachedAuthSig(ctx context.Context, address string) (core.AuthSig, bool) {
	store := p.deps.Store
	if store == nil {
		return core.AuthSig{}, false
	}

	raw, err := store.Get(ctx, authSigCacheKey(address))
	if err != nil {
		if !errors.Is(err, core.ErrCacheMiss) {
			p.deps.Logger.Warn().Err(err).Str("address", address).Msg("auth sig cache read failed")
		}
		return core.AuthSig{}, false
	}

	var sig core.AuthSig
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		return core.AuthSig{}, false
	}
	// the cached statement must still verify and be unexpired
	if _, err := p.checkAuthSig(sig, address); err != nil {
		p.deps.Logger.Debug().Err(err).Str("address", address).Msg("discarding cached auth sig")
		return core.AuthSig{}, false
	}
	return sig, true
}

func (p *EthWalletProvider) rememberAuthSig(ctx context.Context, sig core.AuthSig, ttl time.Duration) {
	store := p.deps.Store
	if store == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(sig)
	if err != nil {
		return
	}
	if err := store.Set(ctx, authSigCacheKey(sig.Address), string(raw), ttl); err != nil {
		p.deps.Logger.Warn().Err(err).Str("address", sig.Address).Msg("auth sig cache write failed")
	}
}

func authSigCacheKey(address string) string {
	return authSigCachePrefix + strings.ToLower(address)
}
