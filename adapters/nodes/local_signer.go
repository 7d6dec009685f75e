package nodes

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/layer-3/pkpauth/capability"
	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/internal/eth"
	"github.com/layer-3/pkpauth/ports"
)

// AuthMethodCheck decides whether an auth method may act for a PKP
type AuthMethodCheck func(ctx context.Context, pkpPublicKey string, m core.AuthMethod) error

// LocalSigner signs delegations in process with one ECDSA key, standing in
// for a node network in development and tests
type LocalSigner struct {
	key    *ecdsa.PrivateKey
	domain string
	check  AuthMethodCheck
	now    func() time.Time
}

var _ ports.NodeSigner = (*LocalSigner)(nil)

// NewLocalSigner creates a local signer. A nil check accepts every auth method.
func NewLocalSigner(key *ecdsa.PrivateKey, domain string, check AuthMethodCheck) *LocalSigner {
	if domain == "" {
		domain = "localhost"
	}
	return &LocalSigner{key: key, domain: domain, check: check, now: time.Now}
}

// Address is the address capabilities are signed by
func (s *LocalSigner) Address() string {
	return eth.Address(s.key)
}

// SignSessionKey authenticates req and signs a capability delegating to its session key
func (s *LocalSigner) SignSessionKey(ctx context.Context, node string, req core.SignSessionKeyRequest) (core.AuthSig, error) {
	if err := s.authenticate(ctx, req); err != nil {
		return core.AuthSig{}, &core.NodeError{Node: node, StatusCode: 401, Message: err.Error()}
	}

	msg := capability.SIWE{
		Domain:         s.domain,
		Address:        s.Address(),
		Statement:      req.Statement,
		URI:            req.SessionKey,
		Version:        "1",
		ChainID:        req.ChainID,
		Nonce:          req.Nonce,
		IssuedAt:       capability.FormatTime(s.now()),
		ExpirationTime: req.Expiration,
		Resources:      req.Resources,
	}
	text := msg.String()

	sig, err := eth.PersonalSign(s.key, text)
	if err != nil {
		return core.AuthSig{}, err
	}

	return core.AuthSig{
		Sig:           sig,
		DerivedVia:    core.DerivedViaPersonalSign,
		SignedMessage: text,
		Address:       msg.Address,
	}, nil
}

func (s *LocalSigner) authenticate(ctx context.Context, req core.SignSessionKeyRequest) error {
	if req.AuthSig != nil {
		if err := eth.VerifyPersonalSign(req.AuthSig.SignedMessage, req.AuthSig.Sig, req.AuthSig.Address); err != nil {
			return fmt.Errorf("wallet signature: %w", err)
		}
		_, res := capability.ParseCapabilitiesAt([]core.AuthSig{*req.AuthSig}, s.now())
		if err := res.Err(); err != nil {
			return err
		}
		return nil
	}

	if len(req.AuthMethods) == 0 {
		return core.ErrNoAuthMethods
	}
	if s.check == nil {
		return nil
	}
	for _, m := range req.AuthMethods {
		if err := s.check(ctx, req.PKPPublicKey, m); err != nil {
			return err
		}
	}
	return nil
}
