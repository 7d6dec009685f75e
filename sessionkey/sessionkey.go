// Package sessionkey holds the ephemeral ed25519 key a session is delegated to.
package sessionkey

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/sign"

	"github.com/layer-3/pkpauth/core"
)

// URIPrefix marks a session key in delegation statements
const URIPrefix = "lit:session:"

var (
	ErrInvalidKey       = errors.New("invalid session key")
	ErrInvalidSignature = errors.New("invalid session signature")
)

// KeyPair is an ed25519 session key
type KeyPair struct {
	public  *[32]byte
	private *[64]byte
}

// Generate creates a fresh session key
func Generate() (*KeyPair, error) {
	pub, priv, err := sign.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	return &KeyPair{public: pub, private: priv}, nil
}

// FromSecret restores a key pair from its hex encoded 64-byte secret
func FromSecret(secret string) (*KeyPair, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(secret, "0x"))
	if err != nil || len(raw) != 64 {
		return nil, ErrInvalidKey
	}

	var priv [64]byte
	var pub [32]byte
	copy(priv[:], raw)
	// the upper half of an ed25519 secret is the public key
	copy(pub[:], raw[32:])

	return &KeyPair{public: &pub, private: &priv}, nil
}

// PublicKey returns the hex encoded public key
func (k *KeyPair) PublicKey() string {
	return hex.EncodeToString(k.public[:])
}

// Secret returns the hex encoded secret
func (k *KeyPair) Secret() string {
	return hex.EncodeToString(k.private[:])
}

// URI returns the session key in the form nodes delegate to
func (k *KeyPair) URI() string {
	return URIPrefix + k.PublicKey()
}

// Sign returns the hex encoded detached signature over message
func (k *KeyPair) Sign(message []byte) string {
	signed := sign.Sign(nil, message, k.private)
	return hex.EncodeToString(signed[:sign.Overhead])
}

// SignEnvelope serializes env and signs it, producing one session signature
func (k *KeyPair) SignEnvelope(env core.SessionEnvelope) (core.AuthSig, error) {
	env.SessionKey = k.PublicKey()

	raw, err := json.Marshal(env)
	if err != nil {
		return core.AuthSig{}, fmt.Errorf("failed to encode session envelope: %w", err)
	}

	return core.AuthSig{
		Sig:           k.Sign(raw),
		DerivedVia:    core.DerivedViaEd25519,
		SignedMessage: string(raw),
		Address:       k.PublicKey(),
	}, nil
}

// Verify checks a detached signature produced by Sign
func Verify(publicKey string, message []byte, signature string) error {
	rawPub, err := hex.DecodeString(strings.TrimPrefix(publicKey, URIPrefix))
	if err != nil || len(rawPub) != 32 {
		return ErrInvalidKey
	}
	rawSig, err := hex.DecodeString(signature)
	if err != nil || len(rawSig) != sign.Overhead {
		return ErrInvalidSignature
	}

	var pub [32]byte
	copy(pub[:], rawPub)

	signed := append(rawSig, message...)
	if _, ok := sign.Open(nil, signed, &pub); !ok {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyAuthSig checks an ed25519 session signature against the key in its Address
func VerifyAuthSig(sig core.AuthSig) error {
	if sig.DerivedVia != core.DerivedViaEd25519 {
		return fmt.Errorf("%w: derived via %q", ErrInvalidSignature, sig.DerivedVia)
	}
	return Verify(sig.Address, []byte(sig.SignedMessage), sig.Sig)
}
