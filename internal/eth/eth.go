package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidAddress   = errors.New("invalid ethereum address")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// Keccak256Hex hashes the UTF-8 bytes of s and returns the 0x-prefixed digest
func Keccak256Hex(s string) string {
	return crypto.Keccak256Hash([]byte(s)).Hex()
}

// IsAddress reports whether s is a 20-byte hex address
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}

// SameAddress compares two addresses case-insensitively
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// PersonalSign signs message the way eth_sign / personal_sign does (EIP-191)
func PersonalSign(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverPersonalSign returns the checksummed address that produced signature over message
func RecoverPersonalSign(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("failed to decode signature: %w", ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, ErrInvalidSignature)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// VerifyPersonalSign checks that signature over message was produced by address
func VerifyPersonalSign(message, signature, address string) error {
	if !IsAddress(address) {
		return ErrInvalidAddress
	}
	recovered, err := RecoverPersonalSign(message, signature)
	if err != nil {
		return err
	}
	if !SameAddress(recovered, address) {
		return fmt.Errorf("recovered %s: %w", recovered, ErrInvalidSignature)
	}
	return nil
}

// AddressFromPublicKey derives the address of an uncompressed or compressed hex public key
func AddressFromPublicKey(publicKey string) (string, error) {
	raw, err := hexutil.Decode(ensure0x(publicKey))
	if err != nil {
		return "", fmt.Errorf("decoding public key: %w", ErrInvalidPublicKey)
	}

	var pub *ecdsa.PublicKey
	switch len(raw) {
	case 33:
		pub, err = crypto.DecompressPubkey(raw)
	case 65:
		pub, err = crypto.UnmarshalPubkey(raw)
	default:
		return "", fmt.Errorf("invalid public key length %d: %w", len(raw), ErrInvalidPublicKey)
	}
	if err != nil {
		return "", fmt.Errorf("parsing public key: %w", ErrInvalidPublicKey)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// KeyFromHex parses a hex ECDSA private key, with or without 0x
func KeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// GenerateKey returns a fresh secp256k1 key
func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// Address returns the checksummed address of key
func Address(key *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

// PublicKeyHex returns the 0x-prefixed uncompressed public key of key
func PublicKeyHex(key *ecdsa.PrivateKey) string {
	return hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey))
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "0x" + s[2:]
	}
	return "0x" + s
}
