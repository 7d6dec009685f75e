package providers

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/pkpauth/core"
)

const (
	testRPID   = "example.com"
	testOrigin = "https://example.com"
)

type fakeRelay struct {
	mints   []core.MintRequest
	fetches []core.FetchRequest
	pkps    []core.PKP
	err     error
}

func (f *fakeRelay) MintPKP(_ context.Context, req core.MintRequest) (string, error) {
	f.mints = append(f.mints, req)
	return "req-1", f.err
}

func (f *fakeRelay) PollRequestUntilTerminalState(context.Context, string, core.PollOptions) (*core.PollStatus, error) {
	return &core.PollStatus{Status: core.PollStatusSucceeded}, f.err
}

func (f *fakeRelay) FetchPKPs(_ context.Context, req core.FetchRequest) ([]core.PKP, error) {
	f.fetches = append(f.fetches, req)
	return f.pkps, f.err
}

func (f *fakeRelay) MintPKPWithAuthMethods(context.Context, []core.AuthMethod, core.MintOptions) (*core.PKP, error) {
	return &core.PKP{}, f.err
}

type fakeSessions struct {
	calls []core.SessionSigsParams
}

func (f *fakeSessions) GetSessionSigs(_ context.Context, params core.SessionSigsParams) (core.SessionSigs, error) {
	f.calls = append(f.calls, params)
	return core.SessionSigs{"https://node-1": {Sig: "sig"}}, nil
}

func signedToken(t *testing.T, sub, aud string, issuedAt, expiresAt time.Time) string {
	t.Helper()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{aud},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        issuedAt.String(),
		},
		Email: sub + "@example.com",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func clientData(t *testing.T, ceremony, challenge, origin string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"type":      ceremony,
		"challenge": challenge,
		"origin":    origin,
	})
	require.NoError(t, err)
	return b64(raw)
}

func authenticatorData(rpID string, flags byte, attested []byte) []byte {
	hash := sha256.Sum256([]byte(rpID))
	data := append([]byte{}, hash[:]...)
	data = append(data, flags)
	data = binary.BigEndian.AppendUint32(data, 1)
	return append(data, attested...)
}

func assertion(t *testing.T, rawID []byte, ceremony, challenge, origin, rpID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":    b64(rawID),
		"rawId": b64(rawID),
		"type":  "public-key",
		"response": map[string]string{
			"clientDataJSON":    clientData(t, ceremony, challenge, origin),
			"authenticatorData": b64(authenticatorData(rpID, 0x05, nil)),
			"signature":         b64([]byte{0x30, 0x01, 0x02}),
			"userHandle":        b64([]byte("alice")),
		},
	})
	require.NoError(t, err)
	return body
}

// coseKey returns an EC2 P-256 COSE key with fixed coordinates
func coseKey(t *testing.T) []byte {
	t.Helper()
	x := make([]byte, 32)
	y := make([]byte, 32)
	for i := range x {
		x[i] = byte(i + 1)
		y[i] = byte(64 - i)
	}
	key, err := webauthncbor.Marshal(map[int]any{1: 2, 3: -7, -1: 1, -2: x, -3: y})
	require.NoError(t, err)
	return key
}

func registration(t *testing.T, rawID []byte, challenge, origin, rpID string) []byte {
	t.Helper()

	attested := make([]byte, 16) // aaguid
	attested = binary.BigEndian.AppendUint16(attested, uint16(len(rawID)))
	attested = append(attested, rawID...)
	attested = append(attested, coseKey(t)...)

	object, err := webauthncbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authenticatorData(rpID, 0x41, attested),
	})
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"id":    b64(rawID),
		"rawId": b64(rawID),
		"type":  "public-key",
		"response": map[string]string{
			"clientDataJSON":    clientData(t, "webauthn.create", challenge, origin),
			"attestationObject": b64(object),
		},
	})
	require.NoError(t, err)
	return body
}

const time1h = time.Hour

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
