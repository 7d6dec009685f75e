package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-webauthn/webauthn/protocol"

	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/internal/eth"
	"github.com/layer-3/pkpauth/ports"
)

const (
	DefaultAppID           = "lit"
	DefaultDiscordClientID = "105287423965869266"
	DefaultDiscordAPI      = "https://discord.com/api"
)

// Resolver derives relay identifiers and registration keys from auth methods
type Resolver struct {
	appID           string
	discordClientID string
	discordAPI      string
	httpClient      *http.Client
}

var _ ports.AuthMethodResolver = (*Resolver)(nil)

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithAppID sets the application id mixed into wallet and WebAuthn identifiers
func WithAppID(appID string) ResolverOption {
	return func(r *Resolver) { r.appID = appID }
}

// WithDiscordClientID sets the OAuth client id mixed into Discord identifiers
func WithDiscordClientID(clientID string) ResolverOption {
	return func(r *Resolver) { r.discordClientID = clientID }
}

// WithDiscordAPI overrides the Discord API base URL
func WithDiscordAPI(baseURL string) ResolverOption {
	return func(r *Resolver) { r.discordAPI = strings.TrimRight(baseURL, "/") }
}

// WithResolverHTTPClient sets the client used for Discord lookups
func WithResolverHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) { r.httpClient = c }
}

// NewResolver creates a resolver with the default app and Discord client ids
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		appID:           DefaultAppID,
		discordClientID: DefaultDiscordClientID,
		discordAPI:      DefaultDiscordAPI,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AuthMethodID returns keccak256 of "<user>:<app>" for the kind of m.
// The result ignores token timestamps and nonces.
func (r *Resolver) AuthMethodID(ctx context.Context, m core.AuthMethod) (string, error) {
	switch m.Type {
	case core.AuthMethodTypeEthWallet:
		sig, err := core.ParseAuthSig(m.AccessToken)
		if err != nil {
			return "", err
		}
		return identifier(sig.Address, r.appID), nil

	case core.AuthMethodTypeGoogleJWT, core.AuthMethodTypeStytchOTP:
		claims, err := ParseUnverifiedClaims(m.AccessToken)
		if err != nil {
			return "", err
		}
		sub, aud, err := claims.Identity()
		if err != nil {
			return "", err
		}
		return identifier(sub, aud), nil

	case core.AuthMethodTypeDiscord:
		userID, err := r.discordUserID(ctx, m.AccessToken)
		if err != nil {
			return "", err
		}
		return identifier(userID, r.discordClientID), nil

	case core.AuthMethodTypeWebAuthn:
		rawID, err := credentialRawID(m.AccessToken)
		if err != nil {
			return "", err
		}
		return eth.Keccak256Hex(rawID + ":" + r.appID), nil
	}

	return "", fmt.Errorf("%w: %s", core.ErrUnsupportedAuthMethod, m.Type)
}

// WebAuthnPublicKey returns the COSE credential public key of a registration response
func (r *Resolver) WebAuthnPublicKey(m core.AuthMethod) (string, error) {
	if m.Type != core.AuthMethodTypeWebAuthn {
		return "", fmt.Errorf("%w: %s has no registration key", core.ErrUnsupportedAuthMethod, m.Type)
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(strings.NewReader(m.AccessToken))
	if err != nil {
		return "", fmt.Errorf("%w: parsing registration: %v", core.ErrAuthentication, err)
	}
	key := parsed.Response.AttestationObject.AuthData.AttData.CredentialPublicKey
	if len(key) == 0 {
		return "", fmt.Errorf("%w: registration has no credential public key", core.ErrAuthentication)
	}
	return hexutil.Encode(key), nil
}

func (r *Resolver) discordUserID(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", fmt.Errorf("%w: missing discord access token", core.ErrAuthentication)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.discordAPI+"/users/@me", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch discord user: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read discord user: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: discord returned status %d: %s", core.ErrAuthentication, resp.StatusCode, bytes.TrimSpace(body))
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return "", fmt.Errorf("failed to decode discord user: %w", err)
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: discord user has no id", core.ErrAuthentication)
	}
	return user.ID, nil
}

func credentialRawID(raw string) (string, error) {
	var cred struct {
		ID    string `json:"id"`
		RawID string `json:"rawId"`
	}
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return "", fmt.Errorf("%w: decoding credential: %v", core.ErrAuthentication, err)
	}
	if cred.RawID != "" {
		return cred.RawID, nil
	}
	if cred.ID != "" {
		return cred.ID, nil
	}
	return "", fmt.Errorf("%w: credential has no id", core.ErrAuthentication)
}

func identifier(userID, appID string) string {
	return eth.Keccak256Hex(strings.ToLower(userID) + ":" + strings.ToLower(appID))
}
