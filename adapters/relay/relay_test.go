package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/pkpauth/core"
)

type stubResolver struct{}

func (stubResolver) AuthMethodID(ctx context.Context, m core.AuthMethod) (string, error) {
	if m.AccessToken == "bad" {
		return "", core.ErrAuthentication
	}
	return "0xid-" + m.AccessToken, nil
}

func (stubResolver) WebAuthnPublicKey(m core.AuthMethod) (string, error) {
	return "0xcose", nil
}

// fakeRelay records requests and answers status polls from a script
type fakeRelay struct {
	mu       sync.Mutex
	statuses []string
	polls    []time.Time
	mints    []core.MintRequest
	apiKeys  []string
}

func (f *fakeRelay) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+MintRoute, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.apiKeys = append(f.apiKeys, r.Header.Get(APIKeyHeader))

		var req core.MintRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mints = append(f.mints, req)
		_, _ = w.Write([]byte(`{"requestId":"abc"}`))
	})

	mux.HandleFunc("GET "+StatusRoute+"{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.apiKeys = append(f.apiKeys, r.Header.Get(APIKeyHeader))
		assert.Equal(t, "abc", r.PathValue("id"))

		i := len(f.polls)
		f.polls = append(f.polls, time.Now())
		body := f.statuses[len(f.statuses)-1]
		if i < len(f.statuses) {
			body = f.statuses[i]
		}
		_, _ = w.Write([]byte(body))
	})

	mux.HandleFunc("POST "+FetchRoute, func(w http.ResponseWriter, r *http.Request) {
		var req core.FetchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.AuthMethodID == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no pkps for auth method"}`))
			return
		}
		_, _ = w.Write([]byte(`{"pkps":[{"tokenId":"123","publicKey":"0x04aa","ethAddress":"0x9f"}]}`))
	})

	return mux
}

const succeeded = `{"status":"Succeeded","pkpPublicKey":"0x04..","pkpEthAddress":"0x9f..","pkpTokenId":"123"}`

func TestMintAndPollEndToEnd(t *testing.T) {
	relay := &fakeRelay{statuses: []string{
		`{"status":"Pending"}`,
		`{"status":"Pending"}`,
		`{"status":"Pending"}`,
		succeeded,
	}}
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	client := New(srv.URL, "secret", WithResolver(stubResolver{}))
	ctx := context.Background()

	requestID, err := client.MintPKP(ctx, core.MintRequest{KeyType: core.KeyTypeECDSA})
	require.NoError(t, err)
	assert.Equal(t, "abc", requestID)

	interval := 20 * time.Millisecond
	status, err := client.PollRequestUntilTerminalState(ctx, requestID, core.PollOptions{Interval: interval, MaxPolls: 20})
	require.NoError(t, err)

	assert.Equal(t, core.PollStatusSucceeded, status.Status)
	assert.Equal(t, core.PKP{TokenID: "123", PublicKey: "0x04..", EthAddress: "0x9f.."}, status.PKP())

	require.Len(t, relay.polls, 4)
	for i := 1; i < len(relay.polls); i++ {
		assert.GreaterOrEqual(t, relay.polls[i].Sub(relay.polls[i-1]), interval)
	}
	for _, key := range relay.apiKeys {
		assert.Equal(t, "secret", key)
	}
}

func TestPollTimeout(t *testing.T) {
	relay := &fakeRelay{statuses: []string{`{"status":"Pending"}`}}
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	client := New(srv.URL, "secret")
	_, err := client.PollRequestUntilTerminalState(context.Background(), "abc", core.PollOptions{Interval: time.Millisecond, MaxPolls: 3})
	require.Error(t, err)

	var timeout *core.PollTimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, 3, timeout.Attempts)
	assert.ErrorIs(t, err, core.ErrPollTimeout)
	assert.Len(t, relay.polls, 3)
}

func TestPollExplicitErrorStopsImmediately(t *testing.T) {
	relay := &fakeRelay{statuses: []string{
		`{"status":"Pending"}`,
		`{"status":"Failed","error":"transaction reverted"}`,
		succeeded,
	}}
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	client := New(srv.URL, "secret")
	_, err := client.PollRequestUntilTerminalState(context.Background(), "abc", core.PollOptions{Interval: time.Millisecond, MaxPolls: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRelay)
	assert.Contains(t, err.Error(), "transaction reverted")
	assert.Len(t, relay.polls, 2)
}

func TestPollCancellation(t *testing.T) {
	relay := &fakeRelay{statuses: []string{`{"status":"Pending"}`}}
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := New(srv.URL, "secret")
	_, err := client.PollRequestUntilTerminalState(ctx, "abc", core.PollOptions{Interval: time.Hour, MaxPolls: 20})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, relay.polls, 1)
}

func TestFetchPKPs(t *testing.T) {
	srv := httptest.NewServer((&fakeRelay{}).handler(t))
	defer srv.Close()

	client := New(srv.URL, "secret")

	pkps, err := client.FetchPKPs(context.Background(), core.FetchRequest{AuthMethodType: core.AuthMethodTypeGoogleJWT, AuthMethodID: "0x1"})
	require.NoError(t, err)
	assert.Equal(t, []core.PKP{{TokenID: "123", PublicKey: "0x04aa", EthAddress: "0x9f"}}, pkps)

	_, err = client.FetchPKPs(context.Background(), core.FetchRequest{AuthMethodType: core.AuthMethodTypeGoogleJWT, AuthMethodID: "missing"})
	var relayErr *core.RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, http.StatusNotFound, relayErr.StatusCode)
	assert.Equal(t, "no pkps for auth method", relayErr.Message)
	assert.Equal(t, FetchRoute, relayErr.Endpoint)
}

func TestNon2xxIsAlwaysAnError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json error", http.StatusBadRequest, `{"error":"bad key type"}`, "bad key type"},
		{"success-shaped body", http.StatusInternalServerError, `{"requestId":"abc"}`, `{"requestId":"abc"}`},
		{"plain text", http.StatusBadGateway, "upstream down", "upstream down"},
		{"empty body", http.StatusServiceUnavailable, "", "Service Unavailable"},
		{"redirect", http.StatusMultipleChoices, "", "Multiple Choices"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "k").MintPKP(context.Background(), core.MintRequest{})
			var relayErr *core.RelayError
			require.True(t, errors.As(err, &relayErr), "got %v", err)
			assert.Equal(t, tt.status, relayErr.StatusCode)
			assert.Equal(t, tt.message, relayErr.Message)
		})
	}
}

func TestMintErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k").MintPKP(context.Background(), core.MintRequest{})
	assert.ErrorIs(t, err, core.ErrRelay)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestMintPKPWithAuthMethods(t *testing.T) {
	relay := &fakeRelay{statuses: []string{`{"status":"Pending"}`, succeeded}}
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	client := New(srv.URL, "secret", WithResolver(stubResolver{}))

	methods := []core.AuthMethod{
		{Type: core.AuthMethodTypeGoogleJWT, AccessToken: "g"},
		{Type: core.AuthMethodTypeWebAuthn, AccessToken: "w"},
	}
	no := false
	pkp, err := client.MintPKPWithAuthMethods(context.Background(), methods, core.MintOptions{
		Scopes:          [][]core.AuthMethodScope{nil, {core.ScopeSignAnything, core.ScopePersonalSign}},
		SendPKPToItself: &no,
		Poll:            core.PollOptions{Interval: time.Millisecond},
	})
	require.NoError(t, err)
	assert.Equal(t, "123", pkp.TokenID)

	require.Len(t, relay.mints, 1)
	req := relay.mints[0]
	assert.Equal(t, core.KeyTypeECDSA, req.KeyType)
	assert.Equal(t, []string{"6", "3"}, req.PermittedAuthMethodTypes)
	assert.Equal(t, []string{"0xid-g", "0xid-w"}, req.PermittedAuthMethodIDs)
	assert.Equal(t, []string{"0x", "0xcose"}, req.PermittedAuthMethodPubkeys)
	assert.Equal(t, [][]string{{"1"}, {"1", "2"}}, req.PermittedAuthMethodScopes)
	assert.True(t, req.AddPKPEthAddressAsPermittedAddress)
	assert.False(t, req.SendPKPToItself)
}

func TestMintPKPWithAuthMethodsValidation(t *testing.T) {
	client := New("http://127.0.0.1:0", "k", WithResolver(stubResolver{}))

	_, err := client.MintPKPWithAuthMethods(context.Background(), nil, core.MintOptions{})
	assert.ErrorIs(t, err, core.ErrNoAuthMethods)

	_, err = client.MintPKPWithAuthMethods(context.Background(), []core.AuthMethod{{Type: core.AuthMethodTypeDiscord, AccessToken: "bad"}}, core.MintOptions{})
	assert.ErrorIs(t, err, core.ErrAuthentication)

	_, err = New("http://127.0.0.1:0", "k").MintPKPWithAuthMethods(context.Background(), []core.AuthMethod{{Type: core.AuthMethodTypeDiscord}}, core.MintOptions{})
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pkps":[]}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "k", WithRateLimit(0.001, 1))

	_, err := client.FetchPKPs(context.Background(), core.FetchRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.FetchPKPs(ctx, core.FetchRequest{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "rate limiter"))
}
