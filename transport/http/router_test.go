package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthService struct {
	err      error
	minted   []core.AuthMethod
	mintOpts core.MintOptions
	params   core.SessionSigsParams
}

func (f *fakeAuthService) AuthMethodID(_ context.Context, m core.AuthMethod) (string, error) {
	return fmt.Sprintf("id-%d-%s", m.Type, m.AccessToken), f.err
}

func (f *fakeAuthService) FetchPKPs(context.Context, core.AuthMethod) ([]core.PKP, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []core.PKP{{TokenID: "0x1", PublicKey: "0x04aa", EthAddress: "0xabc"}}, nil
}

func (f *fakeAuthService) MintPKP(_ context.Context, methods []core.AuthMethod, opts core.MintOptions) (*core.PKP, error) {
	f.minted, f.mintOpts = methods, opts
	if f.err != nil {
		return nil, f.err
	}
	return &core.PKP{TokenID: "0x2"}, nil
}

func (f *fakeAuthService) SessionSigs(_ context.Context, params core.SessionSigsParams) (core.SessionSigs, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return core.SessionSigs{"https://node-1": {Sig: "aa", DerivedVia: core.DerivedViaEd25519}}, nil
}

func (f *fakeAuthService) ValidateSessionSigs(sigs core.SessionSigs) core.ValidationResult {
	if len(sigs) == 0 {
		return core.Invalid("No session signatures provided.")
	}
	return core.Valid()
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRoutes(t *testing.T) {
	svc := &fakeAuthService{}
	router := SetupRouter(svc, nil, zerolog.Nop())

	w := do(t, router, http.MethodPost, "/auth/method-id", `{"authMethod":{"authMethodType":6,"accessToken":"tok"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "id-6-tok", decode(t, w)["authMethodId"])

	w = do(t, router, http.MethodPost, "/pkps/fetch", `{"authMethod":{"authMethodType":6,"accessToken":"tok"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["pkps"], 1)

	w = do(t, router, http.MethodPost, "/pkps/mint", `{"authMethods":[{"authMethodType":9,"accessToken":"otp"}],"scopes":[[1,2]],"sendPkpToItself":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []core.AuthMethod{{Type: core.AuthMethodTypeStytchOTP, AccessToken: "otp"}}, svc.minted)
	assert.Equal(t, [][]core.AuthMethodScope{{core.ScopeSignAnything, core.ScopePersonalSign}}, svc.mintOpts.Scopes)
	require.NotNil(t, svc.mintOpts.SendPKPToItself)
	assert.False(t, *svc.mintOpts.SendPKPToItself)
	assert.Nil(t, svc.mintOpts.AddPKPEthAddressAsPermittedAddress)

	w = do(t, router, http.MethodPost, "/sessions", `{"pkpPublicKey":"0x04aa","authMethod":{"authMethodType":6,"accessToken":"tok"},"resourceAbilityRequests":[{"resource":{"type":"pkp","selector":"*"},"ability":"pkp-signing"}],"chain":"ethereum"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0x04aa", svc.params.PKPPublicKey)
	assert.Equal(t, "ethereum", svc.params.Chain)
	assert.Contains(t, decode(t, w)["sessionSigs"], "https://node-1")

	w = do(t, router, http.MethodPost, "/sessions/validate", `{"sessionSigs":{}}`)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, false, out["isValid"])
	assert.Equal(t, []any{"No session signatures provided."}, out["errors"])

	w = do(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pkpauth_http_requests_total")
}

func TestBadRequests(t *testing.T) {
	router := SetupRouter(&fakeAuthService{}, nil, zerolog.Nop())

	for _, path := range []string{"/auth/method-id", "/pkps/fetch", "/pkps/mint", "/sessions", "/sessions/validate"} {
		t.Run(path, func(t *testing.T) {
			w := do(t, router, http.MethodPost, path, `{not json`)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w := do(t, router, http.MethodPost, "/auth/method-id", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &core.ValidationError{Errors: []string{"pkpPublicKey is required"}}, http.StatusBadRequest},
		{"no methods", core.ErrNoAuthMethods, http.StatusBadRequest},
		{"unsupported", fmt.Errorf("wrapped: %w", core.ErrUnsupportedAuthMethod), http.StatusBadRequest},
		{"authentication", core.ErrAuthentication, http.StatusUnauthorized},
		{"address mismatch", &core.AddressMismatchError{Expected: "0x1", Got: "0x2"}, http.StatusUnauthorized},
		{"relay", &core.RelayError{Endpoint: "/mint", StatusCode: 500, Message: "boom"}, http.StatusBadGateway},
		{"node", &core.NodeError{Node: "n", StatusCode: 500, Message: "boom"}, http.StatusBadGateway},
		{"poll timeout", &core.PollTimeoutError{RequestID: "r", Attempts: 20}, http.StatusGatewayTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := SetupRouter(&fakeAuthService{err: tt.err}, nil, zerolog.Nop())
			w := do(t, router, http.MethodPost, "/sessions", `{"pkpPublicKey":"0x04"}`)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.err.Error(), decode(t, w)["error"])
		})
	}

	router := SetupRouter(&fakeAuthService{err: &core.ValidationError{Errors: []string{"a", "b"}}}, nil, zerolog.Nop())
	w := do(t, router, http.MethodPost, "/sessions", `{}`)
	assert.Equal(t, []any{"a", "b"}, decode(t, w)["errors"])
}

func TestRateLimit(t *testing.T) {
	router := SetupRouter(&fakeAuthService{}, ratelimit.New(0.001, 2, 0), zerolog.Nop())
	body := `{"sessionSigs":{"n":{"sig":"a"}}}`

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/sessions/validate", body).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/sessions/validate", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodPost, "/sessions/validate", body).Code)

	// health checks are not limited
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", "").Code)
}
