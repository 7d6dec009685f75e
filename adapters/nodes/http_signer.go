// Package nodes requests delegated capabilities from signing nodes.
package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/ports"
)

// SignSessionKeyRoute is served by every node
const SignSessionKeyRoute = "/web/sign_session_key"

type signSessionKeyResponse struct {
	AuthSig *core.AuthSig `json:"authSig"`
	Error   string        `json:"error,omitempty"`
}

// HTTPSigner asks nodes over HTTP
type HTTPSigner struct {
	httpClient *http.Client
}

var _ ports.NodeSigner = (*HTTPSigner)(nil)

// NewHTTPSigner creates a node signer. A nil client selects a default with a 30s timeout.
func NewHTTPSigner(hc *http.Client) *HTTPSigner {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSigner{httpClient: hc}
}

// SignSessionKey posts req to node and returns the capability it signed
func (s *HTTPSigner) SignSessionKey(ctx context.Context, node string, req core.SignSessionKeyRequest) (core.AuthSig, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return core.AuthSig{}, fmt.Errorf("marshaling payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(node, "/")+SignSessionKeyRoute, bytes.NewReader(body))
	if err != nil {
		return core.AuthSig{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return core.AuthSig{}, fmt.Errorf("node %s: connection failed: %w", node, err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.AuthSig{}, &core.NodeError{Node: node, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	var out signSessionKeyResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		return core.AuthSig{}, &core.NodeError{Node: node, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return core.AuthSig{}, &core.NodeError{Node: node, StatusCode: resp.StatusCode, Message: "undecodable response: " + decodeErr.Error()}
	}
	if out.AuthSig == nil || out.AuthSig.Sig == "" {
		return core.AuthSig{}, &core.NodeError{Node: node, StatusCode: resp.StatusCode, Message: "response carries no authSig"}
	}

	return *out.AuthSig, nil
}
