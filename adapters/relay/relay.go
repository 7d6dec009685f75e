package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/internal/metrics"
	"github.com/layer-3/pkpauth/ports"
)

var ErrNoResolver = errors.New("relay client has no auth method resolver")

// MintPKP submits a mint request and returns its request id
func (c *Client) MintPKP(ctx context.Context, req core.MintRequest) (string, error) {
	var resp core.MintResponse
	if err := c.post(ctx, MintRoute, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &core.RelayError{Endpoint: MintRoute, Message: resp.Error}
	}
	if resp.RequestID == "" {
		return "", &core.RelayError{Endpoint: MintRoute, Message: "response carries no requestId"}
	}
	return resp.RequestID, nil
}

// PollRequestUntilTerminalState polls the status of requestID at a fixed
// interval. An explicit error fails at once; Succeeded returns the payload.
// After MaxPolls non-terminal answers it gives up with a PollTimeoutError.
func (c *Client) PollRequestUntilTerminalState(ctx context.Context, requestID string, opts core.PollOptions) (*core.PollStatus, error) {
	opts = opts.WithDefaults()
	path := StatusRoute + url.PathEscape(requestID)

	for attempt := 1; attempt <= opts.MaxPolls; attempt++ {
		metrics.RelayPolls.Inc()

		var status core.PollStatus
		if err := c.get(ctx, StatusRoute, path, &status); err != nil {
			return nil, err
		}
		if status.Error != "" {
			return nil, &core.RelayError{Endpoint: StatusRoute, Message: status.Error}
		}
		if status.Status == core.PollStatusSucceeded {
			return &status, nil
		}

		c.logger.Debug().
			Str("request_id", requestID).
			Str("status", status.Status).
			Int("attempt", attempt).
			Msg("mint request pending")

		if attempt == opts.MaxPolls {
			break
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, &core.PollTimeoutError{RequestID: requestID, Attempts: opts.MaxPolls}
}

// FetchPKPs lists the PKPs bound to an auth method
func (c *Client) FetchPKPs(ctx context.Context, req core.FetchRequest) ([]core.PKP, error) {
	var resp core.FetchResponse
	if err := c.post(ctx, FetchRoute, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &core.RelayError{Endpoint: FetchRoute, Message: resp.Error}
	}
	if resp.PKPs == nil {
		return []core.PKP{}, nil
	}
	return resp.PKPs, nil
}

// MintPKPWithAuthMethods mints one PKP bound to every method and waits for it
func (c *Client) MintPKPWithAuthMethods(ctx context.Context, methods []core.AuthMethod, opts core.MintOptions) (*core.PKP, error) {
	req, err := BuildMintRequest(ctx, c.resolver, methods, opts)
	if err != nil {
		return nil, err
	}

	requestID, err := c.MintPKP(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit mint request: %w", err)
	}

	c.logger.Info().Str("request_id", requestID).Int("auth_methods", len(methods)).Msg("mint request submitted")

	status, err := c.PollRequestUntilTerminalState(ctx, requestID, opts.Poll)
	if err != nil {
		return nil, fmt.Errorf("mint request %s: %w", requestID, err)
	}

	pkp := status.PKP()
	return &pkp, nil
}

// BuildMintRequest derives the relay mint body binding every method to one new PKP
func BuildMintRequest(ctx context.Context, resolver ports.AuthMethodResolver, methods []core.AuthMethod, opts core.MintOptions) (core.MintRequest, error) {
	if len(methods) == 0 {
		return core.MintRequest{}, core.ErrNoAuthMethods
	}
	if resolver == nil {
		return core.MintRequest{}, ErrNoResolver
	}

	req := core.MintRequest{
		KeyType:                            core.KeyTypeECDSA,
		PermittedAuthMethodTypes:           make([]string, 0, len(methods)),
		PermittedAuthMethodIDs:             make([]string, 0, len(methods)),
		PermittedAuthMethodPubkeys:         make([]string, 0, len(methods)),
		PermittedAuthMethodScopes:          make([][]string, 0, len(methods)),
		AddPKPEthAddressAsPermittedAddress: boolOr(opts.AddPKPEthAddressAsPermittedAddress, true),
		SendPKPToItself:                    boolOr(opts.SendPKPToItself, true),
	}

	for i, m := range methods {
		id, err := resolver.AuthMethodID(ctx, m)
		if err != nil {
			return core.MintRequest{}, fmt.Errorf("auth method %d: %w", i, err)
		}

		// only WebAuthn credentials carry a public key of their own
		pubkey := "0x"
		if m.Type == core.AuthMethodTypeWebAuthn {
			if pubkey, err = resolver.WebAuthnPublicKey(m); err != nil {
				return core.MintRequest{}, fmt.Errorf("auth method %d: %w", i, err)
			}
		}

		scopes := []core.AuthMethodScope{core.ScopeSignAnything}
		if i < len(opts.Scopes) && len(opts.Scopes[i]) > 0 {
			scopes = opts.Scopes[i]
		}
		scopeStrings := make([]string, 0, len(scopes))
		for _, s := range scopes {
			scopeStrings = append(scopeStrings, strconv.Itoa(int(s)))
		}

		req.PermittedAuthMethodTypes = append(req.PermittedAuthMethodTypes, strconv.Itoa(int(m.Type)))
		req.PermittedAuthMethodIDs = append(req.PermittedAuthMethodIDs, id)
		req.PermittedAuthMethodPubkeys = append(req.PermittedAuthMethodPubkeys, pubkey)
		req.PermittedAuthMethodScopes = append(req.PermittedAuthMethodScopes, scopeStrings)
	}

	return req, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
