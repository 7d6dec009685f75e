package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/pkpauth/core"
)

func testConfig() Config {
	return Config{
		WebAuthn: WebAuthnConfig{RPID: testRPID, RPOrigins: []string{testOrigin}},
	}
}

func TestNewBuildsEveryKind(t *testing.T) {
	for _, kind := range core.AuthMethodTypes {
		t.Run(kind.String(), func(t *testing.T) {
			p, err := New(kind, Deps{}, testConfig())
			require.NoError(t, err)
			assert.Equal(t, kind, p.Type())
		})
	}

	_, err := New(core.AuthMethodType(2), Deps{}, testConfig())
	assert.ErrorIs(t, err, core.ErrUnsupportedAuthMethod)
}

func TestProviderRejectsForeignMethods(t *testing.T) {
	p := NewOTPProvider(Deps{Resolver: NewResolver(), Relay: &fakeRelay{}, Sessions: &fakeSessions{}})
	foreign := core.AuthMethod{Type: core.AuthMethodTypeDiscord, AccessToken: "token"}

	_, err := p.AuthMethodID(context.Background(), foreign)
	assert.ErrorIs(t, err, core.ErrUnsupportedAuthMethod)

	_, err = p.MintPKPThroughRelayer(context.Background(), foreign)
	assert.ErrorIs(t, err, core.ErrUnsupportedAuthMethod)

	_, err = p.FetchPKPsThroughRelayer(context.Background(), foreign)
	assert.ErrorIs(t, err, core.ErrUnsupportedAuthMethod)

	_, err = p.GetSessionSigs(context.Background(), core.SessionSigsParams{AuthMethod: foreign})
	assert.ErrorIs(t, err, core.ErrUnsupportedAuthMethod)
}

func TestMintAndFetchThroughRelayer(t *testing.T) {
	relay := &fakeRelay{pkps: []core.PKP{{TokenID: "0x1"}}}
	resolver := NewResolver()
	p := NewOTPProvider(Deps{Relay: relay, Resolver: resolver})

	m := core.AuthMethod{
		Type:        core.AuthMethodTypeStytchOTP,
		AccessToken: signedToken(t, "user-1", "project-1", now(), now().Add(time1h)),
	}
	id, err := resolver.AuthMethodID(context.Background(), m)
	require.NoError(t, err)

	requestID, err := p.MintPKPThroughRelayer(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "req-1", requestID)

	require.Len(t, relay.mints, 1)
	mint := relay.mints[0]
	assert.Equal(t, core.KeyTypeECDSA, mint.KeyType)
	assert.Equal(t, []string{"9"}, mint.PermittedAuthMethodTypes)
	assert.Equal(t, []string{id}, mint.PermittedAuthMethodIDs)
	assert.Equal(t, []string{"0x"}, mint.PermittedAuthMethodPubkeys)
	assert.Equal(t, [][]string{{"1"}}, mint.PermittedAuthMethodScopes)
	assert.True(t, mint.AddPKPEthAddressAsPermittedAddress)
	assert.True(t, mint.SendPKPToItself)

	pkps, err := p.FetchPKPsThroughRelayer(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, relay.pkps, pkps)
	require.Len(t, relay.fetches, 1)
	assert.Equal(t, core.FetchRequest{AuthMethodType: core.AuthMethodTypeStytchOTP, AuthMethodID: id}, relay.fetches[0])
}

func TestRelayerWithoutDeps(t *testing.T) {
	m := core.AuthMethod{Type: core.AuthMethodTypeStytchOTP, AccessToken: "x"}

	_, err := MintPKPThroughRelayer(context.Background(), nil, NewResolver(), m)
	assert.ErrorIs(t, err, ErrNoRelay)

	_, err = FetchPKPsThroughRelayer(context.Background(), nil, NewResolver(), m)
	assert.ErrorIs(t, err, ErrNoRelay)

	relayErr := errors.New("relay down")
	_, err = MintPKPThroughRelayer(context.Background(), &fakeRelay{err: relayErr}, NewResolver(), core.AuthMethod{
		Type:        core.AuthMethodTypeStytchOTP,
		AccessToken: signedToken(t, "u", "p", now(), now().Add(time1h)),
	})
	assert.ErrorIs(t, err, relayErr)
}

func TestGetSessionSigsDelegates(t *testing.T) {
	sessions := &fakeSessions{}
	p := NewDiscordProvider(Deps{Sessions: sessions}, OAuthConfig{})

	params := core.SessionSigsParams{
		PKPPublicKey: "0x04ab",
		AuthMethod:   core.AuthMethod{Type: core.AuthMethodTypeDiscord, AccessToken: "token"},
	}
	sigs, err := p.GetSessionSigs(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, sigs, 1)
	require.Len(t, sessions.calls, 1)
	assert.Equal(t, params, sessions.calls[0])

	_, err = NewDiscordProvider(Deps{}, OAuthConfig{}).GetSessionSigs(context.Background(), params)
	assert.ErrorIs(t, err, ErrNoSessionSigner)
}
