package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/pkpauth/core"
)

func TestOTPAuthenticate(t *testing.T) {
	p := NewOTPProvider(Deps{})
	token := signedToken(t, "user-test-1", "project-test-1", now(), now().Add(time1h))

	m, err := p.Authenticate(context.Background(), AuthenticateOptions{AccessToken: token, UserID: "user-test-1"})
	require.NoError(t, err)
	assert.Equal(t, core.AuthMethod{Type: core.AuthMethodTypeStytchOTP, AccessToken: token}, m)

	_, err = p.Authenticate(context.Background(), AuthenticateOptions{AccessToken: token})
	require.NoError(t, err)
}

func TestOTPAuthenticateRejects(t *testing.T) {
	p := NewOTPProvider(Deps{})

	tests := []struct {
		name string
		opts AuthenticateOptions
	}{
		{"missing token", AuthenticateOptions{}},
		{"garbage token", AuthenticateOptions{AccessToken: "abc.def"}},
		{"other user", AuthenticateOptions{
			AccessToken: signedToken(t, "user-1", "project", now(), now().Add(time1h)),
			UserID:      "user-2",
		}},
		{"expired", AuthenticateOptions{
			AccessToken: signedToken(t, "user-1", "project", now().Add(-2*time1h), now().Add(-time1h)),
		}},
		{"no subject", AuthenticateOptions{
			AccessToken: signedToken(t, "", "project", now(), now().Add(time1h)),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Authenticate(context.Background(), tt.opts)
			assert.ErrorIs(t, err, core.ErrAuthentication)
		})
	}
}
