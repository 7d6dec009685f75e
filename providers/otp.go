package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/pkpauth/core"
)

// OTPProvider accepts session JWTs issued after a one-time-passcode login
type OTPProvider struct {
	base
	now func() time.Time
}

// NewOTPProvider creates an OTP provider
func NewOTPProvider(deps Deps) *OTPProvider {
	return &OTPProvider{
		base: base{kind: core.AuthMethodTypeStytchOTP, deps: deps},
		now:  time.Now,
	}
}

// Authenticate checks the session token in opts.AccessToken. When opts.UserID is
// set it must equal the token subject.
func (p *OTPProvider) Authenticate(_ context.Context, opts AuthenticateOptions) (core.AuthMethod, error) {
	if opts.AccessToken == "" {
		return core.AuthMethod{}, fmt.Errorf("%w: missing session token", core.ErrAuthentication)
	}

	claims, err := ParseUnverifiedClaims(opts.AccessToken)
	if err != nil {
		return core.AuthMethod{}, err
	}
	sub, _, err := claims.Identity()
	if err != nil {
		return core.AuthMethod{}, err
	}
	if opts.UserID != "" && opts.UserID != sub {
		return core.AuthMethod{}, fmt.Errorf("%w: token issued to %s", core.ErrAuthentication, sub)
	}
	if claims.Expired(p.now()) {
		return core.AuthMethod{}, fmt.Errorf("%w: session token expired", core.ErrAuthentication)
	}

	return core.AuthMethod{Type: core.AuthMethodTypeStytchOTP, AccessToken: opts.AccessToken}, nil
}
