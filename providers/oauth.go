package providers

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/layer-3/pkpauth/core"
)

const DefaultLoginURL = "https://login.litgateway.com"

// OAuthConfig configures a redirect-based login
type OAuthConfig struct {
	// LoginURL is the login server the user is sent to.
	LoginURL string
	// RedirectURI is where the login server sends the user back.
	RedirectURI string
	// ClientID is the OAuth client the tokens are issued for.
	ClientID string
}

// oauthFlow implements the redirect half shared by Google and Discord
type oauthFlow struct {
	kind       core.AuthMethodType
	name       string
	tokenParam string
	cfg        OAuthConfig
	now        func() time.Time
}

// BeginLogin starts a login and returns its session and the URL to send the user to
func (f *oauthFlow) BeginLogin() (*LoginSession, string, error) {
	if f.cfg.RedirectURI == "" {
		return nil, "", fmt.Errorf("%s login has no redirect uri", f.name)
	}
	loginURL := f.cfg.LoginURL
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}

	session := newLoginSession(f.kind, "", f.now())

	q := url.Values{}
	q.Set("app_redirect", f.cfg.RedirectURI)
	q.Set("state", session.State)

	return session, strings.TrimRight(loginURL, "/") + "/auth/" + f.name + "?" + q.Encode(), nil
}

// callbackToken checks a callback URL against session and returns its token
func (f *oauthFlow) callbackToken(session *LoginSession, callbackURL string) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", fmt.Errorf("%w: parsing callback url: %v", core.ErrAuthentication, err)
	}
	q := u.Query()

	if provider := q.Get("provider"); provider != f.name {
		return "", fmt.Errorf("%w: callback is for provider %q", core.ErrAuthentication, provider)
	}
	if err := session.consume(f.kind, q.Get("state"), f.now()); err != nil {
		return "", err
	}

	token := q.Get(f.tokenParam)
	if token == "" {
		return "", fmt.Errorf("%w: callback has no %s", core.ErrAuthentication, f.tokenParam)
	}
	return token, nil
}
