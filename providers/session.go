package providers

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/pkpauth/core"
)

// DefaultLoginTTL bounds how long a started login may take
const DefaultLoginTTL = 10 * time.Minute

// LoginSession is the state of one login flow. It is created when the flow
// starts and accepts exactly one matching callback.
type LoginSession struct {
	Provider  core.AuthMethodType
	State     string
	ExpiresAt time.Time

	mu   sync.Mutex
	used bool
}

func newLoginSession(kind core.AuthMethodType, state string, now time.Time) *LoginSession {
	if state == "" {
		state = uuid.NewString()
	}
	return &LoginSession{
		Provider:  kind,
		State:     state,
		ExpiresAt: now.Add(DefaultLoginTTL),
	}
}

// consume checks state against the session and burns it
func (s *LoginSession) consume(kind core.AuthMethodType, state string, now time.Time) error {
	if s == nil {
		return fmt.Errorf("%w: no login session", core.ErrAuthentication)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.Provider != kind:
		return fmt.Errorf("%w: login session belongs to %s", core.ErrAuthentication, s.Provider)
	case s.used:
		return fmt.Errorf("%w: login session already used", core.ErrAuthentication)
	case now.After(s.ExpiresAt):
		return fmt.Errorf("%w: login session expired", core.ErrAuthentication)
	case state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(s.State)) != 1:
		return fmt.Errorf("%w: state mismatch", core.ErrAuthentication)
	}

	s.used = true
	return nil
}
