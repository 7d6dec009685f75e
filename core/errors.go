package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuthentication        = errors.New("authentication failed")
	ErrAddressMismatch       = errors.New("address mismatch")
	ErrMissingAuthSig        = errors.New("missing auth sig")
	ErrRelay                 = errors.New("relay error")
	ErrPollTimeout           = errors.New("relay request did not reach a terminal state")
	ErrValidation            = errors.New("validation failed")
	ErrNoAuthMethods         = errors.New("at least one auth method is required")
	ErrUnsupportedAuthMethod = errors.New("unsupported auth method")
	ErrNode                  = errors.New("node error")
	ErrCacheMiss             = errors.New("cache miss")
)

// AddressMismatchError is returned when a signed statement names a different address
type AddressMismatchError struct {
	Expected string
	Got      string
}

func (e *AddressMismatchError) Error() string {
	return fmt.Sprintf("address mismatch: expected %s, statement signed by %s", e.Expected, e.Got)
}

func (e *AddressMismatchError) Is(target error) bool {
	return target == ErrAddressMismatch
}

// RelayError carries the message reported by the relay for a failed call
type RelayError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *RelayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("relay %s: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("relay %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

func (e *RelayError) Is(target error) bool {
	return target == ErrRelay
}

// PollTimeoutError is returned when polling exhausted its attempts
type PollTimeoutError struct {
	RequestID string
	Attempts  int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("request %s still pending after %d polls", e.RequestID, e.Attempts)
}

func (e *PollTimeoutError) Is(target error) bool {
	return target == ErrPollTimeout
}

// NodeError carries the failure of a single signing node
type NodeError struct {
	Node       string
	StatusCode int
	Message    string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: status %d: %s", e.Node, e.StatusCode, e.Message)
}

func (e *NodeError) Is(target error) bool {
	return target == ErrNode
}

// ValidationError aggregates every problem found by a validation pass
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
