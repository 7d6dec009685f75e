package capability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const preambleSuffix = " wants you to sign in with your Ethereum account"

var ErrMalformedSIWE = errors.New("malformed sign-in message")

// SIWE is an EIP-4361 sign-in statement
type SIWE struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       string
	ExpirationTime string
	NotBefore      string
	RequestID      string
	Resources      []string
}

// String renders the statement text that gets signed
func (s SIWE) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s%s:\n", s.Domain, preambleSuffix)
	fmt.Fprintf(&b, "%s\n\n", s.Address)
	if s.Statement != "" {
		fmt.Fprintf(&b, "%s\n\n", s.Statement)
	}

	version := s.Version
	if version == "" {
		version = "1"
	}
	fmt.Fprintf(&b, "URI: %s\n", s.URI)
	fmt.Fprintf(&b, "Version: %s\n", version)
	fmt.Fprintf(&b, "Chain ID: %d\n", s.ChainID)
	fmt.Fprintf(&b, "%s: %s\n", FieldNonce, s.Nonce)
	fmt.Fprintf(&b, "%s: %s", FieldIssuedAt, s.IssuedAt)
	if s.ExpirationTime != "" {
		fmt.Fprintf(&b, "\n%s: %s", FieldExpirationTime, s.ExpirationTime)
	}
	if s.NotBefore != "" {
		fmt.Fprintf(&b, "\nNot Before: %s", s.NotBefore)
	}
	if s.RequestID != "" {
		fmt.Fprintf(&b, "\nRequest ID: %s", s.RequestID)
	}
	if len(s.Resources) > 0 {
		fmt.Fprintf(&b, "\n%s:", FieldResources)
		for _, r := range s.Resources {
			fmt.Fprintf(&b, "\n- %s", r)
		}
	}

	return b.String()
}

// ParseSIWE recovers a sign-in statement from its text
func ParseSIWE(text string) (SIWE, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) < 2 || !strings.HasSuffix(strings.TrimSpace(lines[0]), preambleSuffix+":") {
		return SIWE{}, fmt.Errorf("%w: missing preamble", ErrMalformedSIWE)
	}

	var s SIWE
	s.Domain = strings.TrimSuffix(strings.TrimSpace(lines[0]), preambleSuffix+":")
	s.Address = strings.TrimSpace(lines[1])
	if s.Domain == "" || s.Address == "" {
		return SIWE{}, fmt.Errorf("%w: missing domain or address", ErrMalformedSIWE)
	}

	// The statement is positional: everything between the address and the
	// URI line. Statements may contain ": " themselves.
	end := 2
	for i := 2; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "URI:") {
			end = i
			break
		}
	}
	if end > 2 {
		s.Statement = strings.TrimSpace(strings.Join(lines[2:end], "\n"))
	}

	msg := ParseSignedMessage(strings.Join(lines[end:], "\n"))
	s.URI, _ = msg.Get("URI")
	s.Version, _ = msg.Get("Version")
	s.Nonce, _ = msg.Get(FieldNonce)
	s.IssuedAt, _ = msg.Get(FieldIssuedAt)
	s.ExpirationTime, _ = msg.Get(FieldExpirationTime)
	s.NotBefore, _ = msg.Get("Not Before")
	s.RequestID, _ = msg.Get("Request ID")
	s.Resources, _ = msg.List(FieldResources)

	if raw, ok := msg.Get("Chain ID"); ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return SIWE{}, fmt.Errorf("%w: chain id %q", ErrMalformedSIWE, raw)
		}
		s.ChainID = id
	}

	return s, nil
}
