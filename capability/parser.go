// Package capability parses and validates the line-oriented signed statements
// that carry delegated capabilities.
package capability

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/layer-3/pkpauth/core"
)

// Field names read by the validators
const (
	FieldIssuedAt       = "Issued At"
	FieldExpirationTime = "Expiration Time"
	FieldResources      = "Resources"
	FieldNonce          = "Nonce"
)

// isoLayout matches the UTC millisecond timestamps used in error messages
const isoLayout = "2006-01-02T15:04:05.000Z"

// A key line is "<key>:" optionally followed by a space and a value.
var keyLine = regexp.MustCompile(`^([^:]+):(?: (.*))?$`)

// Field is one parsed entry. List is non-nil once a "- " item was seen,
// and list semantics win over Value from then on.
type Field struct {
	Value string
	List  []string
}

// IsList reports whether the field holds list items
func (f Field) IsList() bool {
	return f.List != nil
}

// Message is a parsed signed statement keyed by field name
type Message map[string]Field

// Get returns the scalar value of key. List fields have no scalar value.
func (m Message) Get(key string) (string, bool) {
	f, ok := m[key]
	if !ok || f.IsList() {
		return "", false
	}
	return f.Value, true
}

// List returns the list items of key
func (m Message) List(key string) ([]string, bool) {
	f, ok := m[key]
	if !ok || !f.IsList() {
		return nil, false
	}
	return f.List, true
}

// Has reports whether key was present
func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// ParseSignedMessage splits a signed statement into fields.
// Lines before the first key line are ignored.
func ParseSignedMessage(text string) Message {
	msg := Message{}

	var (
		key     string
		current Field
		open    bool
	)
	commit := func() {
		if !open {
			return
		}
		current.Value = strings.TrimSpace(current.Value)
		msg[key] = current
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			continue

		case strings.HasPrefix(line, "- "):
			if !open {
				continue
			}
			current.List = append(current.List, strings.TrimSpace(line[2:]))

		case keyLine.MatchString(line):
			commit()
			m := keyLine.FindStringSubmatch(line)
			key = strings.TrimSpace(m[1])
			current = Field{Value: strings.TrimSpace(m[2])}
			open = true

		default:
			if !open {
				continue
			}
			current.Value += "\n" + line
		}
	}
	commit()

	return msg
}

// ParseTime parses the timestamp formats accepted in signed statements
func ParseTime(raw string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		time.RFC1123Z,
		time.RFC1123,
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
}

// FormatTime renders t the way expiration errors and envelopes expect
func FormatTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ValidateExpiration checks expiration against the current wall clock
func ValidateExpiration(expiration, context string) core.ValidationResult {
	return ValidateExpirationAt(expiration, context, time.Now())
}

// ValidateExpirationAt checks expiration against now. There is no skew tolerance:
// anything strictly before now is expired.
func ValidateExpirationAt(expiration, context string, now time.Time) core.ValidationResult {
	t, err := ParseTime(expiration)
	if err != nil {
		return core.Invalid(fmt.Sprintf("Invalid Expiration Time format in %s: %s", context, expiration))
	}
	if t.Before(now) {
		return core.Invalid(fmt.Sprintf("Expired %s. Expiration Time: %s", context, FormatTime(t)))
	}
	return core.Valid()
}

// Parsed pairs a capability with its parsed statement
type Parsed struct {
	Capability core.AuthSig
	Message    Message
}

// ParseCapabilities parses every capability and validates its expiration.
// Errors from all capabilities are aggregated. The input is not modified.
func ParseCapabilities(caps []core.AuthSig) ([]Parsed, core.ValidationResult) {
	return ParseCapabilitiesAt(caps, time.Now())
}

// ParseCapabilitiesAt is ParseCapabilities against a fixed clock
func ParseCapabilitiesAt(caps []core.AuthSig, now time.Time) ([]Parsed, core.ValidationResult) {
	parsed := make([]Parsed, 0, len(caps))
	result := core.Valid()

	for i, c := range caps {
		msg := ParseSignedMessage(c.SignedMessage)
		parsed = append(parsed, Parsed{Capability: c, Message: msg})

		exp, ok := msg.Get(FieldExpirationTime)
		if !ok || exp == "" {
			result = result.Merge(core.Invalid(
				fmt.Sprintf("Expiration Time not found in capability %d's signedMessage.", i),
			))
			continue
		}
		result = result.Merge(ValidateExpirationAt(exp, fmt.Sprintf("capability %d", i), now))
	}

	return parsed, result
}
