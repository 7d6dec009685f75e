package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/layer-3/pkpauth/capability"
	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/sessionkey"
)

const mainContext = "main signedMessage"

// ValidateSessionSignature checks one node's session signature: its envelope,
// every embedded capability and the outer expiration. It performs no I/O.
func ValidateSessionSignature(sig core.AuthSig) core.ValidationResult {
	return ValidateSessionSignatureAt(sig, time.Now())
}

// ValidateSessionSignatureAt is ValidateSessionSignature against a fixed clock
func ValidateSessionSignatureAt(sig core.AuthSig, now time.Time) core.ValidationResult {
	_, result := validateSessionSignature(sig, now)
	return result
}

func validateSessionSignature(sig core.AuthSig, now time.Time) (*core.SessionEnvelope, core.ValidationResult) {
	var env core.SessionEnvelope
	if err := json.Unmarshal([]byte(sig.SignedMessage), &env); err != nil {
		// nothing else can be checked without the envelope
		return nil, core.Invalid(fmt.Sprintf("Invalid JSON format in %s: %v", mainContext, err))
	}

	_, result := capability.ParseCapabilitiesAt(env.Capabilities, now)

	if env.Expiration == "" {
		result = result.Merge(core.Invalid(fmt.Sprintf("Expiration Time not found in %s.", mainContext)))
	} else {
		result = result.Merge(capability.ValidateExpirationAt(env.Expiration, mainContext, now))
	}

	return &env, result
}

// ValidateSessionSigs validates every entry of a session signature map.
// Errors are prefixed with the node they belong to. Entries must share one
// session key and one expiration, and ed25519 entries must verify.
func ValidateSessionSigs(sigs core.SessionSigs) core.ValidationResult {
	return ValidateSessionSigsAt(sigs, time.Now())
}

// ValidateSessionSigsAt is ValidateSessionSigs against a fixed clock
func ValidateSessionSigsAt(sigs core.SessionSigs, now time.Time) core.ValidationResult {
	if len(sigs) == 0 {
		return core.Invalid("No session signatures provided.")
	}

	nodes := sigs.Nodes()
	sort.Strings(nodes)

	result := core.Valid()
	var first *core.SessionEnvelope
	var firstNode string

	for _, node := range nodes {
		sig := sigs[node]
		env, res := validateSessionSignature(sig, now)
		result = result.Merge(prefixed(node, res))
		if env == nil {
			continue
		}

		if sig.DerivedVia == core.DerivedViaEd25519 {
			if err := sessionkey.VerifyAuthSig(sig); err != nil {
				result = result.Merge(core.Invalid(fmt.Sprintf("[%s] %v", node, err)))
			} else if sig.Address != env.SessionKey {
				result = result.Merge(core.Invalid(fmt.Sprintf("[%s] signed by %s, not session key %s", node, sig.Address, env.SessionKey)))
			}
		}

		if first == nil {
			first, firstNode = env, node
			continue
		}
		if env.SessionKey != first.SessionKey {
			result = result.Merge(core.Invalid(fmt.Sprintf("[%s] sessionKey differs from [%s]", node, firstNode)))
		}
		if env.Expiration != first.Expiration {
			result = result.Merge(core.Invalid(fmt.Sprintf("[%s] expiration differs from [%s]", node, firstNode)))
		}
	}

	return result
}

func prefixed(node string, r core.ValidationResult) core.ValidationResult {
	errs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, fmt.Sprintf("[%s] %s", node, e))
	}
	return core.ValidationResult{Valid: r.Valid, Errors: errs}
}
