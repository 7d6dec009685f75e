package core

import (
	"encoding/json"
	"fmt"
)

// AuthMethodType identifies the kind of identity proof carried by an AuthMethod
type AuthMethodType int

const (
	AuthMethodTypeEthWallet AuthMethodType = 1
	AuthMethodTypeWebAuthn  AuthMethodType = 3
	AuthMethodTypeDiscord   AuthMethodType = 4
	AuthMethodTypeGoogleJWT AuthMethodType = 6
	AuthMethodTypeStytchOTP AuthMethodType = 9
)

// AuthMethodTypes lists every supported kind, in relay order
var AuthMethodTypes = []AuthMethodType{
	AuthMethodTypeEthWallet,
	AuthMethodTypeWebAuthn,
	AuthMethodTypeDiscord,
	AuthMethodTypeGoogleJWT,
	AuthMethodTypeStytchOTP,
}

func (t AuthMethodType) String() string {
	switch t {
	case AuthMethodTypeEthWallet:
		return "eth_wallet"
	case AuthMethodTypeWebAuthn:
		return "webauthn"
	case AuthMethodTypeDiscord:
		return "discord"
	case AuthMethodTypeGoogleJWT:
		return "google_jwt"
	case AuthMethodTypeStytchOTP:
		return "stytch_otp"
	}
	return fmt.Sprintf("auth_method(%d)", int(t))
}

// Valid reports whether t is one of the supported kinds
func (t AuthMethodType) Valid() bool {
	for _, known := range AuthMethodTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseAuthMethodType resolves a kind from its String() name
func ParseAuthMethodType(name string) (AuthMethodType, error) {
	for _, t := range AuthMethodTypes {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAuthMethod, name)
}

// AuthMethod is a normalized proof of identity produced by a provider
type AuthMethod struct {
	Type        AuthMethodType `json:"authMethodType"`
	AccessToken string         `json:"accessToken"`
}

// AuthSig is one party's signature over a signed statement
type AuthSig struct {
	Sig           string `json:"sig"`
	DerivedVia    string `json:"derivedVia"`
	SignedMessage string `json:"signedMessage"`
	Address       string `json:"address"`
}

// Derivation methods used in AuthSig.DerivedVia
const (
	DerivedViaPersonalSign = "web3.eth.personal.sign"
	DerivedViaEd25519      = "ed25519"
)

// ParseAuthSig decodes an AuthSig stored as JSON, e.g. in a wallet AuthMethod access token
func ParseAuthSig(raw string) (AuthSig, error) {
	var sig AuthSig
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		return AuthSig{}, fmt.Errorf("decoding auth sig: %w", err)
	}
	if sig.Sig == "" || sig.SignedMessage == "" || sig.Address == "" {
		return AuthSig{}, ErrMissingAuthSig
	}
	return sig, nil
}

// PKP is a custodial key record bound to one or more auth methods
type PKP struct {
	TokenID    string `json:"tokenId"`
	PublicKey  string `json:"publicKey"`
	EthAddress string `json:"ethAddress"`
}

// Resource types understood by the signing nodes
const (
	ResourceTypePKP    = "pkp"
	ResourceTypeAction = "action"
	ResourceTypeACC    = "acc"
)

// Abilities that may be requested over a resource
const (
	AbilityPKPSigning      = "pkp-signing"
	AbilityActionExecution = "action-execution"
	AbilityACCDecryption   = "access-control-condition-decryption"
	AbilityACCSigning      = "access-control-condition-signing"
)

// Resource names a class of objects a session may act upon
type Resource struct {
	Type     string `json:"type"`
	Selector string `json:"selector"`
}

// Key returns the URI form of the resource, e.g. pkp://*
func (r Resource) Key() string {
	return r.Type + "://" + r.Selector
}

// ResourceAbilityRequest asks for one ability over one resource
type ResourceAbilityRequest struct {
	Resource Resource `json:"resource"`
	Ability  string   `json:"ability"`
}

// SessionEnvelope is the structured signedMessage of each session signature
type SessionEnvelope struct {
	SessionKey              string                   `json:"sessionKey"`
	ResourceAbilityRequests []ResourceAbilityRequest `json:"resourceAbilityRequests"`
	Capabilities            []AuthSig                `json:"capabilities"`
	IssuedAt                string                   `json:"issuedAt"`
	Expiration              string                   `json:"expiration"`
	NodeAddress             string                   `json:"nodeAddress"`
}

// SessionSigs maps a node URL to the session signature issued for it
type SessionSigs map[string]AuthSig

// Nodes returns the node URLs present in the map
func (s SessionSigs) Nodes() []string {
	nodes := make([]string, 0, len(s))
	for node := range s {
		nodes = append(nodes, node)
	}
	return nodes
}

// SessionSigsParams describes a session signature request
type SessionSigsParams struct {
	// PKPPublicKey is the key record the session acts for.
	PKPPublicKey string `json:"pkpPublicKey"`
	// AuthMethod proves control of an identity bound to the PKP.
	AuthMethod AuthMethod `json:"authMethod"`
	// ResourceAbilityRequests lists the abilities the session may use.
	ResourceAbilityRequests []ResourceAbilityRequest `json:"resourceAbilityRequests"`
	// Chain is a chain name, e.g. "ethereum". Unknown names resolve to chain ID 1.
	Chain string `json:"chain,omitempty"`
	// Expiration is an RFC3339 timestamp. Empty means the generator default.
	Expiration string `json:"expiration,omitempty"`
	// Statement is free text included in the delegated capability.
	Statement string `json:"statement,omitempty"`
}

// SignSessionKeyRequest is sent to each node to obtain a delegated capability
type SignSessionKeyRequest struct {
	SessionKey   string       `json:"sessionKey"`
	AuthMethods  []AuthMethod `json:"authMethods"`
	AuthSig      *AuthSig     `json:"authSig,omitempty"`
	PKPPublicKey string       `json:"pkpPublicKey"`
	Expiration   string       `json:"expiration"`
	Resources    []string     `json:"resources"`
	Statement    string       `json:"statement,omitempty"`
	ChainID      int64        `json:"chainId"`
	Nonce        string       `json:"nonce"`
}
