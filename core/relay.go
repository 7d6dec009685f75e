package core

import "time"

// AuthMethodScope is a permission scope granted to an auth method on a PKP
type AuthMethodScope int

const (
	ScopeNoPermissions AuthMethodScope = 0
	ScopeSignAnything  AuthMethodScope = 1
	ScopePersonalSign  AuthMethodScope = 2
)

// KeyTypeECDSA is the only key type the relay mints
const KeyTypeECDSA = "2"

// PollStatusSucceeded is the terminal success status reported by the relay
const PollStatusSucceeded = "Succeeded"

// MintRequest is the body of a mint-next-and-add-auth-methods call
type MintRequest struct {
	KeyType                            string     `json:"keyType"`
	PermittedAuthMethodTypes           []string   `json:"permittedAuthMethodTypes"`
	PermittedAuthMethodIDs             []string   `json:"permittedAuthMethodIds"`
	PermittedAuthMethodPubkeys         []string   `json:"permittedAuthMethodPubkeys"`
	PermittedAuthMethodScopes          [][]string `json:"permittedAuthMethodScopes"`
	AddPKPEthAddressAsPermittedAddress bool       `json:"addPkpEthAddressAsPermittedAddress"`
	SendPKPToItself                    bool       `json:"sendPkpToItself"`
}

// FetchRequest looks up PKPs bound to an auth method
type FetchRequest struct {
	AuthMethodType AuthMethodType `json:"authMethodType"`
	AuthMethodID   string         `json:"authMethodId"`
}

// MintResponse is returned when a mint request is accepted
type MintResponse struct {
	RequestID string `json:"requestId"`
	Error     string `json:"error,omitempty"`
}

// FetchResponse lists PKPs bound to an auth method
type FetchResponse struct {
	PKPs  []PKP  `json:"pkps"`
	Error string `json:"error,omitempty"`
}

// PollStatus is the relay's view of a mint request
type PollStatus struct {
	Status        string `json:"status"`
	RequestID     string `json:"requestId,omitempty"`
	PKPTokenID    string `json:"pkpTokenId,omitempty"`
	PKPPublicKey  string `json:"pkpPublicKey,omitempty"`
	PKPEthAddress string `json:"pkpEthAddress,omitempty"`
	Error         string `json:"error,omitempty"`
}

// PKP converts a succeeded poll payload into a key record
func (p PollStatus) PKP() PKP {
	return PKP{
		TokenID:    p.PKPTokenID,
		PublicKey:  p.PKPPublicKey,
		EthAddress: p.PKPEthAddress,
	}
}

const (
	// DefaultPollInterval is the fixed delay between status requests
	DefaultPollInterval = 15 * time.Second

	// DefaultMaxPolls is the number of status requests before giving up
	DefaultMaxPolls = 20
)

// PollOptions tunes PollRequestUntilTerminalState. Zero values select the defaults.
type PollOptions struct {
	Interval time.Duration
	MaxPolls int
}

// WithDefaults fills zero fields
func (o PollOptions) WithDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.MaxPolls <= 0 {
		o.MaxPolls = DefaultMaxPolls
	}
	return o
}

// MintOptions tunes MintPKPWithAuthMethods
type MintOptions struct {
	// Scopes holds one scope list per auth method. Missing entries default to SignAnything.
	Scopes [][]AuthMethodScope
	// AddPKPEthAddressAsPermittedAddress defaults to true when nil.
	AddPKPEthAddressAsPermittedAddress *bool
	// SendPKPToItself defaults to true when nil.
	SendPKPToItself *bool
	Poll            PollOptions
}
