package capability

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/pkpauth/core"
)

func TestRecapRoundTrip(t *testing.T) {
	reqs := []core.ResourceAbilityRequest{
		{Resource: core.Resource{Type: core.ResourceTypeACC, Selector: "*"}, Ability: core.AbilityACCDecryption},
		{Resource: core.Resource{Type: core.ResourceTypeAction, Selector: "*"}, Ability: core.AbilityActionExecution},
		{Resource: core.Resource{Type: core.ResourceTypePKP, Selector: "*"}, Ability: core.AbilityPKPSigning},
	}

	urn, err := EncodeRecap(reqs)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(urn, RecapPrefix))

	again, err := EncodeRecap(reqs)
	require.NoError(t, err)
	assert.Equal(t, urn, again, "encoding must be deterministic")

	got, err := DecodeRecap(urn)
	require.NoError(t, err)
	assert.Equal(t, reqs, got)
}

func TestRecapInsideSIWEResources(t *testing.T) {
	reqs := []core.ResourceAbilityRequest{
		{Resource: core.Resource{Type: core.ResourceTypePKP, Selector: "*"}, Ability: core.AbilityPKPSigning},
	}
	urn, err := EncodeRecap(reqs)
	require.NoError(t, err)

	msg := SIWE{Domain: "d", Address: "0x1", URI: "u", ChainID: 1, Nonce: "n", IssuedAt: "i", Resources: []string{urn}}
	parsed, err := ParseSIWE(msg.String())
	require.NoError(t, err)
	require.Len(t, parsed.Resources, 1)

	got, err := DecodeRecap(parsed.Resources[0])
	require.NoError(t, err)
	assert.Equal(t, reqs, got)
}

func TestRecapErrors(t *testing.T) {
	_, err := EncodeRecap([]core.ResourceAbilityRequest{{Resource: core.Resource{Type: "pkp", Selector: "*"}, Ability: "fly"}})
	assert.ErrorIs(t, err, ErrMalformedRecap)

	tests := map[string]string{
		"no prefix":     "urn:other:abc",
		"bad base64":    RecapPrefix + "!!!",
		"bad json":      RecapPrefix + base64.RawURLEncoding.EncodeToString([]byte("{")),
		"bad resource":  RecapPrefix + base64.RawURLEncoding.EncodeToString([]byte(`{"att":{"pkp":{"Threshold/Signing":[{}]}}}`)),
		"wrong ability": RecapPrefix + base64.RawURLEncoding.EncodeToString([]byte(`{"att":{"pkp://*":{"Threshold/Execution":[{}]}}}`)),
	}
	for name, urn := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRecap(urn)
			assert.ErrorIs(t, err, ErrMalformedRecap)
		})
	}
}
