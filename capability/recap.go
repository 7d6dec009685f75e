package capability

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/layer-3/pkpauth/core"
)

// RecapPrefix starts every recap resource URN
const RecapPrefix = "urn:recap:"

var ErrMalformedRecap = errors.New("malformed recap resource")

var recapAbilities = map[string]string{
	core.AbilityPKPSigning:      "Threshold/Signing",
	core.AbilityActionExecution: "Threshold/Execution",
	core.AbilityACCDecryption:   "Threshold/Decryption",
	core.AbilityACCSigning:      "Threshold/Signing",
}

type recap struct {
	Att map[string]map[string][]map[string]any `json:"att"`
	Prf []string                               `json:"prf"`
}

// EncodeRecap packs resource ability requests into a single recap URN
func EncodeRecap(reqs []core.ResourceAbilityRequest) (string, error) {
	r := recap{
		Att: make(map[string]map[string][]map[string]any),
		Prf: []string{},
	}
	for _, req := range reqs {
		ability, ok := recapAbilities[req.Ability]
		if !ok {
			return "", fmt.Errorf("%w: unknown ability %q", ErrMalformedRecap, req.Ability)
		}
		key := req.Resource.Key()
		if r.Att[key] == nil {
			r.Att[key] = make(map[string][]map[string]any)
		}
		r.Att[key][ability] = []map[string]any{{}}
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding recap: %w", err)
	}
	return RecapPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeRecap unpacks a recap URN into resource ability requests, sorted by resource and ability
func DecodeRecap(urn string) ([]core.ResourceAbilityRequest, error) {
	if !strings.HasPrefix(urn, RecapPrefix) {
		return nil, fmt.Errorf("%w: missing %s prefix", ErrMalformedRecap, RecapPrefix)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimPrefix(urn, RecapPrefix), "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecap, err)
	}

	var r recap
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecap, err)
	}

	var reqs []core.ResourceAbilityRequest
	for key, abilities := range r.Att {
		resource, err := ParseResourceKey(key)
		if err != nil {
			return nil, err
		}
		for recapAbility := range abilities {
			ability, err := abilityFor(resource.Type, recapAbility)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, core.ResourceAbilityRequest{Resource: resource, Ability: ability})
		}
	}

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Resource.Key() != reqs[j].Resource.Key() {
			return reqs[i].Resource.Key() < reqs[j].Resource.Key()
		}
		return reqs[i].Ability < reqs[j].Ability
	})
	return reqs, nil
}

// ParseResourceKey splits "type://selector"
func ParseResourceKey(key string) (core.Resource, error) {
	typ, selector, ok := strings.Cut(key, "://")
	if !ok || typ == "" || selector == "" {
		return core.Resource{}, fmt.Errorf("%w: resource %q", ErrMalformedRecap, key)
	}
	return core.Resource{Type: typ, Selector: selector}, nil
}

func abilityFor(resourceType, recapAbility string) (string, error) {
	switch {
	case resourceType == core.ResourceTypePKP && recapAbility == "Threshold/Signing":
		return core.AbilityPKPSigning, nil
	case resourceType == core.ResourceTypeAction && recapAbility == "Threshold/Execution":
		return core.AbilityActionExecution, nil
	case resourceType == core.ResourceTypeACC && recapAbility == "Threshold/Decryption":
		return core.AbilityACCDecryption, nil
	case resourceType == core.ResourceTypeACC && recapAbility == "Threshold/Signing":
		return core.AbilityACCSigning, nil
	}
	return "", fmt.Errorf("%w: %s on %s", ErrMalformedRecap, recapAbility, resourceType)
}
