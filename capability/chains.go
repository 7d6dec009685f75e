package capability

import (
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// DefaultChain is used when a request names no chain
const DefaultChain = "ethereum"

// FallbackChainID is used for chain names that are not recognized
const FallbackChainID int64 = 1

var chainIDs = map[string]int64{
	"ethereum":    params.MainnetChainConfig.ChainID.Int64(),
	"sepolia":     params.SepoliaChainConfig.ChainID.Int64(),
	"holesky":     params.HoleskyChainConfig.ChainID.Int64(),
	"optimism":    10,
	"bsc":         56,
	"gnosis":      100,
	"xdai":        100,
	"polygon":     137,
	"fantom":      250,
	"zksync":      324,
	"base":        8453,
	"arbitrum":    42161,
	"celo":        42220,
	"avalanche":   43114,
	"mumbai":      80001,
	"amoy":        80002,
	"chronicle":   175177,
	"yellowstone": 175188,
}

// ResolveChainID resolves name, empty meaning DefaultChain. Unknown names
// resolve to FallbackChainID with ok set to false.
func ResolveChainID(name string) (id int64, ok bool) {
	if strings.TrimSpace(name) == "" {
		name = DefaultChain
	}
	if id, ok := ChainID(name); ok {
		return id, true
	}
	return FallbackChainID, false
}

// ChainID resolves a chain name, case-insensitively
func ChainID(name string) (int64, bool) {
	id, ok := chainIDs[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}
