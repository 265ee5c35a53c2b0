// Package config holds the per-network defaults of the donation client:
// where the indexer, node and proof server of each network live and where
// the compiled circuit artifacts are published.
package config

import (
	"fmt"
	"sort"
)

// NetworkConfig contains the service endpoints of a network.
type NetworkConfig struct {
	NetworkID      string
	IndexerURI     string
	IndexerWsURI   string
	NodeURI        string
	ProofServerURI string
	// AssetsURI is the root of the published circuit artifacts.
	AssetsURI string
}

const (
	NetworkUndeployed = "undeployed"
	NetworkPreprod    = "preprod"
	NetworkTestnet    = "testnet"

	// DefaultNetwork is used when none is configured.
	DefaultNetwork = NetworkUndeployed
)

// DefaultConfig contains the endpoints of every known network. The
// undeployed network is the local stack started by the standalone
// docker setup.
var DefaultConfig = map[string]NetworkConfig{
	NetworkUndeployed: {
		NetworkID:      NetworkUndeployed,
		IndexerURI:     "http://127.0.0.1:8088/api/v1/graphql",
		IndexerWsURI:   "ws://127.0.0.1:8088/api/v1/graphql/ws",
		NodeURI:        "http://127.0.0.1:9944",
		ProofServerURI: "http://127.0.0.1:6300",
		AssetsURI:      "http://127.0.0.1:8080",
	},
	NetworkPreprod: {
		NetworkID:      NetworkPreprod,
		IndexerURI:     "https://indexer.preprod.midnight.network/api/v3/graphql",
		IndexerWsURI:   "wss://indexer.preprod.midnight.network/api/v3/graphql/ws",
		NodeURI:        "https://rpc.preprod.midnight.network",
		ProofServerURI: "http://127.0.0.1:6300",
		AssetsURI:      fmt.Sprintf("%s/%s", DefaultArtifactsBaseURL, NetworkPreprod),
	},
	NetworkTestnet: {
		NetworkID:      NetworkTestnet,
		IndexerURI:     "https://indexer.testnet-02.midnight.network/api/v1/graphql",
		IndexerWsURI:   "wss://indexer.testnet-02.midnight.network/api/v1/graphql/ws",
		NodeURI:        "https://rpc.testnet-02.midnight.network",
		ProofServerURI: "http://127.0.0.1:6300",
		AssetsURI:      fmt.Sprintf("%s/%s", DefaultArtifactsBaseURL, NetworkTestnet),
	},
}

// AvailableNetworks returns the names of the known networks, sorted.
func AvailableNetworks() []string {
	names := make([]string, 0, len(DefaultConfig))
	for name := range DefaultConfig {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Network returns the defaults of the named network.
func Network(name string) (NetworkConfig, error) {
	if name == "" {
		name = DefaultNetwork
	}
	cfg, ok := DefaultConfig[name]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unknown network %q, available: %v", name, AvailableNetworks())
	}
	return cfg, nil
}

// Merge returns cfg with every empty field taken from defaults.
func (cfg NetworkConfig) Merge(defaults NetworkConfig) NetworkConfig {
	pick := func(v, def string) string {
		if v != "" {
			return v
		}
		return def
	}
	return NetworkConfig{
		NetworkID:      pick(cfg.NetworkID, defaults.NetworkID),
		IndexerURI:     pick(cfg.IndexerURI, defaults.IndexerURI),
		IndexerWsURI:   pick(cfg.IndexerWsURI, defaults.IndexerWsURI),
		NodeURI:        pick(cfg.NodeURI, defaults.NodeURI),
		ProofServerURI: pick(cfg.ProofServerURI, defaults.ProofServerURI),
		AssetsURI:      pick(cfg.AssetsURI, defaults.AssetsURI),
	}
}
