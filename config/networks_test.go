package config

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestNetwork(t *testing.T) {
	c := qt.New(t)

	cfg, err := Network("")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.NetworkID, qt.Equals, NetworkUndeployed)

	cfg, err = Network(NetworkPreprod)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.AssetsURI, qt.Equals, DefaultArtifactsBaseURL+"/preprod")

	_, err = Network("mainnet")
	c.Assert(err, qt.ErrorMatches, `unknown network "mainnet", available: \[preprod testnet undeployed\]`)
}

func TestMerge(t *testing.T) {
	c := qt.New(t)
	defaults := DefaultConfig[NetworkUndeployed]
	merged := NetworkConfig{IndexerURI: "http://other"}.Merge(defaults)
	c.Assert(merged.IndexerURI, qt.Equals, "http://other")
	c.Assert(merged.ProofServerURI, qt.Equals, defaults.ProofServerURI)
	c.Assert(merged.NetworkID, qt.Equals, NetworkUndeployed)
}
