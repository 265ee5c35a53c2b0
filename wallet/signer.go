// Package wallet bridges a wallet signer into the provider the transaction
// pipeline needs.
//
// The signer only exposes a narrow set of primitives and only accepts plain
// values (see package sanitize). Provider wraps it with the identities the
// pipeline expects, normalizes what goes in and what comes out, and
// classifies signer failures.
package wallet

import (
	"context"
)

// Configuration is the network configuration reported by the signer.
type Configuration struct {
	IndexerURI     string `json:"indexerUri" cbor:"indexerUri" mapstructure:"indexerUri"`
	IndexerWsURI   string `json:"indexerWsUri" cbor:"indexerWsUri" mapstructure:"indexerWsUri"`
	NodeURI        string `json:"nodeUri" cbor:"nodeUri" mapstructure:"nodeUri"`
	ProofServerURI string `json:"proofServerUri" cbor:"proofServerUri" mapstructure:"proofServerUri"`
	NetworkID      string `json:"networkId" cbor:"networkId" mapstructure:"networkId"`
}

// Signer is the wallet signer primitive set. Transactions cross this
// boundary as sanitized plain values.
type Signer interface {
	UnshieldedAddress(ctx context.Context) (string, error)
	Configuration(ctx context.Context) (*Configuration, error)
	BalanceUnsealedTransaction(ctx context.Context, tx any) (any, error)
	SubmitTransaction(ctx context.Context, tx any) (any, error)
	ProveTransaction(ctx context.Context, tx any) (any, error)
}
