// Package ledger reads the public side of donation campaigns: contract
// states and transaction inclusion, as served by the network indexer.
package ledger

import (
	"context"
	"errors"

	"github.com/vocdoni/anondonation/types"
)

var (
	// ErrContractNotFound is returned when no contract exists at an address.
	ErrContractNotFound = errors.New("contract not found")
	// ErrTxNotFound is returned when the indexer does not know a transaction yet.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrTxFailed is returned when a transaction was included but not applied.
	ErrTxFailed = errors.New("transaction failed to apply")
	// ErrTimeout is returned when waiting for the ledger exceeds its deadline.
	ErrTimeout = errors.New("ledger timeout")
)

// ContractState is the raw public state of a contract at a block height.
type ContractState struct {
	Address     types.HexBytes
	Data        types.HexBytes
	BlockHeight uint64
}

// Campaign decodes the raw state as a donation campaign.
func (cs *ContractState) Campaign() (*CampaignState, error) {
	return DecodeCampaignState(cs.Data)
}

// TxData describes a transaction once it has been included in a block.
type TxData struct {
	TxID        string
	BlockHeight uint64
	Applied     bool
}

// PublicDataProvider is the read-only view of the ledger used by the
// transaction pipeline.
type PublicDataProvider interface {
	// ContractState returns the latest state of the contract at address, or
	// ErrContractNotFound.
	ContractState(ctx context.Context, address types.HexBytes) (*ContractState, error)
	// WatchForTxData blocks until the transaction is included in a block,
	// the context is done, or the provider gives up with ErrTimeout.
	WatchForTxData(ctx context.Context, txID string) (*TxData, error)
}
