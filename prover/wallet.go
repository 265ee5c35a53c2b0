package prover

import (
	"context"

	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/wallet"
)

// WalletProver proves transactions with the wallet's own prover.
type WalletProver struct {
	wallet *wallet.Provider
}

var _ ProofProvider = (*WalletProver)(nil)

// NewWalletProver returns a ProofProvider delegating to w.
func NewWalletProver(w *wallet.Provider) *WalletProver {
	return &WalletProver{wallet: w}
}

// Prove implements ProofProvider. The wallet knows the circuit from the
// transaction itself.
func (p *WalletProver) Prove(ctx context.Context, _ types.CircuitID, tx []byte) ([]byte, error) {
	return p.wallet.ProveTx(ctx, tx)
}
