package contract

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/vocdoni/anondonation/ledger"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/witness"
)

type circuitFunc func(wctx *witness.Context) (*ledger.CampaignState, *witness.PrivateState, error)

// Donation is the in-process implementation of the donation contract.
type Donation struct {
	witnesses witness.Set
	circuits  map[string]circuitFunc
}

var _ Simulator = (*Donation)(nil)

// NewDonation returns the donation contract bound to the given witnesses.
// Zero witness functions are replaced by the defaults.
func NewDonation(ws witness.Set) *Donation {
	def := witness.Default()
	if ws.RecipientSecretKey == nil {
		ws.RecipientSecretKey = def.RecipientSecretKey
	}
	if ws.DonationAmount == nil {
		ws.DonationAmount = def.DonationAmount
	}
	d := &Donation{witnesses: ws}
	d.circuits = map[string]circuitFunc{
		CircuitDonate:   d.donate,
		CircuitWithdraw: d.withdraw,
	}
	return d
}

// Construct implements Simulator. The recipient secret key is read from the
// private state and only its round 0 commitment reaches the ledger.
func (d *Donation) Construct(ctx context.Context, wctx *witness.Context, coinPublicKey string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ps, sk, err := d.witnesses.RecipientSecretKey(wctx)
	if err != nil {
		return nil, err
	}
	if len(sk) != witness.SecretKeySize {
		return nil, assertf("recipient secret key must be %d bytes", witness.SecretKeySize)
	}
	state := &ledger.CampaignState{
		RecipientAuthority: RecipientAuthority(sk, 0),
		DonationCount:      0,
		Round:              0,
	}
	encoded, err := state.Encode()
	if err != nil {
		return nil, err
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	tx := &types.UnprovenTx{
		Kind:            types.TxKindDeploy,
		ContractAddress: ContractAddress(coinPublicKey, nonce),
		Circuit:         types.NewCircuitID(Tag, CircuitConstructor),
		NextState:       encoded,
		Nonce:           nonce,
		CoinPublicKey:   coinPublicKey,
	}
	log.Debugw("constructed donation contract", "contract", tx.ContractAddress.String())
	return &Result{Ledger: state, PrivateState: ps, Tx: tx}, nil
}

// Call implements Simulator.
func (d *Donation) Call(ctx context.Context, circuit string, wctx *witness.Context, coinPublicKey string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn, ok := d.circuits[circuit]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCircuit, circuit)
	}
	if wctx == nil || wctx.Ledger == nil {
		return nil, fmt.Errorf("circuit %s: no ledger state in context", circuit)
	}
	prevHash, err := wctx.Ledger.Hash()
	if err != nil {
		return nil, err
	}
	next, ps, err := fn(wctx)
	if err != nil {
		return nil, fmt.Errorf("circuit %s: %w", circuit, err)
	}
	encoded, err := next.Encode()
	if err != nil {
		return nil, err
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	return &Result{
		Ledger:       next,
		PrivateState: ps,
		Tx: &types.UnprovenTx{
			Kind:            types.TxKindCall,
			ContractAddress: wctx.ContractAddress,
			Circuit:         types.NewCircuitID(Tag, circuit),
			PrevStateHash:   prevHash,
			NextState:       encoded,
			Nonce:           nonce,
			CoinPublicKey:   coinPublicKey,
		},
	}, nil
}

// donate records one more donation. The amount stays private: it is only
// checked to be positive and to fit in 256 bits.
func (d *Donation) donate(wctx *witness.Context) (*ledger.CampaignState, *witness.PrivateState, error) {
	ps, amount, err := d.witnesses.DonationAmount(wctx)
	if err != nil {
		return nil, nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, assertf("donation amount must be positive")
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return nil, nil, assertf("donation amount exceeds 256 bits")
	}
	next := wctx.Ledger.Clone()
	next.DonationCount++
	return next, ps, nil
}

// withdraw proves knowledge of the recipient secret key behind the current
// round commitment, then moves to the next round with a fresh commitment.
func (d *Donation) withdraw(wctx *witness.Context) (*ledger.CampaignState, *witness.PrivateState, error) {
	ps, sk, err := d.witnesses.RecipientSecretKey(wctx)
	if err != nil {
		return nil, nil, err
	}
	cur := wctx.Ledger
	if !RecipientAuthority(sk, cur.Round).Equal(cur.RecipientAuthority) {
		return nil, nil, assertf("caller is not the campaign recipient")
	}
	next := cur.Clone()
	next.Round++
	next.RecipientAuthority = RecipientAuthority(sk, next.Round)
	return next, ps, nil
}
