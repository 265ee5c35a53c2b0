// Package witness supplies the private inputs of the donation circuits.
//
// Witness functions run inside a circuit execution. They read the caller's
// private state from the execution context and return the value the
// circuit asked for together with the private state the execution should
// continue with. Nothing returned here ever reaches the ledger directly.
package witness

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/anondonation/ledger"
	"github.com/vocdoni/anondonation/types"
)

// ErrMissingPrivateState is returned when a circuit runs without the
// caller's private state.
var ErrMissingPrivateState = errors.New("no private state in context")

// Context is the execution context handed to every witness function.
type Context struct {
	ContractAddress types.HexBytes
	Ledger          *ledger.CampaignState
	PrivateState    *PrivateState
	// DonationAmount is the amount supplied for this call. It travels with
	// the call itself so concurrent or failed calls never see each other's
	// amount. Nil means the persisted amount applies.
	DonationAmount *big.Int
}

// Set groups the witness functions the donation circuits consume.
type Set struct {
	RecipientSecretKey func(*Context) (*PrivateState, types.HexBytes, error)
	DonationAmount     func(*Context) (*PrivateState, *big.Int, error)
}

// Default returns the witnesses backed by the caller's private state.
func Default() Set {
	return Set{
		RecipientSecretKey: RecipientSecretKey,
		DonationAmount:     DonationAmount,
	}
}

// RecipientSecretKey returns the recipient secret key held in the private
// state. The private state is returned unchanged.
func RecipientSecretKey(ctx *Context) (*PrivateState, types.HexBytes, error) {
	ps, err := privateState(ctx, "recipientSecretKey")
	if err != nil {
		return nil, nil, err
	}
	return ps, append(types.HexBytes(nil), ps.RecipientSecretKey...), nil
}

// DonationAmount returns the amount to donate. A per-call amount takes
// precedence and is recorded in the returned private state; otherwise the
// persisted amount is used.
func DonationAmount(ctx *Context) (*PrivateState, *big.Int, error) {
	ps, err := privateState(ctx, "donationAmount")
	if err != nil {
		return nil, nil, err
	}
	if ctx.DonationAmount == nil {
		return ps, ps.Amount(), nil
	}
	next := ps.Clone()
	next.DonationAmount = new(types.BigInt).SetBigInt(ctx.DonationAmount)
	return next, new(big.Int).Set(ctx.DonationAmount), nil
}

func privateState(ctx *Context, name string) (*PrivateState, error) {
	if ctx == nil || ctx.PrivateState == nil {
		return nil, fmt.Errorf("%s witness: %w", name, ErrMissingPrivateState)
	}
	return ctx.PrivateState.Clone(), nil
}
