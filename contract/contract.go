// Package contract executes the donation circuits locally.
//
// Running a circuit produces the next public ledger state, the next private
// state and an unproven transaction describing the transition. The
// transaction still has to be balanced, proven and submitted before the
// ledger accepts it.
package contract

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/anondonation/ledger"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/witness"
)

const (
	// Tag is the contract tag used in every circuit id of the contract.
	Tag = "donation"

	CircuitConstructor = "constructor"
	CircuitDonate      = "donate"
	CircuitWithdraw    = "withdraw"

	authorityDomain = "donation:pk:"
	addressDomain   = "donation:address:"
	nonceSize       = 32
)

var (
	// ErrCircuitAssertion is returned when a circuit constraint does not hold.
	ErrCircuitAssertion = errors.New("circuit assertion failed")
	// ErrUnknownCircuit is returned for circuits the contract does not export.
	ErrUnknownCircuit = errors.New("unknown circuit")
)

// Circuits returns the ids of every circuit a call may need artifacts for,
// the constructor included.
func Circuits() []types.CircuitID {
	return []types.CircuitID{
		types.NewCircuitID(Tag, CircuitConstructor),
		types.NewCircuitID(Tag, CircuitDonate),
		types.NewCircuitID(Tag, CircuitWithdraw),
	}
}

// Result is the outcome of a local circuit execution.
type Result struct {
	Ledger       *ledger.CampaignState
	PrivateState *witness.PrivateState
	Tx           *types.UnprovenTx
}

// Simulator executes contract circuits locally.
type Simulator interface {
	// Construct runs the constructor for a new contract deployed by the
	// owner of coinPublicKey.
	Construct(ctx context.Context, wctx *witness.Context, coinPublicKey string) (*Result, error)
	// Call runs the named circuit over the state in wctx.
	Call(ctx context.Context, circuit string, wctx *witness.Context, coinPublicKey string) (*Result, error)
}

// RecipientAuthority derives the public commitment to the recipient secret
// key for a round. Each round gets a fresh commitment, so withdrawals from
// different rounds cannot be linked through the ledger.
func RecipientAuthority(secretKey []byte, round uint64) types.HexBytes {
	var r [32]byte
	binary.BigEndian.PutUint64(r[24:], round)
	return crypto.Keccak256([]byte(authorityDomain), r[:], secretKey)
}

// ContractAddress derives the address of a contract from its deployer and
// the deploy transaction nonce.
func ContractAddress(coinPublicKey string, nonce []byte) types.HexBytes {
	return crypto.Keccak256([]byte(addressDomain), []byte(coinPublicKey), nonce)
}

func newNonce() (types.HexBytes, error) {
	nonce := make(types.HexBytes, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

func assertf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCircuitAssertion, fmt.Sprintf(format, args...))
}
