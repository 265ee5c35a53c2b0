// Package pipeline runs a circuit call end to end: local simulation,
// balancing by the wallet, proving, submission and, optionally,
// confirmation by the ledger.
//
// Stages run strictly in order and nothing is retried. The caller's new
// private state is handed to the commit function once the transaction is
// submitted; a call that fails earlier leaves no trace in private state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/anondonation/contract"
	"github.com/vocdoni/anondonation/ledger"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/prover"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/witness"
)

// Wallet is the part of the wallet provider the pipeline uses.
// *wallet.Provider implements it.
type Wallet interface {
	CoinPublicKey() string
	BalanceTx(ctx context.Context, tx any) (types.HexBytes, error)
	SubmitTx(ctx context.Context, tx []byte) (string, error)
}

// Call describes one circuit call. An empty Circuit deploys a new contract.
type Call struct {
	Circuit         string
	ContractAddress types.HexBytes
	PrivateState    *witness.PrivateState
	// DonationAmount is the per-call amount for the donate circuit. Nil
	// falls back to the amount in the private state.
	DonationAmount *big.Int
	// Confirm waits for the ledger to include the transaction.
	Confirm bool
}

// Result is the outcome of a circuit call.
type Result struct {
	CallID          string
	Stage           Stage
	TxID            string
	BlockHeight     uint64
	ContractAddress types.HexBytes
	Ledger          *ledger.CampaignState
	PrivateState    *witness.PrivateState
}

// CommitFunc persists the private state of a submitted call.
type CommitFunc func(ctx context.Context, res *Result) error

// StageFunc observes stage transitions.
type StageFunc func(callID string, stage Stage)

// Config holds the collaborators of a Pipeline. Simulator, Wallet and
// Prover are required. Ledger is required for calls on existing contracts
// and for confirmation.
type Config struct {
	Simulator contract.Simulator
	Wallet    Wallet
	Prover    prover.ProofProvider
	Ledger    ledger.PublicDataProvider
	Commit    CommitFunc
	OnStage   StageFunc
}

// Pipeline executes circuit calls.
type Pipeline struct {
	cfg Config
}

// New validates cfg and returns a pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Simulator == nil:
		return nil, fmt.Errorf("pipeline: missing simulator")
	case cfg.Wallet == nil:
		return nil, fmt.Errorf("pipeline: missing wallet")
	case cfg.Prover == nil:
		return nil, fmt.Errorf("pipeline: missing prover")
	}
	return &Pipeline{cfg: cfg}, nil
}

// run tracks the progress of a single call.
type run struct {
	p     *Pipeline
	res   *Result
	call  Call
	start time.Time
}

func (r *run) advance(stage Stage) {
	r.res.Stage = stage
	log.Debugw("circuit call stage",
		"callId", r.res.CallID,
		"circuit", r.circuit(),
		"stage", stage.String(),
		"elapsed", time.Since(r.start).String())
	if r.p.cfg.OnStage != nil {
		r.p.cfg.OnStage(r.res.CallID, stage)
	}
}

func (r *run) fail(kind, err error) error {
	serr := &StageError{CallID: r.res.CallID, Stage: r.res.Stage, Kind: kind, Err: err}
	log.Warnw("circuit call failed",
		"callId", r.res.CallID,
		"circuit", r.circuit(),
		"stage", r.res.Stage.String(),
		"error", err.Error())
	r.advance(StageFailed)
	return serr
}

func (r *run) circuit() string {
	if r.call.Circuit == "" {
		return contract.CircuitConstructor
	}
	return r.call.Circuit
}

// Run executes call. On failure the returned error is a *StageError. The
// result is also returned for failures after submission, so the caller
// still learns the transaction id.
func (p *Pipeline) Run(ctx context.Context, call Call) (*Result, error) {
	r := &run{
		p:     p,
		call:  call,
		start: time.Now(),
		res:   &Result{CallID: uuid.NewString(), Stage: StageIdle},
	}

	sim, err := p.simulate(ctx, call)
	if err != nil {
		return nil, r.fail(ErrSimulation, err)
	}
	r.res.ContractAddress = sim.Tx.ContractAddress
	r.res.Ledger = sim.Ledger
	r.res.PrivateState = sim.PrivateState
	r.advance(StageSimulated)

	balanced, err := p.cfg.Wallet.BalanceTx(ctx, sim.Tx)
	if err != nil {
		return nil, r.fail(ErrBalancing, err)
	}
	r.advance(StageBalanced)

	proven, err := p.cfg.Prover.Prove(ctx, sim.Tx.Circuit, balanced)
	if err != nil {
		return nil, r.fail(ErrProving, err)
	}
	r.advance(StageProved)

	txID, err := p.cfg.Wallet.SubmitTx(ctx, proven)
	if err != nil {
		return nil, r.fail(ErrSubmission, err)
	}
	r.res.TxID = txID
	r.advance(StageSubmitted)

	if p.cfg.Commit != nil {
		if err := p.cfg.Commit(ctx, r.res); err != nil {
			return r.res, r.fail(ErrCommit, err)
		}
	}

	if call.Confirm {
		if p.cfg.Ledger == nil {
			return r.res, r.fail(ErrConfirmation, fmt.Errorf("no ledger to confirm with"))
		}
		data, err := p.cfg.Ledger.WatchForTxData(ctx, txID)
		if data != nil {
			r.res.BlockHeight = data.BlockHeight
		}
		if err != nil {
			return r.res, r.fail(ErrConfirmation, err)
		}
		r.advance(StageConfirmed)
	}
	log.Infow("circuit call done",
		"callId", r.res.CallID,
		"circuit", r.circuit(),
		"txId", txID,
		"contract", r.res.ContractAddress.String(),
		"took", time.Since(r.start).String())
	return r.res, nil
}

func (p *Pipeline) simulate(ctx context.Context, call Call) (*contract.Result, error) {
	if call.PrivateState == nil {
		return nil, witness.ErrMissingPrivateState
	}
	wctx := &witness.Context{
		ContractAddress: call.ContractAddress,
		PrivateState:    call.PrivateState.Clone(),
		DonationAmount:  call.DonationAmount,
	}
	coinKey := p.cfg.Wallet.CoinPublicKey()
	if call.Circuit == "" {
		return p.cfg.Simulator.Construct(ctx, wctx, coinKey)
	}
	if p.cfg.Ledger == nil {
		return nil, errors.New("no ledger to read the contract state from")
	}
	cs, err := p.cfg.Ledger.ContractState(ctx, call.ContractAddress)
	if err != nil {
		return nil, err
	}
	state, err := cs.Campaign()
	if err != nil {
		return nil, err
	}
	wctx.Ledger = state
	return p.cfg.Simulator.Call(ctx, call.Circuit, wctx, coinKey)
}
