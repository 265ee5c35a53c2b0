package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anondonation/contract"
	"github.com/vocdoni/anondonation/internal/testutil"
	"github.com/vocdoni/anondonation/ledger"
	"github.com/vocdoni/anondonation/prover"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/wallet"
	"github.com/vocdoni/anondonation/witness"
	"github.com/vocdoni/anondonation/zkconfig"
)

type harness struct {
	chain       *testutil.Chain
	signer      *testutil.Signer
	proofServer *testutil.ProofServer
	pipeline    *Pipeline

	mu      sync.Mutex
	stages  []Stage
	commits []*Result
}

func newHarness(c *qt.C) *harness {
	ctx := context.Background()
	h := &harness{
		chain:       testutil.NewChain(),
		proofServer: &testutil.ProofServer{},
	}
	h.signer = testutil.NewSigner(1, h.chain)
	w, err := wallet.NewProvider(ctx, h.signer)
	c.Assert(err, qt.IsNil)

	fetcher, err := zkconfig.NewDirFetcher(testutil.AssetDir(c))
	c.Assert(err, qt.IsNil)
	assets, err := zkconfig.New(fetcher)
	c.Assert(err, qt.IsNil)
	srv := httptest.NewServer(h.proofServer)
	c.Cleanup(srv.Close)
	zk, err := prover.NewHTTPProver(srv.URL, assets)
	c.Assert(err, qt.IsNil)

	h.pipeline, err = New(Config{
		Simulator: contract.NewDonation(witness.Set{}),
		Wallet:    w,
		Prover:    zk,
		Ledger:    h.chain,
		Commit: func(_ context.Context, res *Result) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.commits = append(h.commits, res)
			return nil
		},
		OnStage: func(_ string, stage Stage) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.stages = append(h.stages, stage)
		},
	})
	c.Assert(err, qt.IsNil)
	return h
}

func (h *harness) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stages = nil
	h.commits = nil
}

func (h *harness) seen() ([]Stage, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Stage(nil), h.stages...), len(h.commits)
}

// deploy creates a campaign for secret key sk and returns its address.
func (h *harness) deploy(c *qt.C, sk []byte) types.HexBytes {
	ps, err := witness.NewRecipientState(sk)
	c.Assert(err, qt.IsNil)
	res, err := h.pipeline.Run(context.Background(), Call{PrivateState: ps, Confirm: true})
	c.Assert(err, qt.IsNil)
	h.reset()
	return res.ContractAddress
}

func TestDeploy(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c)
	sk := bytes.Repeat([]byte{9}, witness.SecretKeySize)
	ps, err := witness.NewRecipientState(sk)
	c.Assert(err, qt.IsNil)

	res, err := h.pipeline.Run(context.Background(), Call{PrivateState: ps, Confirm: true})
	c.Assert(err, qt.IsNil)
	c.Assert(res.Stage, qt.Equals, StageConfirmed)
	c.Assert(res.TxID, qt.Matches, `0x[0-9a-f]{64}`)
	c.Assert(res.BlockHeight, qt.Equals, uint64(1))
	c.Assert(res.CallID, qt.Not(qt.Equals), "")

	stages, commits := h.seen()
	c.Assert(stages, qt.DeepEquals, []Stage{StageSimulated, StageBalanced, StageProved, StageSubmitted, StageConfirmed})
	c.Assert(commits, qt.Equals, 1)
	c.Assert(res.PrivateState.RecipientSecretKey, qt.DeepEquals, types.HexBytes(sk))

	state, err := h.chain.Campaign(res.ContractAddress)
	c.Assert(err, qt.IsNil)
	c.Assert(state.DonationCount, qt.Equals, uint64(0))
	c.Assert(state.RecipientAuthority.Equal(contract.RecipientAuthority(sk, 0)), qt.IsTrue)
	c.Assert(h.proofServer.Requests(), qt.Equals, 1)
}

func TestDonate(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c)
	addr := h.deploy(c, bytes.Repeat([]byte{1}, witness.SecretKeySize))

	res, err := h.pipeline.Run(context.Background(), Call{
		Circuit:         contract.CircuitDonate,
		ContractAddress: addr,
		PrivateState:    witness.NewDonorState(),
		DonationAmount:  big.NewInt(100),
	})
	c.Assert(err, qt.IsNil)
	// no confirmation requested
	c.Assert(res.Stage, qt.Equals, StageSubmitted)
	c.Assert(res.Ledger.DonationCount, qt.Equals, uint64(1))
	c.Assert(res.PrivateState.Amount().Int64(), qt.Equals, int64(100))

	state, err := h.chain.Campaign(addr)
	c.Assert(err, qt.IsNil)
	c.Assert(state.DonationCount, qt.Equals, uint64(1))
}

func TestStageErrors(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c)
	addr := h.deploy(c, bytes.Repeat([]byte{1}, witness.SecretKeySize))
	ctx := context.Background()
	donate := Call{
		Circuit:         contract.CircuitDonate,
		ContractAddress: addr,
		PrivateState:    witness.NewDonorState(),
		DonationAmount:  big.NewInt(5),
	}

	c.Run("simulation", func(c *qt.C) {
		h.reset()
		foreign, err := witness.NewRecipientState(bytes.Repeat([]byte{2}, witness.SecretKeySize))
		c.Assert(err, qt.IsNil)
		_, err = h.pipeline.Run(ctx, Call{Circuit: contract.CircuitWithdraw, ContractAddress: addr, PrivateState: foreign})
		c.Assert(err, qt.ErrorIs, ErrSimulation)
		c.Assert(err, qt.ErrorIs, contract.ErrCircuitAssertion)
		var serr *StageError
		c.Assert(errors.As(err, &serr), qt.IsTrue)
		c.Assert(serr.Stage, qt.Equals, StageIdle)

		_, err = h.pipeline.Run(ctx, Call{Circuit: contract.CircuitDonate, ContractAddress: types.HexBytes{1}, PrivateState: witness.NewDonorState()})
		c.Assert(err, qt.ErrorIs, ledger.ErrContractNotFound)

		_, err = h.pipeline.Run(ctx, Call{Circuit: contract.CircuitDonate, ContractAddress: addr})
		c.Assert(err, qt.ErrorIs, witness.ErrMissingPrivateState)
	})

	c.Run("balancing", func(c *qt.C) {
		h.reset()
		h.signer.SetFunds(0)
		defer h.signer.SetFunds(testutil.DefaultFunds)
		_, err := h.pipeline.Run(ctx, donate)
		c.Assert(IsBalancingError(err), qt.IsTrue)
		c.Assert(wallet.IsInsufficientFunds(err), qt.IsTrue)
		var serr *StageError
		c.Assert(errors.As(err, &serr), qt.IsTrue)
		c.Assert(serr.Stage, qt.Equals, StageSimulated)
		c.Assert(serr.CallID, qt.Not(qt.Equals), "")

		stages, commits := h.seen()
		c.Assert(stages, qt.DeepEquals, []Stage{StageSimulated, StageFailed})
		c.Assert(commits, qt.Equals, 0)
	})

	c.Run("proving", func(c *qt.C) {
		h.reset()
		h.proofServer.FailNext(http.StatusInternalServerError)
		_, err := h.pipeline.Run(ctx, donate)
		c.Assert(IsProvingError(err), qt.IsTrue)
		c.Assert(err, qt.ErrorIs, prover.ErrProofServerUnavailable)
		_, commits := h.seen()
		c.Assert(commits, qt.Equals, 0)
	})

	c.Run("submission", func(c *qt.C) {
		h.reset()
		before := h.chain.Submitted()
		h.signer.FailNext("SubmitTransaction", errors.New("node rejected the transaction"))
		_, err := h.pipeline.Run(ctx, donate)
		c.Assert(IsSubmissionError(err), qt.IsTrue)
		c.Assert(err, qt.ErrorIs, wallet.ErrWalletRejected)
		c.Assert(h.chain.Submitted(), qt.Equals, before)
		stages, commits := h.seen()
		c.Assert(stages, qt.DeepEquals, []Stage{StageSimulated, StageBalanced, StageProved, StageFailed})
		c.Assert(commits, qt.Equals, 0)
	})

	state, err := h.chain.Campaign(addr)
	c.Assert(err, qt.IsNil)
	c.Assert(state.DonationCount, qt.Equals, uint64(0))
}

// staleLedger serves a fixed contract state, as a lagging indexer would.
type staleLedger struct {
	ledger.PublicDataProvider
	state *ledger.ContractState
}

func (s *staleLedger) ContractState(context.Context, types.HexBytes) (*ledger.ContractState, error) {
	return s.state, nil
}

func TestConfirmationFailure(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c)
	addr := h.deploy(c, bytes.Repeat([]byte{1}, witness.SecretKeySize))
	ctx := context.Background()

	stale, err := h.chain.ContractState(ctx, addr)
	c.Assert(err, qt.IsNil)
	donate := Call{
		Circuit:         contract.CircuitDonate,
		ContractAddress: addr,
		PrivateState:    witness.NewDonorState(),
		DonationAmount:  big.NewInt(1),
		Confirm:         true,
	}
	_, err = h.pipeline.Run(ctx, donate)
	c.Assert(err, qt.IsNil)

	h.pipeline.cfg.Ledger = &staleLedger{PublicDataProvider: h.chain, state: stale}
	h.reset()
	res, err := h.pipeline.Run(ctx, donate)
	c.Assert(err, qt.ErrorIs, ErrConfirmation)
	c.Assert(err, qt.ErrorIs, ledger.ErrTxFailed)
	c.Assert(res, qt.IsNotNil)
	c.Assert(res.TxID, qt.Not(qt.Equals), "")
	c.Assert(res.Stage, qt.Equals, StageFailed)

	// the private state is committed once submitted
	stages, commits := h.seen()
	c.Assert(commits, qt.Equals, 1)
	c.Assert(stages[len(stages)-2:], qt.DeepEquals, []Stage{StageSubmitted, StageFailed})

	state, err := h.chain.Campaign(addr)
	c.Assert(err, qt.IsNil)
	c.Assert(state.DonationCount, qt.Equals, uint64(1))
}

func TestCommitFailure(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c)
	h.pipeline.cfg.Commit = func(context.Context, *Result) error {
		return errors.New("disk full")
	}
	ps, err := witness.NewRecipientState(bytes.Repeat([]byte{3}, witness.SecretKeySize))
	c.Assert(err, qt.IsNil)
	res, err := h.pipeline.Run(context.Background(), Call{PrivateState: ps})
	c.Assert(err, qt.ErrorIs, ErrCommit)
	c.Assert(res.TxID, qt.Not(qt.Equals), "")
}

func TestNew(t *testing.T) {
	c := qt.New(t)
	_, err := New(Config{})
	c.Assert(err, qt.ErrorMatches, `pipeline: missing simulator`)
	_, err = New(Config{Simulator: contract.NewDonation(witness.Set{})})
	c.Assert(err, qt.ErrorMatches, `pipeline: missing wallet`)

	c.Assert(StageProved.String(), qt.Equals, "proved")
	c.Assert(Stage(42).String(), qt.Equals, "Stage(42)")
}
