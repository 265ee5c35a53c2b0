package campaign

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anondonation/config"
	"github.com/vocdoni/anondonation/contract"
	"github.com/vocdoni/anondonation/db/metadb"
	"github.com/vocdoni/anondonation/internal/testutil"
	"github.com/vocdoni/anondonation/ledger"
	"github.com/vocdoni/anondonation/pipeline"
	"github.com/vocdoni/anondonation/providers"
	"github.com/vocdoni/anondonation/storage"
	"github.com/vocdoni/anondonation/wallet"
	"github.com/vocdoni/anondonation/witness"
)

// network is a local chain with its indexer, proof server and artifacts.
type network struct {
	chain      *testutil.Chain
	indexerURL string
	proverURL  string
	assetsDir  string
}

func newNetwork(c *qt.C) *network {
	n := &network{chain: testutil.NewChain(), assetsDir: testutil.AssetDir(c)}
	indexer := httptest.NewServer(n.chain)
	c.Cleanup(indexer.Close)
	proofServer := httptest.NewServer(&testutil.ProofServer{})
	c.Cleanup(proofServer.Close)
	n.indexerURL, n.proverURL = indexer.URL, proofServer.URL
	return n
}

type session struct {
	*Client
	signer  *testutil.Signer
	bundle  *providers.Bundle
	commits int
}

// session opens a wallet session on the network with its own private state
// database.
func (n *network) session(c *qt.C, seed byte, opts ...Option) *session {
	signer := testutil.NewSigner(seed, n.chain)
	signer.SetConfiguration(&wallet.Configuration{
		NetworkID:      config.NetworkUndeployed,
		IndexerURI:     n.indexerURL,
		ProofServerURI: n.proverURL,
	})
	b, err := providers.Configure(context.Background(), signer, providers.Options{
		AssetsDir: n.assetsDir,
		Database:  metadb.NewTest(c),
	})
	c.Assert(err, qt.IsNil)
	s := &session{signer: signer, bundle: b}
	opts = append(opts, WithStageHook(func(_ string, stage pipeline.Stage) {
		if stage == pipeline.StageSubmitted {
			s.commits++
		}
	}))
	s.Client, err = New(b, opts...)
	c.Assert(err, qt.IsNil)
	return s
}

func TestDonationCampaign(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	n := newNetwork(c)
	recipient := n.session(c, 1)
	donor := n.session(c, 2)
	sk := bytes.Repeat([]byte{0x42}, witness.SecretKeySize)

	deployed, err := recipient.Deploy(ctx, sk)
	c.Assert(err, qt.IsNil)
	c.Assert(deployed.TxHash, qt.Matches, `0x[0-9a-f]{64}`)
	c.Assert(deployed.BlockHeight, qt.Equals, uint64(1))
	c.Assert(recipient.Connected(), qt.IsTrue)
	c.Assert(recipient.Address(), qt.DeepEquals, deployed.ContractAddress)
	addr := deployed.ContractAddress

	d, err := recipient.bundle.PrivateStates.Deployment(addr)
	c.Assert(err, qt.IsNil)
	c.Assert(d.TxID, qt.Equals, deployed.TxHash)
	c.Assert(d.Network, qt.Equals, config.NetworkUndeployed)

	state, err := donor.Join(ctx, addr)
	c.Assert(err, qt.IsNil)
	c.Assert(state.DonationCount, qt.Equals, uint64(0))
	c.Assert(state.Round, qt.Equals, uint64(0))

	for i, amount := range []int64{100, 50} {
		res, err := donor.Donate(ctx, big.NewInt(amount))
		c.Assert(err, qt.IsNil)
		c.Assert(res.Ledger.DonationCount, qt.Equals, uint64(i+1))
		c.Assert(res.BlockHeight, qt.Equals, uint64(i+2))
	}
	ps, err := donor.PrivateState()
	c.Assert(err, qt.IsNil)
	c.Assert(ps.Amount().Int64(), qt.Equals, int64(50))
	c.Assert(ps.RecipientSecretKey, qt.DeepEquals, witness.NewDonorState().RecipientSecretKey)

	before, err := recipient.CampaignState(ctx, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(before.DonationCount, qt.Equals, uint64(2))

	// the donor does not hold the secret key
	submitted := n.chain.Submitted()
	_, err = donor.Withdraw(ctx)
	c.Assert(err, qt.ErrorIs, pipeline.ErrSimulation)
	c.Assert(err, qt.ErrorIs, contract.ErrCircuitAssertion)
	c.Assert(n.chain.Submitted(), qt.Equals, submitted)
	after, err := donor.CampaignState(ctx, addr)
	c.Assert(err, qt.IsNil)
	c.Assert(after.DonationCount, qt.Equals, before.DonationCount)
	c.Assert(after.Round, qt.Equals, before.Round)
	c.Assert(after.RecipientAuthority, qt.DeepEquals, before.RecipientAuthority)

	res, err := recipient.Withdraw(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Ledger.Round, qt.Equals, uint64(1))
	c.Assert(res.Ledger.DonationCount, qt.Equals, uint64(2))

	state, err = recipient.CampaignState(ctx, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(state.Round, qt.Equals, uint64(1))
	c.Assert(state.RecipientAuthority.Equal(contract.RecipientAuthority(sk, 1)), qt.IsTrue)
	c.Assert(state.RecipientAuthority.Equal(before.RecipientAuthority), qt.IsFalse)

	// donations do not move the round
	_, err = donor.Donate(ctx, big.NewInt(7))
	c.Assert(err, qt.IsNil)
	state, err = donor.CampaignState(ctx, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(state.DonationCount, qt.Equals, uint64(3))
	c.Assert(state.Round, qt.Equals, uint64(1))

	// the recipient withdraws again in the new round
	_, err = recipient.Withdraw(ctx)
	c.Assert(err, qt.IsNil)
	state, err = recipient.CampaignState(ctx, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(state.Round, qt.Equals, uint64(2))
}

func TestFailedDonationDoesNotLeak(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	n := newNetwork(c)
	recipient := n.session(c, 1)
	deployed, err := recipient.Deploy(ctx, nil)
	c.Assert(err, qt.IsNil)

	for _, op := range []string{"BalanceUnsealedTransaction", "SubmitTransaction"} {
		c.Run(op, func(c *qt.C) {
			donor := n.session(c, 3)
			_, err := donor.Join(ctx, deployed.ContractAddress)
			c.Assert(err, qt.IsNil)

			count, err := donor.CampaignState(ctx, nil)
			c.Assert(err, qt.IsNil)
			donor.signer.FailNext(op, errors.New("wallet locked"))
			_, err = donor.Donate(ctx, big.NewInt(100))
			c.Assert(err, qt.Not(qt.IsNil))

			ps, err := donor.PrivateState()
			c.Assert(err, qt.IsNil)
			c.Assert(ps.Amount().Sign(), qt.Equals, 0)
			c.Assert(donor.commits, qt.Equals, 0)

			res, err := donor.Donate(ctx, big.NewInt(50))
			c.Assert(err, qt.IsNil)
			c.Assert(res.Ledger.DonationCount, qt.Equals, count.DonationCount+1)
			ps, err = donor.PrivateState()
			c.Assert(err, qt.IsNil)
			c.Assert(ps.Amount().Int64(), qt.Equals, int64(50))
			c.Assert(donor.commits, qt.Equals, 1)
		})
	}
}

func TestClientErrors(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	n := newNetwork(c)
	s := n.session(c, 1)

	_, err := s.Donate(ctx, big.NewInt(1))
	c.Assert(err, qt.ErrorIs, ErrNotConnected)
	_, err = s.Withdraw(ctx)
	c.Assert(err, qt.ErrorIs, ErrNotConnected)
	_, err = s.CampaignState(ctx, nil)
	c.Assert(err, qt.ErrorIs, ErrNotConnected)
	_, err = s.PrivateState()
	c.Assert(err, qt.ErrorIs, ErrNotConnected)
	c.Assert(s.Connected(), qt.IsFalse)

	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		_, err = s.Donate(ctx, amount)
		c.Assert(err, qt.ErrorIs, ErrInvalidAmount)
	}

	_, err = s.Join(ctx, []byte{0xde, 0xad})
	c.Assert(err, qt.ErrorIs, ledger.ErrContractNotFound)
	c.Assert(s.Connected(), qt.IsFalse)

	_, err = s.Deploy(ctx, []byte{1, 2, 3})
	c.Assert(err, qt.ErrorMatches, `invalid recipient secret key size 3, expected 32`)

	_, err = New(nil)
	c.Assert(err, qt.ErrorMatches, `campaign: nil providers`)
}

func TestRejoinKeepsPrivateState(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	n := newNetwork(c)
	recipient := n.session(c, 1)
	sk := bytes.Repeat([]byte{0x07}, witness.SecretKeySize)
	deployed, err := recipient.Deploy(ctx, sk)
	c.Assert(err, qt.IsNil)

	// a new client over the same store, as after a restart
	again, err := New(recipient.bundle)
	c.Assert(err, qt.IsNil)
	_, err = again.Join(ctx, deployed.ContractAddress)
	c.Assert(err, qt.IsNil)
	ps, err := again.PrivateState()
	c.Assert(err, qt.IsNil)
	c.Assert([]byte(ps.RecipientSecretKey), qt.DeepEquals, sk)

	_, err = again.Withdraw(ctx)
	c.Assert(err, qt.IsNil)

	_, err = recipient.bundle.PrivateStates.PrivateState(deployed.ContractAddress, "other")
	c.Assert(storage.IsNotFound(err), qt.IsTrue)
}

func TestFundingHint(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	n := newNetwork(c)
	s := n.session(c, 1)
	s.signer.SetFunds(0)

	_, err := s.Deploy(ctx, nil)
	c.Assert(pipeline.IsBalancingError(err), qt.IsTrue)
	c.Assert(FundingHint(err), qt.Matches, `.*DUST.*`)
	c.Assert(s.Connected(), qt.IsFalse)

	c.Assert(FundingHint(errors.New("boom")), qt.Equals, "")
	c.Assert(FundingHint(nil), qt.Equals, "")

	// only balancing failures get the hint
	proving := &pipeline.StageError{
		Stage: pipeline.StageBalanced,
		Kind:  pipeline.ErrProving,
		Err:   errors.New("insufficient dust for proof"),
	}
	c.Assert(FundingHint(proving), qt.Equals, "")
	balancing := &pipeline.StageError{
		Stage: pipeline.StageSimulated,
		Kind:  pipeline.ErrBalancing,
		Err:   errors.New("industry standard failure"),
	}
	c.Assert(FundingHint(balancing), qt.Equals, "")
	balancing.Err = errors.New("no DUST available")
	c.Assert(FundingHint(balancing), qt.Matches, `.*DUST.*`)
}

// failedTxLedger reports every watched transaction as included but not
// applied.
type failedTxLedger struct {
	ledger.PublicDataProvider
}

func (l *failedTxLedger) WatchForTxData(ctx context.Context, txID string) (*ledger.TxData, error) {
	data, err := l.PublicDataProvider.WatchForTxData(ctx, txID)
	if err != nil {
		return nil, err
	}
	data.Applied = false
	return data, fmt.Errorf("%w: %s", ledger.ErrTxFailed, txID)
}

func TestDeployNotApplied(t *testing.T) {
	c := qt.New(t)
	n := newNetwork(c)
	s := n.session(c, 1)
	s.bundle.PublicData = &failedTxLedger{PublicDataProvider: s.bundle.PublicData}
	client, err := New(s.bundle)
	c.Assert(err, qt.IsNil)

	_, err = client.Deploy(context.Background(), nil)
	c.Assert(err, qt.ErrorIs, ledger.ErrTxFailed)
	c.Assert(client.Connected(), qt.IsFalse)
	c.Assert(client.Address(), qt.HasLen, 0)
	deployments, err := s.bundle.PrivateStates.ListDeployments()
	c.Assert(err, qt.IsNil)
	c.Assert(deployments, qt.HasLen, 0)
}
