// Package campaign is the caller facing surface of the donation contract.
//
// A Client is one wallet session. It deploys or joins a single campaign and
// then donates to it or withdraws from it. Calls of one client run one at a
// time, and each call reads the private state from the store right before
// running and writes the new one back once the transaction is submitted.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/vocdoni/anondonation/contract"
	"github.com/vocdoni/anondonation/ledger"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/pipeline"
	"github.com/vocdoni/anondonation/providers"
	"github.com/vocdoni/anondonation/storage"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/wallet"
	"github.com/vocdoni/anondonation/witness"
)

var (
	// ErrNotConnected is returned by calls that need a campaign before
	// Deploy or Join succeeded.
	ErrNotConnected = errors.New("not connected to a campaign")
	// ErrInvalidAmount is returned for donations that are not positive.
	ErrInvalidAmount = errors.New("donation amount must be positive")
)

// DeployResult is the outcome of Deploy.
type DeployResult struct {
	ContractAddress types.HexBytes
	TxHash          string
	BlockHeight     uint64
}

// CallResult is the outcome of a circuit call on a joined campaign.
type CallResult struct {
	TxID        string
	BlockHeight uint64
	// Ledger is the campaign state the call produced.
	Ledger *ledger.CampaignState
}

// Option configures a Client.
type Option func(*Client)

// WithPrivateStateID stores the private state under id instead of
// storage.DefaultPrivateStateID.
func WithPrivateStateID(id string) Option {
	return func(c *Client) {
		c.privateStateID = id
	}
}

// WithConfirm sets whether calls wait for the ledger to include their
// transaction. Enabled by default.
func WithConfirm(confirm bool) Option {
	return func(c *Client) {
		c.confirm = confirm
	}
}

// WithStageHook observes the pipeline stages of every call.
func WithStageHook(fn pipeline.StageFunc) Option {
	return func(c *Client) {
		c.onStage = fn
	}
}

// WithWitnesses replaces the witness functions of the contract.
func WithWitnesses(ws witness.Set) Option {
	return func(c *Client) {
		c.witnesses = ws
	}
}

// Client runs donation contract calls for one wallet session.
type Client struct {
	mu sync.Mutex

	providers      *providers.Bundle
	pipeline       *pipeline.Pipeline
	privateStateID string
	confirm        bool
	onStage        pipeline.StageFunc
	witnesses      witness.Set

	address types.HexBytes
}

// New returns a client over the providers of a wallet session.
func New(b *providers.Bundle, opts ...Option) (*Client, error) {
	if b == nil {
		return nil, fmt.Errorf("campaign: nil providers")
	}
	c := &Client{
		providers:      b,
		privateStateID: storage.DefaultPrivateStateID,
		confirm:        true,
	}
	for _, opt := range opts {
		opt(c)
	}
	p, err := pipeline.New(pipeline.Config{
		Simulator: contract.NewDonation(c.witnesses),
		Wallet:    b.Wallet,
		Prover:    b.Proof,
		Ledger:    b.PublicData,
		Commit:    c.commit,
		OnStage:   c.onStage,
	})
	if err != nil {
		return nil, err
	}
	c.pipeline = p
	return c, nil
}

// commit persists the private state of a submitted call.
func (c *Client) commit(_ context.Context, res *pipeline.Result) error {
	return c.providers.PrivateStates.SetPrivateState(res.ContractAddress, c.privateStateID, res.PrivateState)
}

// Connected reports whether the client is bound to a campaign.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address != nil
}

// Address returns the address of the campaign the client is bound to, or
// nil.
func (c *Client) Address() types.HexBytes {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(types.HexBytes(nil), c.address...)
}

// Deploy creates a new campaign owned by secretKey and binds the client to
// it. A nil secretKey generates a fresh one.
func (c *Client) Deploy(ctx context.Context, secretKey []byte) (*DeployResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if secretKey == nil {
		sk, err := witness.RandomSecretKey()
		if err != nil {
			return nil, err
		}
		secretKey = sk
	}
	ps, err := witness.NewRecipientState(secretKey)
	if err != nil {
		return nil, err
	}
	log.Infow("deploying donation campaign", "coinPublicKey", c.providers.CoinPublicKey())
	res, err := c.pipeline.Run(ctx, pipeline.Call{PrivateState: ps, Confirm: c.confirm})
	// a deploy included but not applied leaves no contract to bind to
	if res != nil && res.TxID != "" && !errors.Is(err, pipeline.ErrCommit) && !errors.Is(err, ledger.ErrTxFailed) {
		c.address = res.ContractAddress
		if derr := c.providers.PrivateStates.SetDeployment(&storage.Deployment{
			ContractAddress: res.ContractAddress,
			TxID:            res.TxID,
			Network:         c.providers.Endpoints.NetworkID,
		}); derr != nil {
			log.Warnw("could not record deployment", "contract", res.ContractAddress.String(), "error", derr.Error())
		}
	}
	if err != nil {
		return nil, err
	}
	log.Infow("donation campaign deployed",
		"contract", res.ContractAddress.String(),
		"txId", res.TxID,
		"height", res.BlockHeight)
	return &DeployResult{
		ContractAddress: res.ContractAddress,
		TxHash:          res.TxID,
		BlockHeight:     res.BlockHeight,
	}, nil
}

// Join binds the client to an existing campaign and returns its public
// state. A stored private state for the campaign is kept; otherwise the
// donor placeholder state is stored.
func (c *Client) Join(ctx context.Context, address types.HexBytes) (*ledger.CampaignState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.campaignState(ctx, address)
	if err != nil {
		return nil, err
	}
	_, err = c.providers.PrivateStates.PrivateState(address, c.privateStateID)
	switch {
	case storage.IsNotFound(err):
		if err := c.providers.PrivateStates.SetPrivateState(address, c.privateStateID, witness.NewDonorState()); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	c.address = append(types.HexBytes(nil), address...)
	log.Infow("joined donation campaign",
		"contract", address.String(),
		"donations", state.DonationCount,
		"round", state.Round)
	return state, nil
}

// Donate donates amount to the joined campaign. The amount only ever
// reaches the circuit through the private state.
func (c *Client) Donate(ctx context.Context, amount *big.Int) (*CallResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call(ctx, contract.CircuitDonate, new(big.Int).Set(amount))
}

// Withdraw withdraws the donations of the current round. Only the holder
// of the campaign secret key can succeed; the campaign then moves to the
// next round.
func (c *Client) Withdraw(ctx context.Context) (*CallResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call(ctx, contract.CircuitWithdraw, nil)
}

func (c *Client) call(ctx context.Context, circuit string, amount *big.Int) (*CallResult, error) {
	if c.address == nil {
		return nil, ErrNotConnected
	}
	ps, err := c.providers.PrivateStates.PrivateState(c.address, c.privateStateID)
	if err != nil {
		return nil, fmt.Errorf("load private state: %w", err)
	}
	res, err := c.pipeline.Run(ctx, pipeline.Call{
		Circuit:         circuit,
		ContractAddress: c.address,
		PrivateState:    ps,
		DonationAmount:  amount,
		Confirm:         c.confirm,
	})
	if err != nil {
		return nil, err
	}
	log.Monitor("campaign call", map[string]any{
		"circuit":   circuit,
		"contract":  c.address.String(),
		"txId":      res.TxID,
		"donations": res.Ledger.DonationCount,
		"round":     res.Ledger.Round,
	})
	return &CallResult{TxID: res.TxID, BlockHeight: res.BlockHeight, Ledger: res.Ledger}, nil
}

// CampaignState reads the public state of the campaign at address, or of
// the joined campaign when address is nil.
func (c *Client) CampaignState(ctx context.Context, address types.HexBytes) (*ledger.CampaignState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if address == nil {
		if c.address == nil {
			return nil, ErrNotConnected
		}
		address = c.address
	}
	return c.campaignState(ctx, address)
}

func (c *Client) campaignState(ctx context.Context, address types.HexBytes) (*ledger.CampaignState, error) {
	cs, err := c.providers.PublicData.ContractState(ctx, address)
	if err != nil {
		return nil, err
	}
	return cs.Campaign()
}

// PrivateState returns the stored private state of the joined campaign.
func (c *Client) PrivateState() (*witness.PrivateState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.address == nil {
		return nil, ErrNotConnected
	}
	return c.providers.PrivateStates.PrivateState(c.address, c.privateStateID)
}

// FundingHint returns a hint for the user when err is a balancing failure
// caused by the wallet not being able to pay the transaction fees, and ""
// otherwise.
func FundingHint(err error) string {
	if !pipeline.IsBalancingError(err) || !wallet.IsInsufficientFunds(err) {
		return ""
	}
	return "the wallet does not hold enough DUST to pay the transaction fees; " +
		"register its NIGHT for DUST generation or fund it from a faucet and try again"
}
