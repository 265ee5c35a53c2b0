package testutil

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/anondonation/address"
	"github.com/vocdoni/anondonation/wallet"
)

const (
	// DefaultFee is the DUST charged for balancing one transaction.
	DefaultFee = 10
	// DefaultFunds is the DUST a new Signer starts with.
	DefaultFunds = 1_000_000
)

// Signer is a wallet.Signer over a Chain. It only accepts sanitized
// transaction bytes, like a real wallet bridge.
type Signer struct {
	mu       sync.Mutex
	address  string
	config   *wallet.Configuration
	chain    *Chain
	funds    uint64
	fee      uint64
	failures map[string]error
	calls    map[string]int
}

var _ wallet.Signer = (*Signer)(nil)

// NewSigner returns a signer whose unshielded address payload is 32 times
// seed, on the undeployed network.
func NewSigner(seed byte, chain *Chain) *Signer {
	addr, err := address.Address{
		Type:    address.TypeUnshielded,
		Network: address.NetworkUndeployed,
		Payload: bytes.Repeat([]byte{seed}, address.PayloadSize),
	}.Encode()
	if err != nil {
		panic(fmt.Sprintf("encode test address: %v", err))
	}
	return &Signer{
		address:  addr,
		config:   &wallet.Configuration{NetworkID: address.NetworkUndeployed},
		chain:    chain,
		funds:    DefaultFunds,
		fee:      DefaultFee,
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Address returns the unshielded address of the signer.
func (s *Signer) Address() string {
	return s.address
}

// SetConfiguration replaces the configuration reported to callers.
func (s *Signer) SetConfiguration(cfg *wallet.Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// SetFunds sets the DUST balance of the signer.
func (s *Signer) SetFunds(funds uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funds = funds
}

// FailNext makes the next call to op return err. Op is a signer method
// name such as "BalanceUnsealedTransaction".
func (s *Signer) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// Calls returns how many times op was called.
func (s *Signer) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Signer) enter(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

func (s *Signer) UnshieldedAddress(ctx context.Context) (string, error) {
	if err := s.enter("UnshieldedAddress"); err != nil {
		return "", err
	}
	return s.address, ctx.Err()
}

func (s *Signer) Configuration(ctx context.Context) (*wallet.Configuration, error) {
	if err := s.enter("Configuration"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return nil, nil
	}
	cfg := *s.config
	return &cfg, ctx.Err()
}

func (s *Signer) BalanceUnsealedTransaction(ctx context.Context, tx any) (any, error) {
	if err := s.enter("BalanceUnsealedTransaction"); err != nil {
		return nil, err
	}
	data, err := txBytes(tx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.funds < s.fee {
		return nil, fmt.Errorf("insufficient DUST balance: have %d, need %d", s.funds, s.fee)
	}
	s.funds -= s.fee
	balanced, err := encMode.Marshal(BalancedTx{Tx: data, Fee: s.fee})
	if err != nil {
		return nil, err
	}
	return map[string]any{"tx": balanced}, ctx.Err()
}

func (s *Signer) ProveTransaction(ctx context.Context, tx any) (any, error) {
	if err := s.enter("ProveTransaction"); err != nil {
		return nil, err
	}
	data, err := txBytes(tx)
	if err != nil {
		return nil, err
	}
	proven, err := encMode.Marshal(ProvenTx{
		Tx:    data,
		Proof: crypto.Keccak256([]byte("wallet proof"), data),
	})
	if err != nil {
		return nil, err
	}
	return proven, ctx.Err()
}

func (s *Signer) SubmitTransaction(ctx context.Context, tx any) (any, error) {
	if err := s.enter("SubmitTransaction"); err != nil {
		return nil, err
	}
	data, err := txBytes(tx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txID, err := s.chain.Submit(data)
	if err != nil {
		return nil, fmt.Errorf("transaction rejected by node: %w", err)
	}
	return []any{map[string]any{"txId": txID}}, nil
}

func txBytes(tx any) ([]byte, error) {
	data, ok := tx.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported transaction value %T", tx)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty transaction")
	}
	return data, nil
}
