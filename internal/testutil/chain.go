// Package testutil provides in-process stand-ins for the network services
// a donation client talks to: the ledger with its indexer, the wallet
// signer and the proof server.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/anondonation/ledger"
	"github.com/vocdoni/anondonation/types"
)

// BalancedTx is the transaction envelope produced by Signer.
type BalancedTx struct {
	Tx  []byte `cbor:"tx"`
	Fee uint64 `cbor:"fee"`
}

// ProvenTx is the transaction envelope produced by the proof server.
type ProvenTx struct {
	Tx      []byte          `cbor:"tx"`
	Circuit types.CircuitID `cbor:"circuit"`
	Proof   []byte          `cbor:"proof"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoding mode: %v", err))
	}
	return em
}()

// Chain is an in-memory ledger. A transaction applies only when it moves a
// contract from the state it was simulated on; otherwise it is included in
// a block but fails, like a real ledger would.
type Chain struct {
	mu        sync.Mutex
	height    uint64
	contracts map[string]types.HexBytes
	txs       map[string]*ledger.TxData
	submitted int
}

var _ ledger.PublicDataProvider = (*Chain)(nil)

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{
		contracts: make(map[string]types.HexBytes),
		txs:       make(map[string]*ledger.TxData),
	}
}

// Submit includes a proven transaction in a new block and returns its id.
func (ch *Chain) Submit(proven []byte) (string, error) {
	var p ProvenTx
	if err := cbor.Unmarshal(proven, &p); err != nil {
		return "", fmt.Errorf("malformed proven transaction: %w", err)
	}
	if len(p.Proof) == 0 {
		return "", fmt.Errorf("transaction carries no proof")
	}
	var b BalancedTx
	if err := cbor.Unmarshal(p.Tx, &b); err != nil {
		return "", fmt.Errorf("malformed balanced transaction: %w", err)
	}
	tx, err := types.DeserializeUnprovenTx(b.Tx)
	if err != nil {
		return "", err
	}
	txID := types.HexBytes(crypto.Keccak256(proven)).String()

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, ok := ch.txs[txID]; ok {
		return "", fmt.Errorf("transaction %s already submitted", txID)
	}
	ch.height++
	ch.submitted++
	ch.txs[txID] = &ledger.TxData{
		TxID:        txID,
		BlockHeight: ch.height,
		Applied:     ch.apply(tx),
	}
	return txID, nil
}

func (ch *Chain) apply(tx *types.UnprovenTx) bool {
	key := tx.ContractAddress.Hex()
	cur, exists := ch.contracts[key]
	switch tx.Kind {
	case types.TxKindDeploy:
		if exists {
			return false
		}
	case types.TxKindCall:
		if !exists || !types.HexBytes(crypto.Keccak256(cur)).Equal(tx.PrevStateHash) {
			return false
		}
	default:
		return false
	}
	ch.contracts[key] = append(types.HexBytes(nil), tx.NextState...)
	return true
}

// Submitted returns the number of transactions included so far.
func (ch *Chain) Submitted() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.submitted
}

// Campaign returns the decoded state of the contract at address.
func (ch *Chain) Campaign(address types.HexBytes) (*ledger.CampaignState, error) {
	cs, err := ch.ContractState(context.Background(), address)
	if err != nil {
		return nil, err
	}
	return cs.Campaign()
}

// ContractState implements ledger.PublicDataProvider.
func (ch *Chain) ContractState(ctx context.Context, address types.HexBytes) (*ledger.ContractState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	state, ok := ch.contracts[address.Hex()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrContractNotFound, address.Hex())
	}
	return &ledger.ContractState{
		Address:     address,
		Data:        append(types.HexBytes(nil), state...),
		BlockHeight: ch.height,
	}, nil
}

// WatchForTxData implements ledger.PublicDataProvider.
func (ch *Chain) WatchForTxData(ctx context.Context, txID string) (*ledger.TxData, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		ch.mu.Lock()
		data, ok := ch.txs[txID]
		ch.mu.Unlock()
		if ok {
			cp := *data
			if !cp.Applied {
				return &cp, fmt.Errorf("%w: %s", ledger.ErrTxFailed, txID)
			}
			return &cp, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for transaction %s", ledger.ErrTimeout, txID)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type gqlRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

// ServeHTTP answers the GraphQL queries of ledger.Indexer, so the chain can
// stand behind a real indexer client.
func (ch *Chain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ch.mu.Lock()
	var data any
	switch {
	case strings.Contains(req.Query, "contractAction"):
		addr := strings.TrimPrefix(req.Variables["address"], "0x")
		state, ok := ch.contracts[addr]
		if !ok {
			data = map[string]any{"contractAction": nil}
			break
		}
		data = map[string]any{"contractAction": map[string]any{
			"address": addr,
			"state":   state.Hex(),
			"block":   map[string]any{"height": ch.height},
		}}
	case strings.Contains(req.Query, "transactions"):
		hash := "0x" + strings.TrimPrefix(req.Variables["hash"], "0x")
		tx, ok := ch.txs[hash]
		if !ok {
			data = map[string]any{"transactions": []any{}}
			break
		}
		stage := "SucceedEntirely"
		if !tx.Applied {
			stage = "FailEntirely"
		}
		data = map[string]any{"transactions": []any{map[string]any{
			"hash":       strings.TrimPrefix(hash, "0x"),
			"applyStage": stage,
			"block":      map[string]any{"height": tx.BlockHeight},
		}}}
	}
	ch.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if data == nil {
		_, _ = w.Write([]byte(`{"errors":[{"message":"unknown query"}]}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}
