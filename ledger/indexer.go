package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/types"
)

const contractStateQuery = `
	query ContractState($address: HexEncoded!) {
		contractAction(address: $address) {
			address
			state
			block {
				height
			}
		}
	}
`

const txDataQuery = `
	query TxData($hash: HexEncoded!) {
		transactions(offset: { hash: $hash }) {
			hash
			applyStage
			block {
				height
			}
		}
	}
`

// defaultIndexerConfig holds the defaults applied to zero config fields.
var defaultIndexerConfig = IndexerConfig{
	QueryTimeout: 30 * time.Second,
	PollInterval: time.Second,
	WatchTimeout: 5 * time.Minute,
}

// IndexerConfig configures the indexer client.
type IndexerConfig struct {
	// URL is the GraphQL HTTP endpoint.
	URL string
	// WebSocketURL is the GraphQL subscription endpoint. When set, new
	// blocks trigger transaction lookups instead of fixed interval polling.
	WebSocketURL string
	QueryTimeout time.Duration
	PollInterval time.Duration
	WatchTimeout time.Duration
	HTTPClient   *http.Client
}

// Indexer is a PublicDataProvider backed by the network GraphQL indexer.
type Indexer struct {
	url          string
	wsURL        string
	client       *http.Client
	pollInterval time.Duration
	watchTimeout time.Duration
}

var _ PublicDataProvider = (*Indexer)(nil)

// NewIndexer returns an indexer client for the given configuration.
func NewIndexer(config IndexerConfig) (*Indexer, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("indexer URL is required")
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = defaultIndexerConfig.QueryTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultIndexerConfig.PollInterval
	}
	if config.WatchTimeout <= 0 {
		config.WatchTimeout = defaultIndexerConfig.WatchTimeout
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.QueryTimeout}
	}
	return &Indexer{
		url:          config.URL,
		wsURL:        config.WebSocketURL,
		client:       client,
		pollInterval: config.PollInterval,
		watchTimeout: config.WatchTimeout,
	}, nil
}

// graphqlResponse is the envelope of every GraphQL response.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

type blockRef struct {
	Height uint64 `json:"height"`
}

type contractActionData struct {
	ContractAction *struct {
		Address string   `json:"address"`
		State   string   `json:"state"`
		Block   blockRef `json:"block"`
	} `json:"contractAction"`
}

type transactionsData struct {
	Transactions []struct {
		Hash       string   `json:"hash"`
		ApplyStage string   `json:"applyStage"`
		Block      blockRef `json:"block"`
	} `json:"transactions"`
}

// ContractState implements PublicDataProvider.
func (ix *Indexer) ContractState(ctx context.Context, address types.HexBytes) (*ContractState, error) {
	var data contractActionData
	if err := ix.query(ctx, contractStateQuery, map[string]any{
		"address": strings.TrimPrefix(address.Hex(), "0x"),
	}, &data); err != nil {
		return nil, err
	}
	if data.ContractAction == nil || data.ContractAction.State == "" {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, address.Hex())
	}
	state, err := types.HexStringToHexBytes(data.ContractAction.State)
	if err != nil {
		return nil, fmt.Errorf("invalid contract state encoding: %w", err)
	}
	return &ContractState{
		Address:     address,
		Data:        state,
		BlockHeight: data.ContractAction.Block.Height,
	}, nil
}

// TxData queries the inclusion data of a transaction once.
func (ix *Indexer) TxData(ctx context.Context, txID string) (*TxData, error) {
	var data transactionsData
	if err := ix.query(ctx, txDataQuery, map[string]any{
		"hash": strings.TrimPrefix(txID, "0x"),
	}, &data); err != nil {
		return nil, err
	}
	if len(data.Transactions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
	}
	tx := data.Transactions[0]
	return &TxData{
		TxID:        txID,
		BlockHeight: tx.Block.Height,
		Applied:     !strings.EqualFold(tx.ApplyStage, "FailEntirely"),
	}, nil
}

// WatchForTxData implements PublicDataProvider. It looks the transaction up
// on every new block when a subscription endpoint is configured, and on a
// fixed interval otherwise.
func (ix *Indexer) WatchForTxData(ctx context.Context, txID string) (*TxData, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.watchTimeout)
	defer cancel()

	var trigger <-chan Block
	if ix.wsURL != "" {
		blocks, err := SubscribeBlocks(ctx, ix.wsURL)
		if err != nil {
			log.Warnw("block subscription unavailable, falling back to polling",
				"url", ix.wsURL,
				"error", err.Error())
		} else {
			trigger = blocks
		}
	}
	ticker := time.NewTicker(ix.pollInterval)
	defer ticker.Stop()
	for {
		data, err := ix.TxData(ctx, txID)
		switch {
		case err == nil && !data.Applied:
			return data, fmt.Errorf("%w: %s", ErrTxFailed, txID)
		case err == nil:
			return data, nil
		case !errors.Is(err, ErrTxNotFound):
			log.Debugw("transaction lookup failed", "txId", txID, "error", err.Error())
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for transaction %s", ErrTimeout, txID)
			}
			return nil, ctx.Err()
		case b, ok := <-trigger:
			if !ok {
				trigger = nil
				continue
			}
			log.Debugw("new block", "height", b.Height, "txId", txID)
		case <-ticker.C:
		}
	}
}

func (ix *Indexer) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": vars,
	})
	if err != nil {
		return fmt.Errorf("error encoding query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ix.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := ix.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("error executing request: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnw("failed to close indexer response body",
				"url", ix.url,
				"error", err.Error())
		}
	}()
	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("non-200 response: %d - %s", res.StatusCode, string(respBody))
	}
	var gqlResp graphqlResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("graphql errors: %v", gqlResp.Errors)
	}
	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("error unmarshaling data: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
