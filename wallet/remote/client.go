// Package remote exposes a wallet signer over HTTP and connects to one.
//
// Every signer primitive is a POST to <endpoint>/<method> whose body is the
// CBOR encoding of a request envelope. The response envelope carries either
// the result or an error with a category code, so failures keep their
// classification across the wire.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/wallet"
)

const (
	MethodUnshieldedAddress = "unshieldedAddress"
	MethodConfiguration     = "configuration"
	MethodBalance           = "balanceUnsealedTransaction"
	MethodSubmit            = "submitTransaction"
	MethodProve             = "proveTransaction"

	// PingEndpoint answers 200 while the signer server is up.
	PingEndpoint = "/ping"

	contentType = "application/cbor"

	codeRejected    = "rejected"
	codeUnavailable = "unavailable"
	codeTimeout     = "timeout"
)

type request struct {
	ID     string `cbor:"id"`
	Params any    `cbor:"params,omitempty"`
}

type response struct {
	ID     string          `cbor:"id"`
	Result cbor.RawMessage `cbor:"result,omitempty"`
	Error  *rpcError       `cbor:"error,omitempty"`
}

type rpcError struct {
	Code    string `cbor:"code"`
	Message string `cbor:"message"`
}

var (
	encMode = func() cbor.EncMode {
		em, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			panic(fmt.Sprintf("cbor encoding mode: %v", err))
		}
		return em
	}()
	// plain values must decode to the same shapes sanitize produces
	decMode = func() cbor.DecMode {
		dm, err := cbor.DecOptions{
			DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		}.DecMode()
		if err != nil {
			panic(fmt.Sprintf("cbor decoding mode: %v", err))
		}
		return dm
	}()
)

// Client is a wallet.Signer backed by a remote signer server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

var _ wallet.Signer = (*Client)(nil)

// NewClient returns a client for the signer served at endpoint. A nil
// httpClient uses a client with a 30 second timeout.
func NewClient(endpoint string, httpClient *http.Client) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("missing signer endpoint")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: httpClient,
	}, nil
}

// Ping checks that the signer server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+PingEndpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", wallet.ErrWalletUnavailable, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping status %d", wallet.ErrWalletUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) UnshieldedAddress(ctx context.Context) (string, error) {
	var addr string
	if err := c.call(ctx, MethodUnshieldedAddress, nil, &addr); err != nil {
		return "", err
	}
	return addr, nil
}

func (c *Client) Configuration(ctx context.Context) (*wallet.Configuration, error) {
	cfg := &wallet.Configuration{}
	if err := c.call(ctx, MethodConfiguration, nil, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) BalanceUnsealedTransaction(ctx context.Context, tx any) (any, error) {
	var res any
	err := c.call(ctx, MethodBalance, tx, &res)
	return res, err
}

func (c *Client) SubmitTransaction(ctx context.Context, tx any) (any, error) {
	var res any
	err := c.call(ctx, MethodSubmit, tx, &res)
	return res, err
}

func (c *Client) ProveTransaction(ctx context.Context, tx any) (any, error) {
	var res any
	err := c.call(ctx, MethodProve, tx, &res)
	return res, err
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	id := uuid.New().String()
	body, err := encMode.Marshal(request{ID: id, Params: params})
	if err != nil {
		return fmt.Errorf("%w: encode %s request: %v", wallet.ErrInvalidTx, method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err)
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d: %s",
			wallet.ErrWalletUnavailable, method, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var r response
	if err := decMode.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if r.ID != id {
		return fmt.Errorf("%s response id mismatch: got %q, want %q", method, r.ID, id)
	}
	if r.Error != nil {
		return r.Error.err()
	}
	if len(r.Result) == 0 {
		return nil
	}
	if err := decMode.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (e *rpcError) err() error {
	switch e.Code {
	case codeUnavailable:
		return fmt.Errorf("%w: %s", wallet.ErrWalletUnavailable, e.Message)
	case codeTimeout:
		return fmt.Errorf("%w: %s", wallet.ErrTimeout, e.Message)
	default:
		return fmt.Errorf("%w: %s", wallet.ErrWalletRejected, e.Message)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, wallet.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return codeTimeout
	case errors.Is(err, wallet.ErrWalletUnavailable):
		return codeUnavailable
	default:
		return codeRejected
	}
}
