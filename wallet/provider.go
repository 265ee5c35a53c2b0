package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vocdoni/anondonation/address"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/sanitize"
	"github.com/vocdoni/anondonation/types"
)

// DefaultTimeout bounds every signer call unless overridden.
const DefaultTimeout = 2 * time.Minute

// Serializer is implemented by transactions that know their own encoding.
type Serializer interface {
	Serialize() ([]byte, error)
}

// Provider is the unified wallet provider: the forged identities of the
// connected wallet plus balance, prove and submit primitives. It never
// retries a signer call.
type Provider struct {
	signer   Signer
	identity *address.Identity
	timeout  time.Duration
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithTimeout sets the deadline applied to each signer call. Zero disables
// the provider deadline, leaving only the caller's context.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		p.timeout = d
	}
}

// NewProvider asks the signer for its unshielded address and forges the
// session identities from it.
func NewProvider(ctx context.Context, signer Signer, opts ...ProviderOption) (*Provider, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: no signer", ErrWalletUnavailable)
	}
	p := &Provider{signer: signer, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(p)
	}
	var unshielded string
	err := p.call(ctx, "unshieldedAddress", func(ctx context.Context) (err error) {
		unshielded, err = signer.UnshieldedAddress(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	identity, err := address.Forge(unshielded)
	if err != nil {
		return nil, err
	}
	p.identity = identity
	log.Infow("wallet connected",
		"address", identity.UnshieldedAddress,
		"network", identity.Network)
	return p, nil
}

// CoinPublicKey returns the forged shielded coin public key.
func (p *Provider) CoinPublicKey() string {
	return p.identity.CoinPublicKey
}

// EncryptionPublicKey returns the forged shielded encryption public key.
func (p *Provider) EncryptionPublicKey() string {
	return p.identity.EncryptionPublicKey
}

// Identity returns a copy of the session identities.
func (p *Provider) Identity() address.Identity {
	return *p.identity
}

// Configuration returns the network configuration reported by the signer.
func (p *Provider) Configuration(ctx context.Context) (*Configuration, error) {
	var cfg *Configuration
	err := p.call(ctx, "configuration", func(ctx context.Context) (err error) {
		cfg, err = p.signer.Configuration(ctx)
		return err
	})
	return cfg, err
}

// BalanceTx serializes tx, sanitizes it and asks the signer to balance it.
// The balanced transaction is returned in its encoded form.
func (p *Provider) BalanceTx(ctx context.Context, tx any) (types.HexBytes, error) {
	payload, err := serializeTx(tx)
	if err != nil {
		return nil, err
	}
	var res any
	if err := p.call(ctx, "balanceUnsealedTransaction", func(ctx context.Context) (err error) {
		res, err = p.signer.BalanceUnsealedTransaction(ctx, sanitize.Sanitize(payload))
		return err
	}); err != nil {
		return nil, err
	}
	balanced, err := DecodeTxBytes(res)
	if err != nil {
		return nil, fmt.Errorf("balanceUnsealedTransaction result: %w", err)
	}
	return balanced, nil
}

// ProveTx asks the signer to prove tx with its own prover.
func (p *Provider) ProveTx(ctx context.Context, tx []byte) (types.HexBytes, error) {
	var res any
	if err := p.call(ctx, "proveTransaction", func(ctx context.Context) (err error) {
		res, err = p.signer.ProveTransaction(ctx, sanitize.Sanitize(tx))
		return err
	}); err != nil {
		return nil, err
	}
	proven, err := DecodeTxBytes(res)
	if err != nil {
		return nil, fmt.Errorf("proveTransaction result: %w", err)
	}
	return proven, nil
}

// SubmitTx submits a proven transaction and returns its id.
func (p *Provider) SubmitTx(ctx context.Context, tx []byte) (string, error) {
	var res any
	if err := p.call(ctx, "submitTransaction", func(ctx context.Context) (err error) {
		res, err = p.signer.SubmitTransaction(ctx, sanitize.Sanitize(tx))
		return err
	}); err != nil {
		return "", err
	}
	txID, err := DecodeTxResult(res)
	if err != nil {
		return "", fmt.Errorf("submitTransaction result: %w", err)
	}
	log.Debugw("transaction submitted", "txId", txID)
	return txID, nil
}

func (p *Provider) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	start := time.Now()
	// signers that ignore ctx must not block the caller past its deadline
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		err = classify(op, err)
		log.Warnw("signer call failed", "op", op, "took", time.Since(start).String(), "error", err.Error())
		return err
	}
	log.Debugw("signer call", "op", op, "took", time.Since(start).String())
	return nil
}

// serializeTx returns the wire form of a transaction: its own encoding when
// it has one, raw bytes as they are, and the JSON form of anything else.
func serializeTx(tx any) (any, error) {
	switch t := tx.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil transaction", ErrInvalidTx)
	case Serializer:
		b, err := t.Serialize()
		if err != nil {
			return nil, fmt.Errorf("%w: serialize: %v", ErrInvalidTx, err)
		}
		return b, nil
	case []byte:
		return t, nil
	case types.HexBytes:
		return []byte(t), nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
		}
		return out, nil
	}
}
