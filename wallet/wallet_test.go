package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anondonation/address"
	"github.com/vocdoni/anondonation/types"
)

// scriptedSigner records what it receives and answers with canned values.
type scriptedSigner struct {
	address    string
	addressErr error
	config     *Configuration
	balanceIn  any
	balanceOut any
	balanceErr error
	submitIn   any
	submitOut  any
	submitErr  error
	proveOut   any
	block      bool
}

func (s *scriptedSigner) UnshieldedAddress(context.Context) (string, error) {
	return s.address, s.addressErr
}

func (s *scriptedSigner) Configuration(context.Context) (*Configuration, error) {
	return s.config, nil
}

func (s *scriptedSigner) BalanceUnsealedTransaction(_ context.Context, tx any) (any, error) {
	s.balanceIn = tx
	if s.block {
		time.Sleep(time.Second)
	}
	return s.balanceOut, s.balanceErr
}

func (s *scriptedSigner) SubmitTransaction(_ context.Context, tx any) (any, error) {
	s.submitIn = tx
	return s.submitOut, s.submitErr
}

func (s *scriptedSigner) ProveTransaction(context.Context, any) (any, error) {
	return s.proveOut, nil
}

func testAddress(c *qt.C) string {
	s, err := address.Address{
		Type:    address.TypeUnshielded,
		Network: address.NetworkUndeployed,
		Payload: bytes.Repeat([]byte{3}, address.PayloadSize),
	}.Encode()
	c.Assert(err, qt.IsNil)
	return s
}

func newTestProvider(c *qt.C, s *scriptedSigner, opts ...ProviderOption) *Provider {
	s.address = testAddress(c)
	p, err := NewProvider(context.Background(), s, opts...)
	c.Assert(err, qt.IsNil)
	return p
}

type jsonTx struct {
	Nonce types.HexBytes `json:"nonce"`
	Value int            `json:"value"`
}

func TestProviderIdentity(t *testing.T) {
	c := qt.New(t)

	p := newTestProvider(c, &scriptedSigner{})
	id, err := address.Forge(testAddress(c))
	c.Assert(err, qt.IsNil)
	c.Assert(p.CoinPublicKey(), qt.Equals, id.CoinPublicKey)
	c.Assert(p.EncryptionPublicKey(), qt.Equals, id.EncryptionPublicKey)
	c.Assert(p.Identity().Network, qt.Equals, address.NetworkUndeployed)

	_, err = NewProvider(context.Background(), &scriptedSigner{address: "garbage"})
	c.Assert(err, qt.ErrorIs, address.ErrInvalidAddress)

	_, err = NewProvider(context.Background(), &scriptedSigner{addressErr: errors.New("dial tcp: connection refused")})
	c.Assert(err, qt.ErrorIs, ErrWalletUnavailable)

	_, err = NewProvider(context.Background(), nil)
	c.Assert(err, qt.ErrorIs, ErrWalletUnavailable)
}

func TestBalanceTx(t *testing.T) {
	c := qt.New(t)

	c.Run("serializer", func(c *qt.C) {
		s := &scriptedSigner{balanceOut: map[string]any{"tx": "0xbeef"}}
		p := newTestProvider(c, s)
		tx := &types.UnprovenTx{Kind: types.TxKindCall, NextState: types.HexBytes{1}, Nonce: types.HexBytes{2}}
		want, err := tx.Serialize()
		c.Assert(err, qt.IsNil)

		balanced, err := p.BalanceTx(context.Background(), tx)
		c.Assert(err, qt.IsNil)
		c.Assert(balanced, qt.DeepEquals, types.HexBytes{0xbe, 0xef})
		c.Assert(s.balanceIn, qt.DeepEquals, want)
	})

	c.Run("json fallback is sanitized", func(c *qt.C) {
		s := &scriptedSigner{balanceOut: []byte{7}}
		p := newTestProvider(c, s)
		_, err := p.BalanceTx(context.Background(), jsonTx{Nonce: types.HexBytes{1}, Value: 3})
		c.Assert(err, qt.IsNil)
		c.Assert(s.balanceIn, qt.DeepEquals, map[string]any{"nonce": "0x01", "value": float64(3)})
	})

	c.Run("rejected", func(c *qt.C) {
		s := &scriptedSigner{balanceErr: errors.New("Insufficient DUST to pay fees")}
		p := newTestProvider(c, s)
		_, err := p.BalanceTx(context.Background(), []byte{1})
		c.Assert(err, qt.ErrorIs, ErrWalletRejected)
		c.Assert(IsInsufficientFunds(err), qt.IsTrue)
		var se *SignerError
		c.Assert(errors.As(err, &se), qt.IsTrue)
		c.Assert(se.Op, qt.Equals, "balanceUnsealedTransaction")
	})

	c.Run("timeout", func(c *qt.C) {
		s := &scriptedSigner{block: true, balanceOut: []byte{1}}
		p := newTestProvider(c, s, WithTimeout(20*time.Millisecond))
		start := time.Now()
		_, err := p.BalanceTx(context.Background(), []byte{1})
		c.Assert(err, qt.ErrorIs, ErrTimeout)
		c.Assert(time.Since(start) < 500*time.Millisecond, qt.IsTrue)
	})

	c.Run("nil", func(c *qt.C) {
		p := newTestProvider(c, &scriptedSigner{})
		_, err := p.BalanceTx(context.Background(), nil)
		c.Assert(err, qt.ErrorIs, ErrInvalidTx)
	})
}

func TestSubmitTx(t *testing.T) {
	c := qt.New(t)

	s := &scriptedSigner{submitOut: []any{map[string]any{"txId": "0xabc"}}}
	p := newTestProvider(c, s)
	txID, err := p.SubmitTx(context.Background(), types.HexBytes{9, 9})
	c.Assert(err, qt.IsNil)
	c.Assert(txID, qt.Equals, "0xabc")
	c.Assert(s.submitIn, qt.DeepEquals, []byte{9, 9})

	s.submitOut = map[string]any{"status": "ok"}
	_, err = p.SubmitTx(context.Background(), []byte{1})
	c.Assert(err, qt.ErrorIs, ErrUnrecognizedTxResult)

	s.submitErr = errors.New("user declined the transaction")
	_, err = p.SubmitTx(context.Background(), []byte{1})
	c.Assert(err, qt.ErrorIs, ErrWalletRejected)
	c.Assert(IsRejected(err), qt.IsTrue)
}

func TestProveTx(t *testing.T) {
	c := qt.New(t)
	s := &scriptedSigner{proveOut: map[string]any{"transaction": []byte{5, 5}}}
	p := newTestProvider(c, s)
	proven, err := p.ProveTx(context.Background(), []byte{1})
	c.Assert(err, qt.IsNil)
	c.Assert(proven, qt.DeepEquals, types.HexBytes{5, 5})
}

func TestDecodeTxResult(t *testing.T) {
	c := qt.New(t)

	testCases := []struct {
		name string
		in   any
		want string
	}{
		{name: "string", in: " 0x01 ", want: "0x01"},
		{name: "bytes", in: []byte{0xab, 0xcd}, want: "0xabcd"},
		{name: "hex bytes", in: types.HexBytes{0x01}, want: "0x01"},
		{name: "sequence", in: []any{"first", "second"}, want: "first"},
		{name: "txId", in: map[string]any{"txId": "a", "hash": "b"}, want: "a"},
		{name: "txHash", in: map[string]any{"txHash": "b"}, want: "b"},
		{name: "hash", in: map[string]any{"hash": "c"}, want: "c"},
		{name: "id", in: map[string]any{"id": "d"}, want: "d"},
		{name: "nested result", in: map[string]any{"result": []any{map[string]any{"hash": "e"}}}, want: "e"},
		{name: "skips empty txId", in: map[string]any{"txId": "", "hash": "f"}, want: "f"},
	}
	for _, tc := range testCases {
		c.Run(tc.name, func(c *qt.C) {
			got, err := DecodeTxResult(tc.in)
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, tc.want)
		})
	}

	for _, bad := range []any{nil, "", 42, []any{}, map[string]any{}, []byte{}} {
		_, err := DecodeTxResult(bad)
		c.Assert(err, qt.ErrorIs, ErrUnrecognizedTxResult, qt.Commentf("input %#v", bad))
	}
}

func TestErrorClassification(t *testing.T) {
	c := qt.New(t)

	testCases := []struct {
		err  error
		kind error
	}{
		{err: context.DeadlineExceeded, kind: ErrTimeout},
		{err: errors.New("request timed out"), kind: ErrTimeout},
		{err: errors.New("connection refused"), kind: ErrWalletUnavailable},
		{err: fmt.Errorf("wrapped: %w", ErrWalletUnavailable), kind: ErrWalletUnavailable},
		{err: errors.New("user rejected"), kind: ErrWalletRejected},
	}
	for _, tc := range testCases {
		err := classify("op", tc.err)
		c.Assert(err, qt.ErrorIs, tc.kind, qt.Commentf("error %v", tc.err))
		c.Assert(err, qt.ErrorIs, tc.err)
	}

	c.Assert(classify("op", nil), qt.IsNil)
	c.Assert(classify("op", context.Canceled), qt.ErrorIs, context.Canceled)
	// already classified errors are kept as they are
	inner := classify("inner", errors.New("rejected"))
	c.Assert(classify("outer", inner), qt.Equals, inner)

	c.Assert(IsInsufficientFunds(errors.New("not enough funds")), qt.IsTrue)
	c.Assert(IsInsufficientFunds(errors.New("bad proof")), qt.IsFalse)
	c.Assert(IsInsufficientFunds(nil), qt.IsFalse)
	c.Assert(IsInsufficientFunds(errors.New("insufficient DUST balance")), qt.IsTrue)
	c.Assert(IsInsufficientFunds(errors.New("no DUST available")), qt.IsTrue)
	c.Assert(IsInsufficientFunds(errors.New("industry standard failure")), qt.IsFalse)
	c.Assert(IsInsufficientFunds(errors.New("stardust")), qt.IsFalse)
}
