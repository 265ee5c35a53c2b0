package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/anondonation/internal/testutil"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/wallet"
)

func newRemote(c *qt.C) (*Client, *testutil.Signer) {
	signer := testutil.NewSigner(5, testutil.NewChain())
	srv := httptest.NewServer(NewServer(signer))
	c.Cleanup(srv.Close)
	client, err := NewClient(srv.URL, nil)
	c.Assert(err, qt.IsNil)
	return client, signer
}

func TestRemoteSigner(t *testing.T) {
	c := qt.New(t)
	client, signer := newRemote(c)
	ctx := context.Background()

	c.Assert(client.Ping(ctx), qt.IsNil)

	addr, err := client.UnshieldedAddress(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(addr, qt.Equals, signer.Address())

	signer.SetConfiguration(&wallet.Configuration{
		IndexerURI:     "http://indexer",
		ProofServerURI: "http://prover",
		NetworkID:      "undeployed",
	})
	cfg, err := client.Configuration(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.IndexerURI, qt.Equals, "http://indexer")
	c.Assert(cfg.ProofServerURI, qt.Equals, "http://prover")
	c.Assert(cfg.NetworkID, qt.Equals, "undeployed")

	res, err := client.BalanceUnsealedTransaction(ctx, []byte{1, 2, 3})
	c.Assert(err, qt.IsNil)
	m, ok := res.(map[string]any)
	c.Assert(ok, qt.IsTrue)
	var balanced testutil.BalancedTx
	c.Assert(cbor.Unmarshal(m["tx"].([]byte), &balanced), qt.IsNil)
	c.Assert(balanced.Tx, qt.DeepEquals, []byte{1, 2, 3})
}

func TestRemoteProvider(t *testing.T) {
	c := qt.New(t)
	client, signer := newRemote(c)
	ctx := context.Background()

	// the provider sees no difference between a local and a remote signer
	p, err := wallet.NewProvider(ctx, client)
	c.Assert(err, qt.IsNil)
	local, err := wallet.NewProvider(ctx, signer)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Identity(), qt.Equals, local.Identity())

	tx := &types.UnprovenTx{Kind: types.TxKindCall, NextState: types.HexBytes{1}, Nonce: types.HexBytes{2}}
	balanced, err := p.BalanceTx(ctx, tx)
	c.Assert(err, qt.IsNil)
	c.Assert(balanced, qt.Not(qt.HasLen), 0)
}

func TestRemoteErrors(t *testing.T) {
	c := qt.New(t)
	client, signer := newRemote(c)
	ctx := context.Background()

	signer.FailNext("BalanceUnsealedTransaction", errors.New("user rejected the request"))
	_, err := client.BalanceUnsealedTransaction(ctx, []byte{1})
	c.Assert(err, qt.ErrorIs, wallet.ErrWalletRejected)
	c.Assert(err, qt.ErrorMatches, `.*user rejected the request`)

	signer.FailNext("SubmitTransaction", wallet.ErrWalletUnavailable)
	_, err = client.SubmitTransaction(ctx, []byte{1})
	c.Assert(err, qt.ErrorIs, wallet.ErrWalletUnavailable)

	signer.FailNext("ProveTransaction", context.DeadlineExceeded)
	_, err = client.ProveTransaction(ctx, []byte{1})
	c.Assert(err, qt.ErrorIs, wallet.ErrTimeout)

	// funding errors keep their message across the wire
	signer.SetFunds(0)
	p, err := wallet.NewProvider(ctx, client)
	c.Assert(err, qt.IsNil)
	_, err = p.BalanceTx(ctx, []byte{1})
	c.Assert(err, qt.ErrorIs, wallet.ErrWalletRejected)
	c.Assert(wallet.IsInsufficientFunds(err), qt.IsTrue)
}

func TestRemoteTransport(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	_, err := NewClient("", nil)
	c.Assert(err, qt.IsNotNil)

	notFound := httptest.NewServer(http.NotFoundHandler())
	c.Cleanup(notFound.Close)
	client, err := NewClient(notFound.URL, nil)
	c.Assert(err, qt.IsNil)
	_, err = client.UnshieldedAddress(ctx)
	c.Assert(err, qt.ErrorIs, wallet.ErrWalletUnavailable)
	c.Assert(client.Ping(ctx), qt.ErrorIs, wallet.ErrWalletUnavailable)

	srv := httptest.NewServer(NewServer(testutil.NewSigner(1, testutil.NewChain())))
	c.Cleanup(srv.Close)
	resp, err := http.Post(srv.URL+"/unknownMethod", contentType, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Body.Close(), qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNotFound)
}
