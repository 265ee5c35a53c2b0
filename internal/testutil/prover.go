package testutil

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/anondonation/contract"
	"github.com/vocdoni/anondonation/types"
)

// proofRequest mirrors the proof server request body.
type proofRequest struct {
	CircuitID   types.CircuitID `cbor:"circuitId"`
	Tx          []byte          `cbor:"tx"`
	ZKIR        []byte          `cbor:"zkir,omitempty"`
	ProverKey   []byte          `cbor:"proverKey,omitempty"`
	VerifierKey []byte          `cbor:"verifierKey,omitempty"`
}

// ProofServer is an HTTP proof server. It checks that requests carry the
// artifacts of the circuit and a balanced transaction, and answers with a
// ProvenTx whose proof binds both.
type ProofServer struct {
	mu       sync.Mutex
	requests int
	delay    time.Duration
	fail     int
}

// Requests returns the number of proof requests served.
func (ps *ProofServer) Requests() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.requests
}

// SetDelay makes every proof request take at least d.
func (ps *ProofServer) SetDelay(d time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.delay = d
}

// FailNext makes the next proof request fail with status.
func (ps *ProofServer) FailNext(status int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.fail = status
}

func (ps *ProofServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		_, _ = w.Write([]byte("ok"))
		return
	case r.Method != http.MethodPost || r.URL.Path != "/prove":
		http.NotFound(w, r)
		return
	}
	ps.mu.Lock()
	ps.requests++
	delay, fail := ps.delay, ps.fail
	ps.fail = 0
	ps.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if fail != 0 {
		http.Error(w, "injected failure", fail)
		return
	}
	var req proofRequest
	if err := cbor.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	if len(req.ZKIR) == 0 || len(req.ProverKey) == 0 || len(req.VerifierKey) == 0 {
		http.Error(w, fmt.Sprintf("missing artifacts for %s", req.CircuitID), http.StatusBadRequest)
		return
	}
	var b BalancedTx
	if err := cbor.Unmarshal(req.Tx, &b); err != nil || len(b.Tx) == 0 {
		http.Error(w, "transaction is not balanced", http.StatusUnprocessableEntity)
		return
	}
	proven, err := encMode.Marshal(ProvenTx{
		Tx:      req.Tx,
		Circuit: req.CircuitID,
		Proof:   crypto.Keccak256(req.ZKIR, req.ProverKey, req.Tx),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(proven)
}

// AssetDir writes placeholder artifacts for every donation circuit into a
// temporary directory and returns it.
func AssetDir(tb testing.TB) string {
	tb.Helper()
	dir := tb.TempDir()
	for _, id := range contract.Circuits() {
		files := map[string][]byte{
			filepath.Join("zkir", id.String()+".bzkir"):    []byte("zkir:" + id.String()),
			filepath.Join("keys", id.String()+".prover"):   []byte("prover:" + id.String()),
			filepath.Join("keys", id.String()+".verifier"): []byte("verifier:" + id.String()),
		}
		for name, data := range files {
			p := filepath.Join(dir, name)
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				tb.Fatal(err)
			}
			if err := os.WriteFile(p, data, 0o644); err != nil {
				tb.Fatal(err)
			}
		}
	}
	return dir
}
