// Package prover turns balanced transactions into proven ones.
//
// The proof server does the heavy lifting: it receives the circuit id, the
// transaction and the circuit artifacts and answers with the proven
// transaction. Artifacts come from a zkconfig.Provider so the server does
// not need its own copy.
package prover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/zkconfig"
)

const (
	ProveEndpoint  = "/prove"
	HealthEndpoint = "/health"

	// DefaultTimeout bounds a single proof request.
	DefaultTimeout = 5 * time.Minute

	contentTypeCBOR = "application/cbor"
)

var (
	// ErrTimeout is returned when the proof server does not answer in time.
	ErrTimeout = errors.New("proof server timeout")
	// ErrProofRejected is returned when the proof server refuses the
	// transaction, for example because its witnesses do not satisfy the
	// circuit.
	ErrProofRejected = errors.New("proof rejected")
	// ErrProofServerUnavailable is returned when the proof server cannot be
	// reached or fails internally.
	ErrProofServerUnavailable = errors.New("proof server unavailable")
)

// ProofProvider proves a balanced transaction for a circuit.
type ProofProvider interface {
	Prove(ctx context.Context, circuit types.CircuitID, tx []byte) ([]byte, error)
}

// AssetSource returns the artifacts of a circuit. *zkconfig.Provider
// implements it.
type AssetSource interface {
	Get(ctx context.Context, id types.CircuitID) (*zkconfig.Material, error)
}

// Request is the body of a proof request.
type Request struct {
	CircuitID   types.CircuitID `cbor:"circuitId"`
	Tx          []byte          `cbor:"tx"`
	ZKIR        []byte          `cbor:"zkir,omitempty"`
	ProverKey   []byte          `cbor:"proverKey,omitempty"`
	VerifierKey []byte          `cbor:"verifierKey,omitempty"`
}

var reqEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoding mode: %v", err))
	}
	return em
}()

// Encode returns the wire form of the request.
func (r *Request) Encode() ([]byte, error) {
	return reqEncMode.Marshal(r)
}

// DecodeRequest parses the wire form of a proof request.
func DecodeRequest(data []byte) (*Request, error) {
	r := &Request{}
	if err := cbor.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode proof request: %w", err)
	}
	return r, nil
}

// HTTPProver is a ProofProvider backed by a remote proof server.
type HTTPProver struct {
	url     string
	client  *http.Client
	assets  AssetSource
	timeout time.Duration
}

var _ ProofProvider = (*HTTPProver)(nil)

// Option configures an HTTPProver.
type Option func(*HTTPProver)

// WithTimeout sets the deadline of each proof request.
func WithTimeout(d time.Duration) Option {
	return func(p *HTTPProver) {
		p.timeout = d
	}
}

// WithHTTPClient sets the HTTP client used to reach the proof server.
func WithHTTPClient(client *http.Client) Option {
	return func(p *HTTPProver) {
		p.client = client
	}
}

// NewHTTPProver returns a prover for the proof server at serverURL. With a
// nil assets source requests carry no artifacts and the server must have
// its own.
func NewHTTPProver(serverURL string, assets AssetSource, opts ...Option) (*HTTPProver, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("proof server URL is required")
	}
	p := &HTTPProver{
		url:     strings.TrimSuffix(serverURL, "/"),
		client:  http.DefaultClient,
		assets:  assets,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Check returns nil when the proof server reports itself healthy.
func (p *HTTPProver) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	status, body, err := p.do(ctx, http.MethodGet, HealthEndpoint, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: health status %d: %s", ErrProofServerUnavailable, status, body)
	}
	return nil
}

// Prove implements ProofProvider.
func (p *HTTPProver) Prove(ctx context.Context, circuit types.CircuitID, tx []byte) ([]byte, error) {
	if len(tx) == 0 {
		return nil, fmt.Errorf("%w: empty transaction", ErrProofRejected)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	req := &Request{CircuitID: circuit, Tx: tx}
	if p.assets != nil {
		m, err := p.assets.Get(ctx, circuit)
		if err != nil {
			return nil, fmt.Errorf("load artifacts of %s: %w", circuit, err)
		}
		req.ZKIR, req.ProverKey, req.VerifierKey = m.ZKIR, m.ProverKey, m.VerifierKey
	}
	body, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode proof request: %w", err)
	}
	start := time.Now()
	status, resp, err := p.do(ctx, http.MethodPost, ProveEndpoint, body)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusOK && len(resp) > 0:
		log.Debugw("transaction proven",
			"circuit", circuit.String(),
			"bytes", len(resp),
			"took", time.Since(start).String())
		return resp, nil
	case status == http.StatusOK:
		return nil, fmt.Errorf("%w: empty proof server response", ErrProofServerUnavailable)
	case status >= 400 && status < 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrProofRejected, status, resp)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", ErrProofServerUnavailable, status, resp)
	}
}

func (p *HTTPProver) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.url+endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeCBOR)
	}
	res, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrProofServerUnavailable, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnw("failed to close proof server response body", "error", err.Error())
		}
	}()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return 0, nil, fmt.Errorf("error reading response body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		data = bytes.TrimSpace(data)
	}
	return res.StatusCode, data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
