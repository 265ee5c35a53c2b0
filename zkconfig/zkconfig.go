// Package zkconfig resolves the ZK artifacts of a circuit: its ZKIR, its
// prover key and its verifier key.
//
// Artifacts are addressed by circuit id and kind and laid out as
//
//	zkir/<contractTag>#<circuitName>.bzkir
//	keys/<contractTag>#<circuitName>.prover
//	keys/<contractTag>#<circuitName>.verifier
//
// below the root of an asset source. The bytes are returned exactly as
// served. A response that looks like an HTML page is refused, since asset
// servers that fall back to an application shell answer unknown paths with
// 200 and markup.
package zkconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/types"
	"golang.org/x/sync/errgroup"
)

// Kind is the kind of a ZK artifact.
type Kind string

const (
	KindZKIR        Kind = "zkir"
	KindProverKey   Kind = "prover"
	KindVerifierKey Kind = "verifier"
)

const (
	// DefaultCacheSize is the number of artifacts kept in memory.
	DefaultCacheSize = 64
	// DefaultTimeout bounds a single artifact fetch.
	DefaultTimeout = 2 * time.Minute

	prefetchLimit = 4
)

var (
	// ErrAssetNotFound is returned when the source has no such artifact.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrAssetMisrouted is returned when the source answered with markup
	// instead of the artifact.
	ErrAssetMisrouted = errors.New("asset request misrouted: got markup instead of binary data")
	// ErrTimeout is returned when a fetch exceeds its deadline.
	ErrTimeout = errors.New("asset fetch timeout")
)

// AssetFetchError reports a failed artifact fetch. Status is the response
// status when the source is HTTP based, zero otherwise.
type AssetFetchError struct {
	CircuitID types.CircuitID
	Kind      Kind
	Status    int
	Err       error
}

func (e *AssetFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s for %s: status %d: %v", e.Kind, e.CircuitID, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s for %s: %v", e.Kind, e.CircuitID, e.Err)
}

func (e *AssetFetchError) Unwrap() error {
	return e.Err
}

// StatusError is returned by fetchers for non-success responses.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// Is makes 404 responses match ErrAssetNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrAssetNotFound && e.Status == 404
}

// Fetcher reads raw artifacts from an asset source by relative path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// AssetPath returns the path of an artifact relative to the asset root.
func AssetPath(kind Kind, id types.CircuitID) string {
	switch kind {
	case KindZKIR:
		return path.Join("zkir", id.String()+".bzkir")
	default:
		return path.Join("keys", id.String()+"."+string(kind))
	}
}

// Material holds every artifact of one circuit.
type Material struct {
	CircuitID   types.CircuitID
	ZKIR        []byte
	ProverKey   []byte
	VerifierKey []byte
}

// VerifierKey is a verifier key with the circuit it belongs to.
type VerifierKey struct {
	CircuitID types.CircuitID
	Key       []byte
}

// Provider is the ZK asset provider. It is safe for concurrent use.
type Provider struct {
	fetcher   Fetcher
	cache     *lru.Cache[string, []byte]
	cacheSize int
	timeout   time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithCacheSize sets the number of cached artifacts. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(p *Provider) {
		p.cacheSize = n
	}
}

// WithTimeout sets the deadline of each fetch.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// New returns a provider reading artifacts from fetcher.
func New(fetcher Fetcher, opts ...Option) (*Provider, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("missing asset fetcher")
	}
	p := &Provider{
		fetcher:   fetcher,
		cacheSize: DefaultCacheSize,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cacheSize > 0 {
		cache, err := lru.New[string, []byte](p.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create asset cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// ZKIR returns the intermediate representation of circuit id.
func (p *Provider) ZKIR(ctx context.Context, id types.CircuitID) ([]byte, error) {
	return p.asset(ctx, KindZKIR, id)
}

// ProverKey returns the prover key of circuit id.
func (p *Provider) ProverKey(ctx context.Context, id types.CircuitID) ([]byte, error) {
	return p.asset(ctx, KindProverKey, id)
}

// VerifierKey returns the verifier key of circuit id.
func (p *Provider) VerifierKey(ctx context.Context, id types.CircuitID) ([]byte, error) {
	return p.asset(ctx, KindVerifierKey, id)
}

// VerifierKeys returns the verifier keys of ids in first-seen order. Empty
// ids are skipped and repeated ids are fetched once.
func (p *Provider) VerifierKeys(ctx context.Context, ids []types.CircuitID) ([]VerifierKey, error) {
	unique := dedupe(ids)
	keys := make([]VerifierKey, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range unique {
		g.Go(func() error {
			key, err := p.VerifierKey(gctx, id)
			if err != nil {
				return err
			}
			keys[i] = VerifierKey{CircuitID: id, Key: key}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keys, nil
}

// VerifierKeysFromString is VerifierKeys over a comma or whitespace
// separated list of circuit ids.
func (p *Provider) VerifierKeysFromString(ctx context.Context, list string) ([]VerifierKey, error) {
	ids, err := ParseCircuitIDs(list)
	if err != nil {
		return nil, err
	}
	return p.VerifierKeys(ctx, ids)
}

// Get fetches the three artifacts of circuit id concurrently.
func (p *Provider) Get(ctx context.Context, id types.CircuitID) (*Material, error) {
	m := &Material{CircuitID: id}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		m.ZKIR, err = p.ZKIR(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		m.ProverKey, err = p.ProverKey(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		m.VerifierKey, err = p.VerifierKey(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// Prefetch loads every artifact of ids into the cache, failing on the first
// missing one.
func (p *Provider) Prefetch(ctx context.Context, ids ...types.CircuitID) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchLimit)
	for _, id := range dedupe(ids) {
		g.Go(func() error {
			_, err := p.Get(gctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Infow("zk artifacts ready", "circuits", len(ids), "took", time.Since(start).String())
	return nil
}

// KeyMaterial fetches the raw bytes at location, relative to the asset
// root, bypassing the cache.
func (p *Provider) KeyMaterial(ctx context.Context, location string) ([]byte, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	data, err := p.fetcher.Fetch(ctx, strings.TrimPrefix(location, "/"))
	if err != nil {
		return nil, timeoutErr(err)
	}
	return data, nil
}

func (p *Provider) asset(ctx context.Context, kind Kind, id types.CircuitID) ([]byte, error) {
	if _, err := types.ParseCircuitID(id.String()); err != nil {
		return nil, &AssetFetchError{CircuitID: id, Kind: kind, Err: err}
	}
	key := string(kind) + ":" + id.String()
	if p.cache != nil {
		if data, ok := p.cache.Get(key); ok {
			return bytes.Clone(data), nil
		}
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	data, err := p.fetcher.Fetch(ctx, AssetPath(kind, id))
	if err != nil {
		ferr := &AssetFetchError{CircuitID: id, Kind: kind, Err: timeoutErr(err)}
		var serr *StatusError
		if errors.As(err, &serr) {
			ferr.Status = serr.Status
		}
		log.Warnw("zk artifact fetch failed", "circuit", id.String(), "kind", string(kind), "error", err.Error())
		return nil, ferr
	}
	log.Debugw("zk artifact fetched",
		"circuit", id.String(),
		"kind", string(kind),
		"bytes", len(data),
		"took", time.Since(start).String())
	if p.cache != nil {
		p.cache.Add(key, bytes.Clone(data))
	}
	return data, nil
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// ParseCircuitIDs splits a comma or whitespace separated list of circuit
// ids. Empty entries are skipped.
func ParseCircuitIDs(list string) ([]types.CircuitID, error) {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	ids := make([]types.CircuitID, 0, len(fields))
	for _, f := range fields {
		id, err := types.ParseCircuitID(f)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func dedupe(ids []types.CircuitID) []types.CircuitID {
	seen := make(map[types.CircuitID]struct{}, len(ids))
	out := make([]types.CircuitID, 0, len(ids))
	for _, id := range ids {
		id = types.CircuitID(strings.TrimSpace(id.String()))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// isMarkup reports whether a response is an HTML document rather than an
// artifact, from its content type or, when there is none, its first bytes.
func isMarkup(contentType string, body []byte) bool {
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil && (mt == "text/html" || mt == "application/xhtml+xml") {
			return true
		}
	}
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 64)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

func misrouted(p, contentType string) error {
	if contentType == "" {
		return fmt.Errorf("%w: %s", ErrAssetMisrouted, p)
	}
	return fmt.Errorf("%w: %s served as %s", ErrAssetMisrouted, p, contentType)
}
