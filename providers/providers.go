// Package providers assembles everything a donation client needs from a
// connected wallet: its identities, the private state store, the ledger
// reader, the ZK artifacts and a prover.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vocdoni/anondonation/config"
	"github.com/vocdoni/anondonation/db"
	"github.com/vocdoni/anondonation/db/metadb"
	"github.com/vocdoni/anondonation/ledger"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/prover"
	"github.com/vocdoni/anondonation/storage"
	"github.com/vocdoni/anondonation/wallet"
	"github.com/vocdoni/anondonation/zkconfig"
)

// Options tune Configure. Zero values take the defaults of the network the
// wallet reports, or of Network when the wallet reports none.
type Options struct {
	// Network selects the preset used for anything neither the wallet nor
	// these options provide.
	Network string
	// Endpoints override both the preset and the wallet configuration.
	Endpoints config.NetworkConfig

	// ContractName names the private state store.
	ContractName string
	// Database is an already open database for the private state store.
	// When nil, one of type DBType is opened in DataDir.
	Database db.Database
	DBType   string
	DataDir  string

	// AssetsDir serves artifacts from a local directory instead of
	// Endpoints.AssetsURI.
	AssetsDir string
	// AssetsS3 serves artifacts from object storage instead of
	// Endpoints.AssetsURI.
	AssetsS3 *zkconfig.S3Config

	// WalletProver proves with the wallet instead of the proof server.
	WalletProver bool

	WalletTimeout time.Duration
	ProofTimeout  time.Duration
	WatchTimeout  time.Duration
	HTTPClient    *http.Client
}

// Bundle is the set of providers of one wallet session.
type Bundle struct {
	Wallet        *wallet.Provider
	PrivateStates *storage.Storage
	PublicData    ledger.PublicDataProvider
	ZKConfig      *zkconfig.Provider
	Proof         prover.ProofProvider
	// Endpoints are the endpoints in effect after merging presets, the
	// wallet configuration and the options.
	Endpoints config.NetworkConfig

	database db.Database
	ownsDB   bool
}

// CoinPublicKey returns the session coin public key.
func (b *Bundle) CoinPublicKey() string {
	return b.Wallet.CoinPublicKey()
}

// EncryptionPublicKey returns the session encryption public key.
func (b *Bundle) EncryptionPublicKey() string {
	return b.Wallet.EncryptionPublicKey()
}

// Close closes the private state database when Configure opened it. A
// database passed in Options stays open.
func (b *Bundle) Close() {
	if b.ownsDB && b.PrivateStates != nil {
		b.PrivateStates.Close()
	}
}

// Configure connects to signer and builds the providers of the session.
func Configure(ctx context.Context, signer wallet.Signer, opts Options) (*Bundle, error) {
	w, err := wallet.NewProvider(ctx, signer, wallet.WithTimeout(pick(opts.WalletTimeout, config.DefaultWalletTimeout)))
	if err != nil {
		return nil, err
	}
	endpoints, err := resolveEndpoints(ctx, w, opts)
	if err != nil {
		return nil, err
	}
	log.Infow("providers configured",
		"network", endpoints.NetworkID,
		"indexer", endpoints.IndexerURI,
		"proofServer", endpoints.ProofServerURI,
		"coinPublicKey", w.CoinPublicKey())

	b := &Bundle{Wallet: w, Endpoints: endpoints}
	if b.PublicData, err = ledger.NewIndexer(ledger.IndexerConfig{
		URL:          endpoints.IndexerURI,
		WebSocketURL: endpoints.IndexerWsURI,
		WatchTimeout: pick(opts.WatchTimeout, config.DefaultWatchTimeout),
		HTTPClient:   opts.HTTPClient,
	}); err != nil {
		return nil, err
	}
	if b.ZKConfig, err = newAssets(ctx, endpoints, opts); err != nil {
		return nil, err
	}
	if opts.WalletProver {
		b.Proof = prover.NewWalletProver(w)
	} else {
		proverOpts := []prover.Option{prover.WithTimeout(pick(opts.ProofTimeout, config.DefaultProofTimeout))}
		if opts.HTTPClient != nil {
			proverOpts = append(proverOpts, prover.WithHTTPClient(opts.HTTPClient))
		}
		if b.Proof, err = prover.NewHTTPProver(endpoints.ProofServerURI, b.ZKConfig, proverOpts...); err != nil {
			return nil, err
		}
	}
	if err := b.openStore(opts); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundle) openStore(opts Options) error {
	b.database = opts.Database
	if b.database == nil {
		dir := opts.DataDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolve data directory: %w", err)
			}
			dir = filepath.Join(home, config.DefaultDataDir)
		}
		typ := opts.DBType
		if typ == "" {
			typ = db.TypePebble
		}
		database, err := metadb.New(typ, filepath.Join(dir, b.Endpoints.NetworkID))
		if err != nil {
			return fmt.Errorf("open private state database: %w", err)
		}
		b.database, b.ownsDB = database, true
	}
	name := opts.ContractName
	if name == "" {
		name = config.DefaultContractName
	}
	store, err := storage.New(b.database, storage.StoreName(name))
	if err != nil {
		if b.ownsDB {
			_ = b.database.Close()
		}
		return err
	}
	b.PrivateStates = store
	return nil
}

// resolveEndpoints layers the options over the wallet configuration over
// the network preset.
func resolveEndpoints(ctx context.Context, w *wallet.Provider, opts Options) (config.NetworkConfig, error) {
	network := opts.Network
	var fromWallet config.NetworkConfig
	cfg, err := w.Configuration(ctx)
	switch {
	case err != nil:
		log.Warnw("wallet configuration unavailable, using network defaults", "error", err.Error())
	case cfg != nil:
		fromWallet = config.NetworkConfig{
			NetworkID:      cfg.NetworkID,
			IndexerURI:     cfg.IndexerURI,
			IndexerWsURI:   cfg.IndexerWsURI,
			NodeURI:        cfg.NodeURI,
			ProofServerURI: cfg.ProofServerURI,
		}
	}
	if network == "" {
		network = pick(fromWallet.NetworkID, w.Identity().Network)
	}
	if fromWallet.NetworkID != "" && opts.Network != "" && fromWallet.NetworkID != opts.Network {
		return config.NetworkConfig{}, fmt.Errorf("wallet is on network %q, not %q", fromWallet.NetworkID, opts.Network)
	}
	preset, err := config.Network(network)
	if err != nil {
		return config.NetworkConfig{}, err
	}
	return opts.Endpoints.Merge(fromWallet.Merge(preset)), nil
}

func newAssets(ctx context.Context, endpoints config.NetworkConfig, opts Options) (*zkconfig.Provider, error) {
	var (
		fetcher zkconfig.Fetcher
		err     error
	)
	switch {
	case opts.AssetsDir != "":
		fetcher, err = zkconfig.NewDirFetcher(opts.AssetsDir)
	case opts.AssetsS3 != nil:
		fetcher, err = zkconfig.NewS3Fetcher(ctx, *opts.AssetsS3)
	default:
		fetcher, err = zkconfig.NewHTTPFetcher(endpoints.AssetsURI, opts.HTTPClient)
	}
	if err != nil {
		return nil, err
	}
	return zkconfig.New(fetcher, zkconfig.WithCacheSize(config.DefaultAssetCache))
}

func pick[T comparable](v, def T) T {
	var zero T
	if v != zero {
		return v
	}
	return def
}
