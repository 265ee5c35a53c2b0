package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/anondonation/campaign"
	"github.com/vocdoni/anondonation/config"
	"github.com/vocdoni/anondonation/ledger"
	"github.com/vocdoni/anondonation/log"
	"github.com/vocdoni/anondonation/providers"
	"github.com/vocdoni/anondonation/storage"
	"github.com/vocdoni/anondonation/types"
	"github.com/vocdoni/anondonation/wallet/remote"
	"github.com/vocdoni/anondonation/zkconfig"
)

const (
	cmdDeploy      = "deploy"
	cmdJoin        = "join"
	cmdDonate      = "donate"
	cmdWithdraw    = "withdraw"
	cmdState       = "state"
	cmdServeAssets = "serve-assets"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting donation", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	cancel()
	if err != nil {
		if hint := campaign.FundingHint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the command in cfg.Args.
func run(ctx context.Context, cfg *Config) error {
	cmd, params := cfg.Args[0], cfg.Args[1:]
	if cmd == cmdServeAssets {
		return serveAssets(ctx, cfg)
	}
	switch cmd {
	case cmdDeploy, cmdJoin, cmdDonate, cmdWithdraw, cmdState:
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	signer, err := remote.NewClient(cfg.Wallet.Endpoint, nil)
	if err != nil {
		return err
	}
	if err := signer.Ping(ctx); err != nil {
		return fmt.Errorf("wallet at %s: %w", cfg.Wallet.Endpoint, err)
	}
	bundle, err := providers.Configure(ctx, signer, providerOptions(cfg))
	if err != nil {
		return err
	}
	defer bundle.Close()
	client, err := campaign.New(bundle, campaign.WithConfirm(cfg.Confirm))
	if err != nil {
		return err
	}

	switch cmd {
	case cmdDeploy:
		var secret types.HexBytes
		if cfg.Secret != "" {
			if secret, err = types.HexStringToHexBytes(cfg.Secret); err != nil {
				return fmt.Errorf("invalid secret key: %w", err)
			}
		}
		res, err := client.Deploy(ctx, secret)
		if err != nil {
			return err
		}
		fmt.Printf("contract: %s\ntx:       %s\nheight:   %d\n", res.ContractAddress, res.TxHash, res.BlockHeight)
		return nil

	case cmdJoin:
		if len(params) != 1 {
			return fmt.Errorf("usage: join <address>")
		}
		addr, err := types.HexStringToHexBytes(params[0])
		if err != nil {
			return fmt.Errorf("invalid campaign address: %w", err)
		}
		state, err := client.Join(ctx, addr)
		if err != nil {
			return err
		}
		printState(addr, state)
		return nil

	case cmdDonate:
		if len(params) != 1 {
			return fmt.Errorf("usage: donate <amount>")
		}
		amount, ok := new(big.Int).SetString(params[0], 10)
		if !ok {
			return fmt.Errorf("invalid amount %q", params[0])
		}
		if err := connect(ctx, cfg, bundle, client); err != nil {
			return err
		}
		res, err := client.Donate(ctx, amount)
		if err != nil {
			return err
		}
		printCall(res)
		return nil

	case cmdWithdraw:
		if err := connect(ctx, cfg, bundle, client); err != nil {
			return err
		}
		res, err := client.Withdraw(ctx)
		if err != nil {
			return err
		}
		printCall(res)
		return nil

	default:
		var addr types.HexBytes
		if len(params) > 0 {
			if addr, err = types.HexStringToHexBytes(params[0]); err != nil {
				return fmt.Errorf("invalid campaign address: %w", err)
			}
		} else if addr, err = campaignAddress(cfg, bundle); err != nil {
			return err
		}
		state, err := client.CampaignState(ctx, addr)
		if err != nil {
			return err
		}
		printState(addr, state)
		return nil
	}
}

func providerOptions(cfg *Config) providers.Options {
	opts := providers.Options{
		Network: cfg.Network,
		Endpoints: config.NetworkConfig{
			IndexerURI:     cfg.Endpoints.Indexer,
			IndexerWsURI:   cfg.Endpoints.IndexerWs,
			NodeURI:        cfg.Endpoints.Node,
			ProofServerURI: cfg.Endpoints.Prover,
			AssetsURI:      cfg.Endpoints.Assets,
		},
		ContractName:  cfg.Contract,
		DBType:        cfg.DBType,
		DataDir:       cfg.Datadir,
		AssetsDir:     cfg.Assets.Dir,
		WalletProver:  cfg.Wallet.Prove,
		WalletTimeout: cfg.Wallet.Timeout,
	}
	if cfg.Assets.S3.Enabled {
		opts.AssetsS3 = &zkconfig.S3Config{
			Endpoint:  cfg.Assets.S3.Endpoint,
			Region:    cfg.Assets.S3.Region,
			Bucket:    cfg.Assets.S3.Bucket,
			Prefix:    cfg.Assets.S3.Prefix,
			AccessKey: cfg.Assets.S3.AccessKey,
			SecretKey: cfg.Assets.S3.SecretKey,
		}
	}
	return opts
}

// connect joins the configured campaign.
func connect(ctx context.Context, cfg *Config, bundle *providers.Bundle, client *campaign.Client) error {
	addr, err := campaignAddress(cfg, bundle)
	if err != nil {
		return err
	}
	_, err = client.Join(ctx, addr)
	return err
}

// campaignAddress returns the configured campaign, or the last one
// deployed from this data directory.
func campaignAddress(cfg *Config, bundle *providers.Bundle) (types.HexBytes, error) {
	if cfg.Campaign != "" {
		addr, err := types.HexStringToHexBytes(cfg.Campaign)
		if err != nil {
			return nil, fmt.Errorf("invalid campaign address: %w", err)
		}
		return addr, nil
	}
	deployments, err := bundle.PrivateStates.ListDeployments()
	if err != nil {
		return nil, err
	}
	var last *storage.Deployment
	for _, d := range deployments {
		if d.Network != bundle.Endpoints.NetworkID {
			continue
		}
		if last == nil || d.CreatedAt.After(last.CreatedAt) {
			last = d
		}
	}
	if last == nil {
		return nil, fmt.Errorf("no campaign configured (use --campaign or DONATION_CAMPAIGN)")
	}
	log.Infow("using last deployed campaign", "contract", last.ContractAddress.String(), "created", last.CreatedAt)
	return last.ContractAddress, nil
}

// serveAssets serves the artifacts directory until ctx is done.
func serveAssets(ctx context.Context, cfg *Config) error {
	if cfg.Assets.Dir == "" {
		return fmt.Errorf("serve-assets needs --assets.dir")
	}
	handler, err := zkconfig.NewAssetServer(cfg.Assets.Dir)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Assets.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infow("serving circuit artifacts", "dir", cfg.Assets.Dir, "listen", cfg.Assets.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Infow("received signal, shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printState(addr types.HexBytes, state *ledger.CampaignState) {
	fmt.Printf("contract:  %s\ndonations: %d\nround:     %d\nauthority: %s\n",
		addr, state.DonationCount, state.Round, state.RecipientAuthority)
}

func printCall(res *campaign.CallResult) {
	fmt.Printf("tx:        %s\nheight:    %d\n", res.TxID, res.BlockHeight)
	if res.Ledger != nil {
		fmt.Printf("donations: %d\nround:     %d\n", res.Ledger.DonationCount, res.Ledger.Round)
	}
}
