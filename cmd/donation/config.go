package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/anondonation/config"
	"github.com/vocdoni/anondonation/db"
)

const (
	defaultWalletEndpoint = "http://127.0.0.1:9933"
	defaultAssetsListen   = "127.0.0.1:8080"
	defaultLogLevel       = "info"
	defaultLogOutput      = "stderr"
)

// Version is the build version, set at build time with -ldflags
var Version = "dev"

// Config holds the application configuration
type Config struct {
	Network   string          `mapstructure:"network"`
	Campaign  string          `mapstructure:"campaign"`
	Contract  string          `mapstructure:"contract"`
	Secret    string          `mapstructure:"secret"`
	Confirm   bool            `mapstructure:"confirm"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Log       LogConfig       `mapstructure:"log"`
	Datadir   string          `mapstructure:"datadir"`
	DBType    string          `mapstructure:"dbtype"`

	// Args are the command and its arguments.
	Args []string `mapstructure:"-"`
}

// WalletConfig holds the remote signer configuration
type WalletConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prove    bool          `mapstructure:"prove"`
}

// EndpointsConfig overrides the network service endpoints
type EndpointsConfig struct {
	Indexer   string `mapstructure:"indexer"`
	IndexerWs string `mapstructure:"indexerws"`
	Node      string `mapstructure:"node"`
	Prover    string `mapstructure:"prover"`
	Assets    string `mapstructure:"assets"`
}

// AssetsConfig selects where the circuit artifacts come from
type AssetsConfig struct {
	Dir    string   `mapstructure:"dir"`
	Listen string   `mapstructure:"listen"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config holds the object storage artifacts source
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"accesskey"`
	SecretKey string `mapstructure:"secretkey"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from the command line arguments argv,
// environment variables, and defaults
func loadConfig(argv []string) (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, config.DefaultDataDir)

	v.SetDefault("network", "")
	v.SetDefault("contract", config.DefaultContractName)
	v.SetDefault("confirm", true)
	v.SetDefault("wallet.endpoint", defaultWalletEndpoint)
	v.SetDefault("wallet.timeout", config.DefaultWalletTimeout)
	v.SetDefault("assets.listen", defaultAssetsListen)
	v.SetDefault("assets.s3.endpoint", config.DefaultArtifactsS3Endpoint)
	v.SetDefault("assets.s3.region", "us-east-1")
	v.SetDefault("assets.s3.bucket", config.DefaultArtifactsS3Bucket)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)
	v.SetDefault("dbtype", db.TypePebble)

	fs := flag.NewFlagSet("donation", flag.ContinueOnError)
	fs.StringP("network", "n", "", fmt.Sprintf("network to use %v (defaults to the wallet network)", config.AvailableNetworks()))
	fs.StringP("campaign", "c", "", "campaign contract address (defaults to the last campaign deployed from this datadir)")
	fs.String("contract", config.DefaultContractName, "contract name, selects the private state store")
	fs.String("secret", "", "recipient secret key for deploy, hex encoded (random if empty)")
	fs.Bool("confirm", true, "wait for the ledger to include each transaction")
	fs.StringP("wallet.endpoint", "w", defaultWalletEndpoint, "remote wallet signer endpoint")
	fs.Duration("wallet.timeout", config.DefaultWalletTimeout, "deadline of each wallet request")
	fs.Bool("wallet.prove", false, "prove transactions with the wallet instead of the proof server")
	fs.String("endpoints.indexer", "", "indexer GraphQL endpoint (overrides wallet and network)")
	fs.String("endpoints.indexerws", "", "indexer GraphQL subscriptions endpoint")
	fs.String("endpoints.node", "", "node RPC endpoint")
	fs.String("endpoints.prover", "", "proof server endpoint")
	fs.String("endpoints.assets", "", "circuit artifacts base URL")
	fs.String("assets.dir", "", "serve circuit artifacts from a local directory")
	fs.String("assets.listen", defaultAssetsListen, "listen address of serve-assets")
	fs.Bool("assets.s3.enabled", false, "fetch circuit artifacts from object storage")
	fs.String("assets.s3.endpoint", config.DefaultArtifactsS3Endpoint, "object storage endpoint")
	fs.String("assets.s3.region", "us-east-1", "object storage region")
	fs.String("assets.s3.bucket", config.DefaultArtifactsS3Bucket, "object storage bucket")
	fs.String("assets.s3.prefix", "", "object key prefix")
	fs.String("assets.s3.accesskey", "", "object storage access key")
	fs.String("assets.s3.secretkey", "", "object storage secret key")
	fs.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	fs.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	fs.StringP("datadir", "d", defaultDatadirPath, "data directory of the private state database")
	fs.String("dbtype", db.TypePebble, "private state database type (pebble, leveldb, inmem)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "donation v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: donation [flags] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  deploy              create a new campaign\n")
		fmt.Fprintf(os.Stderr, "  join <address>      join an existing campaign as a donor\n")
		fmt.Fprintf(os.Stderr, "  donate <amount>     donate to the campaign\n")
		fmt.Fprintf(os.Stderr, "  withdraw            withdraw as the campaign recipient\n")
		fmt.Fprintf(os.Stderr, "  state [address]     print the public state of a campaign\n")
		fmt.Fprintf(os.Stderr, "  serve-assets        serve --assets.dir over HTTP\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, DONATION_WALLET_ENDPOINT or DONATION_ASSETS_S3_BUCKET\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Deploy a campaign on the local network\n")
		fmt.Fprintf(os.Stderr, "  donation --network=undeployed deploy\n\n")
		fmt.Fprintf(os.Stderr, "  # Donate 100 to a campaign\n")
		fmt.Fprintf(os.Stderr, "  donation --campaign=0x0102... donate 100\n")
	}
	fs.SortFlags = false
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("DONATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Args = fs.Args()
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Network != "" && !slices.Contains(config.AvailableNetworks(), cfg.Network) {
		return fmt.Errorf("invalid network %s, available networks: %v", cfg.Network, config.AvailableNetworks())
	}
	if !slices.Contains([]string{db.TypePebble, db.TypeLevelDB, db.TypeInMem}, cfg.DBType) {
		return fmt.Errorf("invalid database type %s", cfg.DBType)
	}
	if len(cfg.Args) == 0 {
		return fmt.Errorf("missing command, see --help")
	}
	if cfg.Wallet.Endpoint == "" && cfg.Args[0] != cmdServeAssets {
		return fmt.Errorf("wallet endpoint is required (use --wallet.endpoint flag or DONATION_WALLET_ENDPOINT environment variable)")
	}
	if cfg.Assets.S3.Enabled && cfg.Assets.Dir != "" {
		return fmt.Errorf("--assets.dir and --assets.s3.enabled are mutually exclusive")
	}
	if cfg.Assets.S3.Enabled && cfg.Assets.S3.Bucket == "" {
		return fmt.Errorf("object storage bucket is required")
	}
	return nil
}
