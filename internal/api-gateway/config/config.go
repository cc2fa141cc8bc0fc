// Package config loads the gateway configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the gateway.
type Config struct {
	Port               string        `envconfig:"PORT" default:"5000"`
	HTTPReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	HTTPWriteTimeout   time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"150s"`
	HTTPIdleTimeout    time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	HTTPRequestTimeout time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"140s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	LedgerRPCURL       string        `envconfig:"LEDGER_RPC_URL" default:"http://127.0.0.1:7545"`
	LedgerSimulated    bool          `envconfig:"LEDGER_SIMULATED" default:"false"`
	ContractAddress    string        `envconfig:"CONTRACT_ADDRESS"`
	ContractABIPath    string        `envconfig:"CONTRACT_ABI_PATH" default:"contracts/Marketplace.json"`
	LedgerCallTimeout  time.Duration `envconfig:"LEDGER_CALL_TIMEOUT" default:"30s"`
	LedgerTxTimeout    time.Duration `envconfig:"LEDGER_TX_TIMEOUT" default:"2m"`
	LedgerReceiptPoll  time.Duration `envconfig:"LEDGER_RECEIPT_POLL" default:"500ms"`
	SellerAccountIndex int           `envconfig:"SELLER_ACCOUNT_INDEX" default:"1"`
	BuyerAccountIndex  int           `envconfig:"BUYER_ACCOUNT_INDEX" default:"2"`
	GasLimitCreate     uint64        `envconfig:"GAS_LIMIT_CREATE" default:"500000"`
	GasLimitUpdate     uint64        `envconfig:"GAS_LIMIT_UPDATE" default:"500000"`
	GasLimitPurchase   uint64        `envconfig:"GAS_LIMIT_PURCHASE" default:"500000"`
	SellerFanOut       int           `envconfig:"SELLER_PRODUCTS_FANOUT" default:"8"`

	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	ProductCacheTTL time.Duration `envconfig:"PRODUCT_CACHE_TTL" default:"30s"`

	TxJournalPath string `envconfig:"TX_JOURNAL_PATH"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"0"`

	OTelEnabled     bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTelServiceName string  `envconfig:"OTEL_SERVICE_NAME" default:"marketplace-gateway"`
	OTelEndpoint    string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	OTelEnvironment string  `envconfig:"OTEL_RESOURCE_ATTRIBUTES_ENV" default:"local"`
	OTelSampleRatio float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	// GANACHE_URL is accepted for deployments configured for Ganache.
	if os.Getenv("LEDGER_RPC_URL") == "" {
		if url := os.Getenv("GANACHE_URL"); url != "" {
			cfg.LedgerRPCURL = url
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if !c.LedgerSimulated {
		if c.ContractAddress == "" {
			return errors.New("config: CONTRACT_ADDRESS must be provided")
		}
		if !common.IsHexAddress(c.ContractAddress) {
			return fmt.Errorf("config: CONTRACT_ADDRESS %q is not a valid address", c.ContractAddress)
		}
		if c.LedgerRPCURL == "" {
			return errors.New("config: LEDGER_RPC_URL must be provided")
		}
	}
	if c.SellerAccountIndex < 0 || c.BuyerAccountIndex < 0 {
		return errors.New("config: account indexes must be non-negative")
	}
	if c.LedgerCallTimeout <= 0 || c.LedgerTxTimeout <= 0 || c.LedgerReceiptPoll <= 0 {
		return errors.New("config: ledger timeouts must be positive")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}
