package bridge

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide bridge configuration. It is loaded once at boot
// from the environment and is read-only for the lifetime of a run.
type Config struct {
	// Source chain connection
	SourceNetworkName string
	SourceRPCURL      string
	SourceAPIKey      string
	DepositAddresses  []string

	// Destination chain connection
	DestNetworkName string
	DestRPCURL      string
	DestAPIKey      string
	DestProvider    string
	DestNetwork     string
	SenderAddresses []string
	SenderSeed      string

	// Validation and mirror math
	AllowedAssets     []string
	MinDepositAmount  uint64
	MaxTransferAmount uint64
	FeeAmount         uint64

	// Retry loop tuning
	RequiredConfirmations int
	RetryAttempts         int
	RetryDelay            time.Duration

	// Service tuning
	DatabasePath         string
	StatusListenAddr     string
	StatusInterval       time.Duration
	SweepInterval        time.Duration
	MirrorParallelism    int
	MinDestinationOutput uint64
}

// ConfigFromEnv loads configuration from environment variables with defaults.
func ConfigFromEnv() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SOURCE_NETWORK_NAME", "preprod")
	v.SetDefault("DEST_NETWORK_NAME", "preprod")
	v.SetDefault("DEST_LUCID_PROVIDER", "utxorpc")
	v.SetDefault("DEST_LUCID_NETWORK", "Preprod")
	v.SetDefault("BRIDGE_ALLOWED_ASSETS", "ADA")
	v.SetDefault("BRIDGE_MIN_DEPOSIT_AMOUNT", uint64(2_000_000))
	v.SetDefault("BRIDGE_MAX_TRANSFER_AMOUNT", uint64(100_000_000_000))
	v.SetDefault("BRIDGE_FEE_AMOUNT", uint64(1_000_000))
	v.SetDefault("SECURITY_REQUIRED_CONFIRMATIONS", 1)
	v.SetDefault("SECURITY_RETRY_ATTEMPTS", 3)
	v.SetDefault("SECURITY_RETRY_DELAY_MS", 30_000)
	v.SetDefault("BRIDGE_DB_PATH", "bridge-state.db")
	v.SetDefault("STATUS_LISTEN_ADDR", "")

	return Config{
		SourceNetworkName: v.GetString("SOURCE_NETWORK_NAME"),
		SourceRPCURL:      v.GetString("SOURCE_UTXORPC_URL"),
		SourceAPIKey:      v.GetString("SOURCE_UTXORPC_API_KEY"),
		DepositAddresses:  splitList(v.GetString("SOURCE_DEPOSIT_ADDRESSES")),

		DestNetworkName: v.GetString("DEST_NETWORK_NAME"),
		DestRPCURL:      v.GetString("DEST_UTXORPC_URL"),
		DestAPIKey:      v.GetString("DEST_UTXORPC_API_KEY"),
		DestProvider:    v.GetString("DEST_LUCID_PROVIDER"),
		DestNetwork:     v.GetString("DEST_LUCID_NETWORK"),
		SenderAddresses: splitList(v.GetString("DEST_SENDER_ADDRESSES")),
		SenderSeed:      v.GetString("DEST_SENDER_WALLET_SEED"),

		AllowedAssets:     splitList(v.GetString("BRIDGE_ALLOWED_ASSETS")),
		MinDepositAmount:  v.GetUint64("BRIDGE_MIN_DEPOSIT_AMOUNT"),
		MaxTransferAmount: v.GetUint64("BRIDGE_MAX_TRANSFER_AMOUNT"),
		FeeAmount:         v.GetUint64("BRIDGE_FEE_AMOUNT"),

		RequiredConfirmations: v.GetInt("SECURITY_REQUIRED_CONFIRMATIONS"),
		RetryAttempts:         v.GetInt("SECURITY_RETRY_ATTEMPTS"),
		RetryDelay:            time.Duration(v.GetInt("SECURITY_RETRY_DELAY_MS")) * time.Millisecond,

		DatabasePath:         v.GetString("BRIDGE_DB_PATH"),
		StatusListenAddr:     v.GetString("STATUS_LISTEN_ADDR"),
		StatusInterval:       30 * time.Second,
		SweepInterval:        5 * time.Second,
		MirrorParallelism:    3,
		MinDestinationOutput: 1_000_000,
	}
}

// Validate performs all boot-time checks. A failure here exits the process.
func (c Config) Validate() error {
	if len(c.DepositAddresses) == 0 {
		return ErrNoDepositAddresses
	}
	if len(c.SenderAddresses) == 0 {
		return ErrNoSenderAddresses
	}
	if c.SenderSeed == "" {
		return ErrMissingSeed
	}
	if c.FeeAmount >= c.MinDepositAmount || c.MinDepositAmount >= c.MaxTransferAmount {
		return ErrInvalidFeeConfig.Wrapf("fee=%d min=%d max=%d", c.FeeAmount, c.MinDepositAmount, c.MaxTransferAmount)
	}
	for _, endpoint := range []string{c.SourceRPCURL, c.DestRPCURL} {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return ErrInvalidEndpoint.Wrapf("%q", endpoint)
		}
	}
	if c.SourceRPCURL == c.DestRPCURL {
		return ErrInvalidEndpoint.Wrapf("source and destination endpoints are both %q", c.SourceRPCURL)
	}
	if c.RetryAttempts <= 0 || c.RetryDelay <= 0 {
		return fmt.Errorf("retry attempts and delay must be positive")
	}
	if len(c.AllowedAssets) == 0 {
		return fmt.Errorf("allowed asset set must not be empty")
	}
	return nil
}

// AssetAllowed reports whether the asset type is in the configured whitelist.
func (c Config) AssetAllowed(asset string) bool {
	for _, a := range c.AllowedAssets {
		if a == asset {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
