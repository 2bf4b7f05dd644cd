package bridge_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
)

func validConfig() bridge.Config {
	return bridge.Config{
		SourceRPCURL:      "https://source.example.com:443",
		DestRPCURL:        "https://dest.example.com:443",
		DepositAddresses:  []string{"addr_test1deposit"},
		SenderAddresses:   []string{"addr_test1sender"},
		SenderSeed:        "0000000000000000000000000000000000000000000000000000000000000000",
		AllowedAssets:     []string{"ADA"},
		MinDepositAmount:  2_000_000,
		MaxTransferAmount: 100_000_000_000,
		FeeAmount:         1_000_000,
		RetryAttempts:     3,
		RetryDelay:        30 * time.Second,
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*bridge.Config)
		wantErr error
	}{
		{
			name:    "no deposit addresses",
			mutate:  func(c *bridge.Config) { c.DepositAddresses = nil },
			wantErr: bridge.ErrNoDepositAddresses,
		},
		{
			name:    "no sender addresses",
			mutate:  func(c *bridge.Config) { c.SenderAddresses = nil },
			wantErr: bridge.ErrNoSenderAddresses,
		},
		{
			name:    "missing seed",
			mutate:  func(c *bridge.Config) { c.SenderSeed = "" },
			wantErr: bridge.ErrMissingSeed,
		},
		{
			name:    "fee at or above minimum",
			mutate:  func(c *bridge.Config) { c.FeeAmount = c.MinDepositAmount },
			wantErr: bridge.ErrInvalidFeeConfig,
		},
		{
			name:    "minimum above maximum",
			mutate:  func(c *bridge.Config) { c.MinDepositAmount = c.MaxTransferAmount + 1 },
			wantErr: bridge.ErrInvalidFeeConfig,
		},
		{
			name:    "non-http endpoint",
			mutate:  func(c *bridge.Config) { c.SourceRPCURL = "ftp://nope" },
			wantErr: bridge.ErrInvalidEndpoint,
		},
		{
			name: "source equals destination",
			mutate: func(c *bridge.Config) {
				c.DestRPCURL = c.SourceRPCURL
			},
			wantErr: bridge.ErrInvalidEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateRejectsZeroRetries(t *testing.T) {
	cfg := validConfig()
	cfg.RetryAttempts = 0
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RetryDelay = 0
	require.Error(t, cfg.Validate())
}

func TestAssetAllowed(t *testing.T) {
	cfg := validConfig()
	require.True(t, cfg.AssetAllowed("ADA"))
	require.False(t, cfg.AssetAllowed("SHIBA"))
	require.False(t, cfg.AssetAllowed("ada"), "Asset matching is case sensitive")
}

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg := bridge.ConfigFromEnv()

	require.Equal(t, uint64(2_000_000), cfg.MinDepositAmount)
	require.Equal(t, uint64(100_000_000_000), cfg.MaxTransferAmount)
	require.Equal(t, uint64(1_000_000), cfg.FeeAmount)
	require.Equal(t, 3, cfg.RetryAttempts)
	require.Equal(t, 30*time.Second, cfg.RetryDelay)
	require.Equal(t, []string{"ADA"}, cfg.AllowedAssets)
	require.Equal(t, "bridge-state.db", cfg.DatabasePath)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("SOURCE_DEPOSIT_ADDRESSES", "addr1, addr2 ,addr3")
	t.Setenv("BRIDGE_ALLOWED_ASSETS", "ADA,DJED")
	t.Setenv("BRIDGE_MIN_DEPOSIT_AMOUNT", "5000000")
	t.Setenv("SECURITY_RETRY_DELAY_MS", "100")

	cfg := bridge.ConfigFromEnv()
	require.Equal(t, []string{"addr1", "addr2", "addr3"}, cfg.DepositAddresses)
	require.Equal(t, []string{"ADA", "DJED"}, cfg.AllowedAssets)
	require.Equal(t, uint64(5_000_000), cfg.MinDepositAmount)
	require.Equal(t, 100*time.Millisecond, cfg.RetryDelay)
}
