package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("production requires chain settings", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("DATABASE_URL", "postgres://db")
		t.Setenv("CHAIN_RPC_URL", "")
		t.Setenv("BET_CONTRACT_ADDRESS", "")

		_, err := load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CHAIN_RPC_URL")
	})

	t.Run("overrides defaults from the environment", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "development")
		t.Setenv("DATABASE_URL", "postgres://db")
		t.Setenv("DATABASE_NAME", "betmirror")
		t.Setenv("CHAIN_RPC_URL", "http://rpc")
		t.Setenv("BET_CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000b1")
		t.Setenv("CHAIN_ID", "84532")
		t.Setenv("CONFIRMATION_TIMEOUT", "90s")
		t.Setenv("NO_ARBITER_CANCEL_DELAY", "1h")
		t.Setenv("IDENTITY_CACHE_SIZE", "10")
		t.Setenv("LISTENER_START_BLOCK", "1234")

		cfg, err := load()
		require.NoError(t, err)
		assert.Equal(t, int64(84532), cfg.ChainID.Int64())
		assert.Equal(t, 90*time.Second, cfg.ConfirmationTimeout)
		assert.Equal(t, time.Hour, cfg.NoArbiterCancelDelay)
		assert.Equal(t, 10, cfg.IdentityCacheSize)
		assert.Equal(t, uint64(1234), cfg.ListenerStartBlock)
		assert.Equal(t, "postgres://db/betmirror?sslmode=disable", cfg.GetDatabaseURL())
		assert.Equal(t, ":8080", cfg.HTTPAddr)
	})

	t.Run("rejects malformed durations", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "test")
		t.Setenv("CONFIRMATION_TIMEOUT", "soon")

		_, err := load()
		require.Error(t, err)
	})
}

func TestSetTestConfig(t *testing.T) {
	defer ResetConfig()

	cfg := NewTestConfig()
	cfg.HTTPAddr = ":9999"
	SetTestConfig(cfg)

	assert.Same(t, cfg, Get())
}
