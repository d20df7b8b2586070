package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BRIDGE_ADDR", "")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.ListenAddr)
	assert.Equal(t, "bridge.db", cfg.DBPath)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.ErrorBackoff)
	assert.Equal(t, 300*time.Millisecond, cfg.EmoteInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.JournalRetention)
	assert.Zero(t, cfg.IngressRate)
	assert.Equal(t, 20, cfg.IngressBurst)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	t.Setenv("BRIDGE_ADDR", "")
	t.Setenv("PORT", "8080")
	t.Setenv("BRIDGE_GAME_ADDR", "10.0.0.1:39699")
	t.Setenv("BRIDGE_KEY", "30313233343536373839616263646566")
	t.Setenv("BRIDGE_IV", "66656463626139383736353433323130")
	t.Setenv("BRIDGE_EMOTE_INTERVAL", "500ms")

	cfg, err := LoadConfig([]string{"--region", "IND", "--log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "10.0.0.1:39699", cfg.GameAddr)
	assert.Equal(t, "IND", cfg.Region)
	assert.Equal(t, []byte("0123456789abcdef"), cfg.Key)
	assert.Equal(t, []byte("fedcba9876543210"), cfg.IV)
	assert.Equal(t, 500*time.Millisecond, cfg.EmoteInterval)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadConfigRequiresKeysForGame(t *testing.T) {
	t.Setenv("BRIDGE_KEY", "")
	t.Setenv("BRIDGE_IV", "")

	_, err := LoadConfig([]string{"--game-addr", "10.0.0.1:39699"})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"--key", "zz"})
	assert.Error(t, err)
}
