package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("STORAGE_PATH", "")
	t.Setenv("ENABLE_ECHO_ENDPOINT", "")
	t.Setenv("AI_HISTORY_LIMIT", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Server.EchoEndpoint)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 10, cfg.AI.HistoryLimit)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadServerAddr(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)

	t.Setenv("PORT", "80 80")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadStorageDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "SQLite")
	t.Setenv("STORAGE_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "data/supportbot.db", cfg.Storage.Path)

	t.Setenv("STORAGE_DRIVER", "cassandra")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("ARK_MAX_TOKENS", "lots")
	_, err := Load()
	assert.Error(t, err)
}

func TestAIConfigEnabled(t *testing.T) {
	assert.False(t, AIConfig{}.Enabled())
	assert.False(t, AIConfig{APIKey: "k"}.Enabled())
	assert.True(t, AIConfig{APIKey: "k", Model: "m"}.Enabled())
	assert.True(t, AIConfig{AccessKey: "a", SecretKey: "s", Model: "m"}.Enabled())
}

func TestLoadAIConfig(t *testing.T) {
	t.Setenv("ARK_API_KEY", " key ")
	t.Setenv("ARK_MODEL", "")
	t.Setenv("Model", "legacy-endpoint")
	t.Setenv("ARK_TEMPERATURE", "0.5")
	t.Setenv("ARK_TOP_P", "")
	t.Setenv("AI_HISTORY_LIMIT", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.AI.APIKey)
	assert.Equal(t, "legacy-endpoint", cfg.AI.Model)
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.5, *cfg.AI.Temperature, 1e-6)
	assert.Nil(t, cfg.AI.TopP)
	assert.Equal(t, 1, cfg.AI.HistoryLimit)
	assert.True(t, cfg.AI.Enabled())

	t.Setenv("ARK_MODEL", "ep-2026")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "ep-2026", cfg.AI.Model)
}

func TestNewChatModelRequiresCredentials(t *testing.T) {
	_, err := AIConfig{Model: "m"}.NewChatModel(context.Background())
	assert.ErrorIs(t, err, ErrAIDisabled)
}

func TestLoadEchoEndpointFlag(t *testing.T) {
	t.Setenv("ENABLE_ECHO_ENDPOINT", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Server.EchoEndpoint)

	t.Setenv("ENABLE_ECHO_ENDPOINT", "maybe")
	_, err = Load()
	assert.Error(t, err)
}
