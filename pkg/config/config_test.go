package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsHaveNoSecretsAndSaneValues(t *testing.T) {
	cfg := Defaults()
	require.Empty(t, cfg.Embedding.APIKey)
	require.Empty(t, cfg.Chat.APIKey)
	require.Empty(t, cfg.SMTP.Password)
	require.NotZero(t, cfg.KDF.MemoryKiB)
	require.NotZero(t, cfg.Scheduler.TickInterval)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoadAppliesYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemos.yaml")
	yaml := "server:\n  listen_addr: 0.0.0.0:9000\nheartbeat:\n  checkin_interval_days: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Server.ListenAddr)
	require.Equal(t, 3, cfg.Heartbeat.CheckinIntervalDays)
	require.Equal(t, Defaults().Embedding.Model, cfg.Embedding.Model)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemos.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_addr: 0.0.0.0:9000\n"), 0o600))

	t.Setenv("MNEMOS_LISTEN_ADDR", "127.0.0.1:1234")
	t.Setenv("MNEMOS_SCHEDULER_TICK_INTERVAL", "5s")
	t.Setenv("MNEMOS_LOG_JSON", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:1234", cfg.Server.ListenAddr)
	require.Equal(t, 5*time.Second, cfg.Scheduler.TickInterval)
	require.True(t, cfg.Logging.JSON)
}
