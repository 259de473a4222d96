package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/metagen/internal/config"
	"github.com/harun/metagen/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvironment(t *testing.T, cfg config.Config) *environment {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	return &environment{cfg: cfg, log: log}
}

func TestStartToolServer(t *testing.T) {
	t.Run("serves health on the configured address", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Tools.ListenAddr = "127.0.0.1:0"
		cfg.Tools.DataDir = t.TempDir()

		server, err := startToolServer(testEnvironment(t, cfg))
		require.NoError(t, err)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			assert.NoError(t, server.Shutdown(ctx))
		}()

		resp, err := http.Get("http://" + server.Addr() + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		var health map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		assert.Equal(t, "ok", health["status"])
		assert.EqualValues(t, 2, health["tools"])
	})

	t.Run("fails when the data directory is missing", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Tools.ListenAddr = "127.0.0.1:0"
		cfg.Tools.DataDir = filepath.Join(t.TempDir(), "missing")

		_, err := startToolServer(testEnvironment(t, cfg))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "data directory")
	})

	t.Run("fails when the address is taken", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Tools.ListenAddr = "127.0.0.1:0"
		cfg.Tools.DataDir = t.TempDir()

		first, err := startToolServer(testEnvironment(t, cfg))
		require.NoError(t, err)
		defer first.Shutdown(context.Background())

		cfg.Tools.ListenAddr = first.Addr()
		_, err = startToolServer(testEnvironment(t, cfg))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to listen")
	})
}

func TestServeCommand_StartupFailure(t *testing.T) {
	t.Setenv("METAGEN_TOOLS_DATA_DIR", filepath.Join(t.TempDir(), "missing"))

	_, err := execute(t, "run-tools")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data directory")
}
