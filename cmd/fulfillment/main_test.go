package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/bol-fulfillment/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		RunAddress:    "127.0.0.1:0",
		DataDir:       t.TempDir(),
		FlushInterval: time.Minute,
	}
}

func TestRun_LoadErrorIsReturned(t *testing.T) {
	cfg := testConfig(t)
	corrupt := []byte("{not json")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, "picking.json"), corrupt, 0o644))

	core, logs := observer.New(zap.InfoLevel)

	err := run(context.Background(), cfg, zap.New(core))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "load picking list")
	assert.Zero(t, logs.FilterMessage("starting fulfillment server").Len())

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, "picking.json"))
	require.NoError(t, err)
	assert.Equal(t, corrupt, data, "failed start must not overwrite the picking list")
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	core, logs := observer.New(zap.InfoLevel)

	require.NoError(t, run(ctx, cfg, zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("server stopped gracefully").Len())

	_, err := os.Stat(filepath.Join(cfg.DataDir, "labels"))
	assert.NoError(t, err)
}
