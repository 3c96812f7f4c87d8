package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"cohere-bridge/internal/config"
)

func TestExecuteUnknownCommand(t *testing.T) {
	err := Execute(context.Background(), []string{"launch"})
	assert.ErrorContains(t, err, `unknown command "launch"`)
}

func TestExecuteHelp(t *testing.T) {
	assert.NoError(t, Execute(context.Background(), nil))
	assert.NoError(t, Execute(context.Background(), []string{"--help"}))
}

func TestServeRejectsBadInput(t *testing.T) {
	err := Execute(context.Background(), []string{"serve", "--port", "70000", "--env-file", ""})
	assert.ErrorContains(t, err, "port override")

	err = Execute(context.Background(), []string{"serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--env-file", ""})
	assert.ErrorContains(t, err, "read config file")

	err = Execute(context.Background(), []string{"serve", "--bogus"})
	assert.ErrorContains(t, err, "parse serve flags")
}

func TestNewLoggerLevel(t *testing.T) {
	ctx := context.Background()

	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"})
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))

	logger = newLogger(config.LogConfig{Level: "debug"})
	assert.True(t, logger.Enabled(ctx, slog.LevelDebug))
}
