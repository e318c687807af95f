package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/pkg/config"
)

func TestBuildLogger_ConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "probe.log")

	cfg := &config.Config{
		Logs: config.LogConfig{Level: "debug", Console: true, File: logFile},
	}

	logger := buildLogger(cfg)
	require.NotNil(t, logger)
	logger.Sugar().Infow("test message", "key", "value")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test message")
}

func TestBuildLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	cfg := &config.Config{Logs: config.LogConfig{Level: "not-a-level", Console: false}}
	logger := buildLogger(cfg)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(0)) // info level enabled
}
