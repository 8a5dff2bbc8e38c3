package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 10, cfg.Retry.MaxConsecutiveErrors)
	assert.EqualValues(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreaker.RecoveryTimeout)
	assert.Equal(t, 100, cfg.Metrics.ResponseTimeWindow)
	assert.Equal(t, 100, cfg.Log.BufferCapacity)
	assert.Equal(t, 20, cfg.Log.ReplayCount)
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyPath_ReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_PartialYAML_OverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	contents := "retry:\n  max_retries: 7\nlog:\n  buffer_capacity: 50\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 50, cfg.Log.BufferCapacity)
	// everything else left untouched by the partial document falls back to defaults
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 20, cfg.Log.ReplayCount)
}

func TestLoad_MalformedYAML_ReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry: [this is not a mapping"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
