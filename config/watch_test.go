package config

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadOnWrite(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	var got atomic.Value
	w, err := NewWatcher(path, WatcherConfig{}, nil, func(cfg AppConfig) { got.Store(cfg) })
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	updated := strings.Replace(sampleConfig, "tradeUnit: 2", "tradeUnit: 7", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		cfg, ok := got.Load().(AppConfig)
		return ok && cfg.Spreads["SPC"].TradeUnit == 7
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherKeepsConfigOnInvalidFile(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	calls := 0
	w, err := NewWatcher(path, WatcherConfig{}, nil, func(AppConfig) { calls++ })
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("env: dev\nspreads: {}\n"), 0o644))
	assert.False(t, w.Reload())
	assert.Zero(t, calls)
	reloads, failures := w.Stats()
	assert.Equal(t, 0, reloads)
	assert.Equal(t, 1, failures)
}

func TestWatcherCooldown(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	calls := 0
	w, err := NewWatcher(path, WatcherConfig{Cooldown: time.Minute}, nil, func(AppConfig) { calls++ })
	require.NoError(t, err)
	defer w.Stop()
	now := time.Unix(1_700_000_000, 0)
	w.now = func() time.Time { return now }

	assert.True(t, w.Reload())
	assert.False(t, w.Reload(), "within cooldown")
	now = now.Add(2 * time.Minute)
	assert.True(t, w.Reload())
	assert.Equal(t, 2, calls)
}

func TestWatcherStopIdempotent(t *testing.T) {
	w, err := NewWatcher(writeTempConfig(t, sampleConfig), WatcherConfig{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
