package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaltrack/internal/feed"
	"signaltrack/internal/model/enum"
	"signaltrack/internal/ops"
	"signaltrack/internal/repository"
	"signaltrack/internal/signal"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, release, err := openStore(ctx, ops.DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &signal.MemoryStore{}, store)
	release()

	store, release, err = openStore(ctx, ops.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer release()
	assert.IsType(t, &repository.SignalRepository{}, store)

	out, err := store.ListLatest(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, _, err = openStore(ctx, ops.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestNewDialer(t *testing.T) {
	loaded := ops.Loaded{FileConfig: ops.Default(), Platform: enum.PlatformSimulated}
	d, err := newDialer(loaded)
	require.NoError(t, err)
	assert.IsType(t, &feed.SimulatedDialer{}, d)

	loaded.Platform = enum.PlatformBinance
	_, err = newDialer(loaded)
	require.NoError(t, err)

	loaded.Feed.URL = "http://example.com"
	_, err = newDialer(loaded)
	assert.Error(t, err)
}
