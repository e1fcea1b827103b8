package pricecache

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaltrack/internal/model"
)

func TestCacheLastWriteWins(t *testing.T) {
	c := New()
	now := time.Unix(1700000000, 0)

	_, ok := c.Get("BTCUSDT")
	require.False(t, ok)

	first := c.Upsert("BTCUSDT", decimal.RequireFromString("50000"), now)
	second := c.Upsert("BTCUSDT", decimal.RequireFromString("50001.5"), now.Add(time.Second))
	require.Greater(t, second.Seq, first.Seq)

	got, ok := c.Get("BTCUSDT")
	require.True(t, ok)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("50001.5")))
	assert.Equal(t, now.Add(time.Second), got.ObservedAt)
	assert.Equal(t, 1, c.Len())
}

func TestCacheSnapshotSorted(t *testing.T) {
	c := New()
	now := time.Now()
	c.Upsert("XRPUSDT", decimal.RequireFromString("0.5"), now)
	c.Upsert("BTCUSDT", decimal.RequireFromString("50000"), now)
	c.Upsert("ETHUSDT", decimal.RequireFromString("3000"), now)

	snap := c.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, model.Instrument("BTCUSDT"), snap[0].Instrument)
	assert.Equal(t, model.Instrument("ETHUSDT"), snap[1].Instrument)
	assert.Equal(t, model.Instrument("XRPUSDT"), snap[2].Instrument)
}

func TestCacheConcurrentReadersSeeConsistentSamples(t *testing.T) {
	c := New()
	base := time.Unix(1700000000, 0)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s, ok := c.Get("BTCUSDT")
				if !ok {
					continue
				}
				// price and timestamp are written together: price == seconds offset
				offset := s.ObservedAt.Sub(base) / time.Second
				if !s.Price.Equal(decimal.NewFromInt(int64(offset))) {
					t.Errorf("torn sample: price=%s observed_at=%s", s.Price, s.ObservedAt)
					return
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		c.Upsert("BTCUSDT", decimal.NewFromInt(int64(i)), base.Add(time.Duration(i)*time.Second))
	}
	close(stop)
	wg.Wait()
}
