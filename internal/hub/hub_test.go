package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaltrack/internal/model"
	"signaltrack/internal/pricecache"
	"signaltrack/pkg/exception"
)

func drain(sub *Subscriber) []model.PriceSample {
	out := make([]model.PriceSample, 0, sub.Len())
	for sub.Len() > 0 {
		s, ok := sub.Next()
		if !ok {
			break
		}
		out = append(out, s)
	}
	return out
}

func TestRegisterDeliversSnapshot(t *testing.T) {
	cache := pricecache.New()
	cache.Upsert("BTCUSDT", decimal.RequireFromString("50000"), time.Now())
	cache.Upsert("ETHUSDT", decimal.RequireFromString("3000"), time.Now())
	h := New(cache, nil)

	sub := NewSubscriber(8, OverflowDisconnect)
	h.Register(sub)

	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, model.Instrument("BTCUSDT"), got[0].Instrument)
	assert.Equal(t, model.Instrument("ETHUSDT"), got[1].Instrument)
	assert.Equal(t, 1, h.Len())
}

func TestRegisterSuppressesDuplicateOfSnapshot(t *testing.T) {
	cache := pricecache.New()
	h := New(cache, nil)

	sample := cache.Upsert("BTCUSDT", decimal.RequireFromString("50000"), time.Now())
	sub := NewSubscriber(8, OverflowDisconnect)
	h.Register(sub)
	// publish of the sample already delivered via snapshot
	h.Publish(sample)

	newer := cache.Upsert("BTCUSDT", decimal.RequireFromString("50010"), time.Now())
	h.Publish(newer)
	// stale replay must be ignored
	h.Publish(sample)

	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, sample.Seq, got[0].Seq)
	assert.Equal(t, newer.Seq, got[1].Seq)
}

func TestPublishRespectsFilter(t *testing.T) {
	cache := pricecache.New()
	h := New(cache, nil)

	btc := NewSubscriber(8, OverflowDisconnect, "BTCUSDT")
	all := NewSubscriber(8, OverflowDisconnect)
	h.Register(btc)
	h.Register(all)

	h.Publish(cache.Upsert("ETHUSDT", decimal.RequireFromString("3000"), time.Now()))
	h.Publish(cache.Upsert("BTCUSDT", decimal.RequireFromString("50000"), time.Now()))

	assert.Len(t, drain(btc), 1)
	assert.Len(t, drain(all), 2)
}

func TestSlowSubscriberIsDisconnected(t *testing.T) {
	cache := pricecache.New()
	h := New(cache, nil)

	slow := NewSubscriber(2, OverflowDisconnect)
	fast := NewSubscriber(16, OverflowDisconnect)
	h.Register(slow)
	h.Register(fast)

	for i := 0; i < 5; i++ {
		h.Publish(cache.Upsert("BTCUSDT", decimal.NewFromInt(int64(i)), time.Now()))
	}

	assert.Equal(t, 1, h.Len())
	_, ok := slow.Next()
	assert.False(t, ok, "disconnected subscriber must be closed")
	assert.ErrorIs(t, slow.Err(), exception.ErrSubscriberOverflow)
	assert.NoError(t, fast.Err())
	assert.Len(t, drain(fast), 5)
}

func TestDropOldestKeepsSubscriber(t *testing.T) {
	cache := pricecache.New()
	h := New(cache, nil)

	sub := NewSubscriber(2, OverflowDropOldest)
	h.Register(sub)
	for i := 0; i < 5; i++ {
		h.Publish(cache.Upsert("BTCUSDT", decimal.NewFromInt(int64(i)), time.Now()))
	}

	assert.Equal(t, 1, h.Len())
	got := drain(sub)
	require.Len(t, got, 2)
	assert.True(t, got[0].Price.Equal(decimal.NewFromInt(3)))
	assert.True(t, got[1].Price.Equal(decimal.NewFromInt(4)))
}

func TestUnregisterIdempotent(t *testing.T) {
	h := New(pricecache.New(), nil)
	sub := NewSubscriber(1, OverflowDisconnect)
	handle := h.Register(sub)

	h.Unregister(handle)
	h.Unregister(handle)
	assert.Equal(t, 0, h.Len())

	_, ok := sub.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, sub.Err(), exception.ErrSubscriberClosed)
}

func TestNoDeliveryAfterUnregisterUnderConcurrency(t *testing.T) {
	cache := pricecache.New()
	h := New(cache, nil)

	subs := make([]*Subscriber, 16)
	for i := range subs {
		subs[i] = NewSubscriber(4096, OverflowDisconnect)
		h.Register(subs[i])
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			h.Publish(cache.Upsert("BTCUSDT", decimal.NewFromInt(int64(i)), time.Now()))
		}
	}()

	for _, sub := range subs {
		wg.Add(1)
		go func(sub *Subscriber) {
			defer wg.Done()
			h.Unregister(sub.ID())
		}(sub)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		h.Publish(cache.Upsert("BTCUSDT", decimal.NewFromInt(int64(1000+i)), time.Now()))
	}
	for _, sub := range subs {
		if sub.Len() != 0 {
			t.Fatalf("subscriber %s received %d samples after unregister", sub.ID(), sub.Len())
		}
	}
	assert.Equal(t, 0, h.Len())
}

func TestBlockedNextWakesOnUnregister(t *testing.T) {
	h := New(pricecache.New(), nil)
	sub := NewSubscriber(1, OverflowDisconnect)
	h.Register(sub)

	done := make(chan bool)
	go func() {
		_, ok := sub.Next()
		done <- ok
	}()

	h.Unregister(sub.ID())
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("next did not return after unregister")
	}
}
