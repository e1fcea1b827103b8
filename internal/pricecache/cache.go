package pricecache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"signaltrack/internal/model"
)

// Cache holds the latest price sample per instrument.
// Samples are immutable once stored, so readers never observe a torn value.
type Cache struct {
	samples sync.Map // model.Instrument -> *model.PriceSample
	seq     atomic.Uint64
	size    atomic.Int64
}

func New() *Cache {
	return &Cache{}
}

// Upsert overwrites the sample for instrument and returns the stored value.
func (c *Cache) Upsert(instrument model.Instrument, price decimal.Decimal, observedAt time.Time) model.PriceSample {
	sample := &model.PriceSample{
		Instrument: instrument,
		Price:      price,
		ObservedAt: observedAt,
		Seq:        c.seq.Add(1),
	}
	if _, loaded := c.samples.Swap(instrument, sample); !loaded {
		c.size.Add(1)
	}
	return *sample
}

// Get returns the most recent sample for instrument.
func (c *Cache) Get(instrument model.Instrument) (model.PriceSample, bool) {
	v, ok := c.samples.Load(instrument)
	if !ok {
		return model.PriceSample{}, false
	}
	return *v.(*model.PriceSample), true
}

// Snapshot returns every cached sample ordered by instrument.
func (c *Cache) Snapshot() []model.PriceSample {
	out := make([]model.PriceSample, 0, c.size.Load())
	c.samples.Range(func(_, v any) bool {
		out = append(out, *v.(*model.PriceSample))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].Instrument < out[j].Instrument
	})
	return out
}

func (c *Cache) Len() int {
	return int(c.size.Load())
}
