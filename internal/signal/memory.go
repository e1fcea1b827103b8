package signal

import (
	"context"
	"sort"
	"sync"
	"time"

	"signaltrack/internal/model"
	"signaltrack/pkg/exception"
)

// MemoryStore keeps signals in process. Records are copied in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  uint64
	records map[uint64]model.TradeSignal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uint64]model.TradeSignal)}
}

func (m *MemoryStore) LoadOpenByTradeID(_ context.Context, tradeID string) (model.TradeSignal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.TradeID == tradeID && r.IsOpen() {
			return cloneSignal(r), true, nil
		}
	}
	return model.TradeSignal{}, false, nil
}

func (m *MemoryStore) LoadLastClosed(_ context.Context, title string, excludingID uint64) (model.TradeSignal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		last  model.TradeSignal
		found bool
	)
	for _, r := range m.records {
		if r.Title != title || r.ID == excludingID || !r.IsClosed() || r.ClosedAt == nil {
			continue
		}
		if !found || closedAfter(r, last) {
			last, found = r, true
		}
	}
	if !found {
		return model.TradeSignal{}, false, nil
	}
	return cloneSignal(last), true, nil
}

func (m *MemoryStore) Save(_ context.Context, s *model.TradeSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == 0 {
		if s.IsOpen() {
			for _, r := range m.records {
				if r.TradeID == s.TradeID && r.IsOpen() {
					return exception.ErrDuplicateOpen
				}
			}
		}
		m.nextID++
		s.ID = m.nextID
		m.records[s.ID] = cloneSignal(*s)
		return nil
	}

	stored, ok := m.records[s.ID]
	if !ok || !stored.IsOpen() {
		return exception.ErrSignalNotOpen
	}
	m.records[s.ID] = cloneSignal(*s)
	return nil
}

func (m *MemoryStore) ListLatest(_ context.Context) ([]model.TradeSignal, error) {
	m.mu.RLock()
	latest := make(map[string]model.TradeSignal)
	for _, r := range m.records {
		if cur, ok := latest[r.TradeID]; !ok || r.ID > cur.ID {
			latest[r.TradeID] = r
		}
	}
	m.mu.RUnlock()

	out := make([]model.TradeSignal, 0, len(latest))
	for _, r := range latest {
		out = append(out, cloneSignal(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.After(out[j].OpenedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) History(_ context.Context, title string) ([]model.TradeSignal, error) {
	return m.closed(func(r model.TradeSignal) bool { return r.Title == title }), nil
}

func (m *MemoryStore) ClosedBetween(_ context.Context, start, end time.Time) ([]model.TradeSignal, error) {
	return m.closed(func(r model.TradeSignal) bool {
		return !r.ClosedAt.Before(start) && r.ClosedAt.Before(end)
	}), nil
}

func (m *MemoryStore) closed(match func(model.TradeSignal) bool) []model.TradeSignal {
	m.mu.RLock()
	out := make([]model.TradeSignal, 0)
	for _, r := range m.records {
		if r.IsClosed() && r.ClosedAt != nil && match(r) {
			out = append(out, cloneSignal(r))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return closedAfter(out[i], out[j]) })
	return out
}

// closedAfter orders by closed_at desc, then id desc.
func closedAfter(a, b model.TradeSignal) bool {
	if !a.ClosedAt.Equal(*b.ClosedAt) {
		return a.ClosedAt.After(*b.ClosedAt)
	}
	return a.ID > b.ID
}

func cloneSignal(s model.TradeSignal) model.TradeSignal {
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		s.ClosedAt = &t
	}
	if s.ProfitPercentage != nil {
		v := *s.ProfitPercentage
		s.ProfitPercentage = &v
	}
	if s.IsProfit != nil {
		v := *s.IsProfit
		s.IsProfit = &v
	}
	return s
}
