package feed

import (
	"sort"
	"sync"

	"signaltrack/internal/model"
)

// subscriptions is the desired instrument set. It survives reconnects and
// is replayed in full on every new session.
type subscriptions struct {
	mu      sync.Mutex
	desired map[model.Instrument]struct{}
}

func newSubscriptions(initial ...model.Instrument) *subscriptions {
	s := &subscriptions{
		desired: make(map[model.Instrument]struct{}, len(initial)),
	}
	for _, ins := range initial {
		s.desired[ins] = struct{}{}
	}
	return s
}

// Add returns true if the instrument was newly added.
func (s *subscriptions) Add(ins model.Instrument) bool {
	s.mu.Lock()
	_, exists := s.desired[ins]
	if !exists {
		s.desired[ins] = struct{}{}
	}
	s.mu.Unlock()
	return !exists
}

// List returns the desired instruments in sorted order.
func (s *subscriptions) List() []model.Instrument {
	s.mu.Lock()
	out := make([]model.Instrument, 0, len(s.desired))
	for ins := range s.desired {
		out = append(out, ins)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *subscriptions) Count() int {
	s.mu.Lock()
	n := len(s.desired)
	s.mu.Unlock()
	return n
}
