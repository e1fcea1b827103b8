package hub

import (
	"github.com/google/uuid"

	"signaltrack/internal/model"
)

// Handle identifies a registered subscriber.
type Handle = uuid.UUID

// Subscriber receives price samples through its own bounded queue.
type Subscriber struct {
	id      Handle
	queue   *sampleQueue
	filter  map[model.Instrument]struct{}
	lastSeq map[model.Instrument]uint64 // guarded by Hub.mu
}

// NewSubscriber creates a subscriber. With no instruments it receives every instrument.
func NewSubscriber(capacity int, policy OverflowPolicy, instruments ...model.Instrument) *Subscriber {
	s := &Subscriber{
		id:      uuid.New(),
		queue:   newSampleQueue(capacity, policy),
		lastSeq: make(map[model.Instrument]uint64),
	}
	if len(instruments) != 0 {
		s.filter = make(map[model.Instrument]struct{}, len(instruments))
		for _, ins := range instruments {
			s.filter[ins] = struct{}{}
		}
	}
	return s
}

func (s *Subscriber) ID() Handle {
	return s.id
}

// Next blocks until a sample is available. It returns false once the
// subscriber is unregistered or disconnected.
func (s *Subscriber) Next() (model.PriceSample, bool) {
	if s == nil {
		return model.PriceSample{}, false
	}
	return s.queue.pop()
}

// Err reports why the subscriber was closed: exception.ErrSubscriberOverflow
// when it fell behind, exception.ErrSubscriberClosed when it was unregistered.
// It is nil while the subscriber is registered.
func (s *Subscriber) Err() error {
	if s == nil {
		return nil
	}
	return s.queue.closeReason()
}

// Len returns the number of queued samples.
func (s *Subscriber) Len() int {
	if s == nil {
		return 0
	}
	return s.queue.len()
}

func (s *Subscriber) accepts(ins model.Instrument) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[ins]
	return ok
}
