package hub

import (
	"sync"

	"signaltrack/internal/model"
)

// OverflowPolicy defines queue behavior when a subscriber falls behind.
type OverflowPolicy uint8

const (
	// OverflowDisconnect removes the subscriber when its queue is full.
	OverflowDisconnect OverflowPolicy = iota
	// OverflowDropOldest discards the oldest queued sample to make room.
	OverflowDropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop_oldest"
	default:
		return "disconnect"
	}
}

// ParseOverflowPolicy maps a config value to a policy; unknown values disconnect.
func ParseOverflowPolicy(s string) OverflowPolicy {
	if s == "drop_oldest" {
		return OverflowDropOldest
	}
	return OverflowDisconnect
}

type pushResult uint8

const (
	pushOK pushResult = iota
	pushDroppedOldest
	pushFull
	pushClosed
)

// sampleQueue is a bounded ring buffer. Push never blocks.
type sampleQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	buf      []model.PriceSample
	head     int
	tail     int
	size     int
	closed   bool
	err      error
	policy   OverflowPolicy
}

func newSampleQueue(capacity int, policy OverflowPolicy) *sampleQueue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &sampleQueue{
		buf:    make([]model.PriceSample, capacity),
		policy: policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

func (q *sampleQueue) push(s model.PriceSample) pushResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return pushClosed
	}

	result := pushOK
	if q.size == len(q.buf) {
		if q.policy != OverflowDropOldest {
			return pushFull
		}
		q.buf[q.head] = model.PriceSample{}
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		result = pushDroppedOldest
	}

	q.buf[q.tail] = s
	q.tail = (q.tail + 1) % len(q.buf)
	q.size++
	q.notEmpty.Signal()
	return result
}

// pop blocks until a sample is available or the queue is closed.
func (q *sampleQueue) pop() (model.PriceSample, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return model.PriceSample{}, false
		}
		if q.size > 0 {
			s := q.buf[q.head]
			q.buf[q.head] = model.PriceSample{}
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			return s, true
		}
		q.notEmpty.Wait()
	}
}

// close discards pending samples and wakes blocked readers.
// Only the first reason is kept.
func (q *sampleQueue) close(reason error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.closed = true
	q.err = reason
	clear(q.buf)
	q.size = 0
	q.head = 0
	q.tail = 0
	q.notEmpty.Broadcast()
	return true
}

func (q *sampleQueue) closeReason() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *sampleQueue) len() int {
	q.mu.Lock()
	size := q.size
	q.mu.Unlock()
	return size
}
