package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"signaltrack/internal/model"
	"signaltrack/internal/obs"
	"signaltrack/pkg/exception"
	"signaltrack/pkg/websocket"
)

// maxStreamsPerRequest bounds the params of a single subscribe request.
const maxStreamsPerRequest = 100

// Cache stores the latest sample per instrument.
type Cache interface {
	Upsert(instrument model.Instrument, price decimal.Decimal, observedAt time.Time) model.PriceSample
}

// Publisher fans a sample out to live observers.
type Publisher interface {
	Publish(sample model.PriceSample)
}

// Config defines the feed runtime configuration.
type Config struct {
	Dialer      websocket.Dialer
	Codec       Codec
	Cache       Cache
	Publisher   Publisher
	Instruments []model.Instrument
	Backoff     websocket.BackoffPolicy
	Clock       Clock
	Metrics     *obs.Metrics
	// OnStateChange is called on the feed goroutine for every transition.
	OnStateChange func(from, to State)
}

// Feed keeps a streaming subscription to the upstream alive and writes
// every tick into the cache and publisher. Reconnects never give up.
type Feed struct {
	cfg      Config
	subs     *subscriptions
	state    atomic.Int32
	attempts atomic.Uint64
	reqID    atomic.Uint64

	// connMu orders resubscribe against AddInstrument so an instrument
	// added during a reconnect is never lost.
	connMu sync.Mutex
	conn   websocket.Conn
}

func New(cfg Config) (*Feed, error) {
	if cfg.Dialer == nil {
		return nil, exception.ErrWebSocketNilDialer
	}
	if cfg.Codec == nil {
		return nil, exception.ErrFeedNilCodec
	}
	if cfg.Cache == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "feed cache")
	}
	if cfg.Backoff == nil {
		cfg.Backoff = websocket.DefaultBackoff()
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	return &Feed{
		cfg:  cfg,
		subs: newSubscriptions(cfg.Instruments...),
	}, nil
}

// State returns the current connection state.
func (f *Feed) State() State {
	return State(f.state.Load())
}

// Attempts returns the total number of connect attempts.
func (f *Feed) Attempts() uint64 {
	return f.attempts.Load()
}

// Instruments returns the desired instrument set.
func (f *Feed) Instruments() []model.Instrument {
	return f.subs.List()
}

// AddInstrument adds ins to the desired set. While streaming it sends an
// incremental subscribe for ins only; otherwise the next session picks it up.
func (f *Feed) AddInstrument(ctx context.Context, ins model.Instrument) error {
	if ins == "" {
		return exception.ErrInvalidInstrument
	}

	f.connMu.Lock()
	defer f.connMu.Unlock()

	if !f.subs.Add(ins) {
		return nil
	}
	logs.Infof("feed: add instrument %s, state: %s", ins, f.State())
	if f.conn == nil || f.State() != StateStreaming {
		return nil
	}

	if err := f.subscribeLocked(ctx, f.conn, []model.Instrument{ins}); err != nil {
		// the session reads the closed conn, reconnects and replays the full set
		logs.Errorf("feed: incremental subscribe %s, err: %+v", ins, err)
		_ = f.conn.Close()
	}
	return nil
}

// Run drives the connection state machine until ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			f.setState(StateDisconnected)
			return ctx.Err()
		}

		f.setState(StateConnecting)
		f.attempts.Add(1)
		f.cfg.Metrics.IncConnectAttempt()

		conn, err := f.cfg.Dialer.Dial(ctx)
		if err != nil {
			f.setState(StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			logs.Warnf("feed: connect failed, attempt: %d, err: %+v", failures, errors.Wrap(exception.ErrFeedConnection, err.Error()))
			if !f.sleepBackoff(ctx, failures) {
				return ctx.Err()
			}
			continue
		}

		streamed, err := f.session(ctx, conn)
		f.setState(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if streamed {
			failures = 0
		}
		failures++
		logs.Warnf("feed: session ended, retry: %d, err: %+v", failures, err)
		if !f.sleepBackoff(ctx, failures) {
			return ctx.Err()
		}
	}
}

// session subscribes the full desired set and reads until the connection fails.
// streamed reports whether the session reached StateStreaming.
func (f *Feed) session(ctx context.Context, conn websocket.Conn) (streamed bool, err error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	f.connMu.Lock()
	f.setState(StateSubscribing)
	if err := f.subscribeLocked(ctx, conn, f.subs.List()); err != nil {
		f.connMu.Unlock()
		return false, errors.Wrap(exception.ErrFeedConnection, err.Error())
	}
	f.conn = conn
	f.setState(StateStreaming)
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		f.conn = nil
		f.connMu.Unlock()
	}()

	logs.Infof("feed: streaming %d instruments", f.subs.Count())
	for {
		msgType, payload, err := conn.Read(ctx)
		if err != nil {
			return true, errors.Wrap(exception.ErrFeedConnection, err.Error())
		}
		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}
		f.handle(payload)
	}
}

func (f *Feed) subscribeLocked(ctx context.Context, conn websocket.Conn, instruments []model.Instrument) error {
	for start := 0; start < len(instruments); start += maxStreamsPerRequest {
		end := min(start+maxStreamsPerRequest, len(instruments))
		payload, err := f.cfg.Codec.EncodeSubscribe(f.reqID.Add(1), instruments[start:end])
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return errors.Wrap(err, "write subscribe").With("instruments", instruments[start:end])
		}
	}
	return nil
}

func (f *Feed) handle(payload []byte) {
	msg, err := f.cfg.Codec.Decode(payload)
	if err != nil {
		f.cfg.Metrics.IncParseError()
		logs.Warnf("feed: drop message, err: %+v", err)
		return
	}

	switch msg.Kind {
	case KindTick:
		observedAt := msg.Tick.EventTime
		if observedAt.IsZero() {
			observedAt = f.cfg.Clock.Now()
		}
		sample := f.cfg.Cache.Upsert(msg.Tick.Instrument, msg.Tick.Price, observedAt)
		if f.cfg.Publisher != nil {
			f.cfg.Publisher.Publish(sample)
		}
		f.cfg.Metrics.IncTick(msg.Tick.Instrument.String())
	case KindAck:
		logs.Debugf("feed: subscribe acknowledged, id: %d", msg.RequestID)
	case KindError:
		logs.Errorf("feed: %+v", errors.Wrap(exception.ErrFeedUpstream, msg.ErrorMsg).With("id", msg.RequestID).With("code", msg.ErrorCode))
	}
}

func (f *Feed) setState(to State) {
	from := State(f.state.Swap(int32(to)))
	if from == to {
		return
	}
	f.cfg.Metrics.SetFeedState(int(to))
	if f.cfg.OnStateChange != nil {
		f.cfg.OnStateChange(from, to)
	}
}

func (f *Feed) sleepBackoff(ctx context.Context, attempt int) bool {
	wait := f.cfg.Backoff.Next(attempt)
	if wait <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-f.cfg.Clock.After(wait):
		return true
	}
}
