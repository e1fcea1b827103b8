package feed

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"signaltrack/internal/model"
	"signaltrack/pkg/exception"
	"signaltrack/pkg/websocket"
)

type priceBand struct {
	start, low, high float64
}

var simulatedBands = map[model.Instrument]priceBand{
	"BTCUSDT": {start: 52000, low: 49000, high: 55000},
	"ETHUSDT": {start: 3200, low: 2900, high: 3500},
	"XRPUSDT": {start: 0.55, low: 0.45, high: 0.65},
}

// SimulatedDialer serves an in-process random walk that speaks the Binance
// mark price protocol. Each subscribed instrument ticks once per interval.
type SimulatedDialer struct {
	Interval time.Duration

	mu     sync.Mutex
	prices map[model.Instrument]*walk
}

func NewSimulatedDialer(interval time.Duration) *SimulatedDialer {
	if interval <= 0 {
		interval = time.Second
	}
	return &SimulatedDialer{
		Interval: interval,
		prices:   make(map[model.Instrument]*walk),
	}
}

func (d *SimulatedDialer) Dial(ctx context.Context) (websocket.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &simulatedConn{
		dialer: d,
		ticker: time.NewTicker(d.Interval),
		done:   make(chan struct{}),
		out:    make(chan []byte, 64),
	}, nil
}

// walk keeps the trend state of one instrument across connections.
type walk struct {
	band      priceBand
	price     float64
	direction float64
	strength  float64
	steps     int
	maxSteps  int
}

func newWalk(ins model.Instrument) *walk {
	band, ok := simulatedBands[ins]
	if !ok {
		band = priceBand{start: 100, low: 80, high: 120}
	}
	w := &walk{band: band, price: band.start}
	w.turn()
	return w
}

func (w *walk) turn() {
	if w.direction == 0 {
		w.direction = 1
		if rand.IntN(2) == 0 {
			w.direction = -1
		}
	} else {
		w.direction = -w.direction
	}
	w.strength = 0.0001 + rand.Float64()*0.0009
	w.steps = 0
	w.maxSteps = 10 + rand.IntN(21)
}

func (w *walk) step() float64 {
	w.steps++
	if w.steps >= w.maxSteps {
		w.turn()
	}
	change := w.direction*w.strength + (rand.Float64()-0.5)*0.001
	w.price = max(min(w.price*(1+change), w.band.high), w.band.low)
	return w.price
}

func (d *SimulatedDialer) next(ins model.Instrument) decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.prices[ins]
	if !ok {
		w = newWalk(ins)
		d.prices[ins] = w
	}
	return decimal.NewFromFloat(w.step()).Round(8)
}

type simulatedConn struct {
	dialer *SimulatedDialer
	ticker *time.Ticker
	out    chan []byte

	mu        sync.Mutex
	streams   []model.Instrument
	closeOnce sync.Once
	done      chan struct{}
}

type simulatedRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     uint64   `json:"id"`
}

func (c *simulatedConn) Write(ctx context.Context, msgType websocket.MessageType, payload []byte) error {
	select {
	case <-c.done:
		return exception.ErrWebSocketConnectionClose
	default:
	}
	if msgType != websocket.MessageText {
		return nil
	}

	var req simulatedRequest
	if err := binanceJSON.Unmarshal(payload, &req); err != nil {
		return errors.Wrap(exception.ErrWebSocketProtocol, err.Error())
	}
	reply := map[string]any{"result": nil, "id": req.ID}
	if req.Method != "SUBSCRIBE" {
		reply = map[string]any{"error": map[string]any{"code": 2, "msg": "unknown method"}, "id": req.ID}
	} else {
		c.mu.Lock()
		for _, p := range req.Params {
			stream, _, _ := strings.Cut(p, "@")
			ins, err := model.NormalizeInstrument(stream)
			if err != nil {
				continue
			}
			c.streams = append(c.streams, ins)
		}
		c.mu.Unlock()
	}

	b, _ := binanceJSON.Marshal(reply)
	select {
	case c.out <- b:
	case <-c.done:
		return exception.ErrWebSocketConnectionClose
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *simulatedConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	for {
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-c.done:
			return 0, nil, exception.ErrWebSocketConnectionClose
		case b := <-c.out:
			return websocket.MessageText, b, nil
		case now := <-c.ticker.C:
			c.mu.Lock()
			streams := append([]model.Instrument(nil), c.streams...)
			c.mu.Unlock()
			for _, ins := range streams {
				b, _ := binanceJSON.Marshal(map[string]any{
					"e": binanceMarkPriceEvent,
					"E": now.UnixMilli(),
					"s": ins.String(),
					"p": c.dialer.next(ins).String(),
				})
				select {
				case c.out <- b:
				default:
				}
			}
		}
	}
}

func (c *simulatedConn) Close() error {
	c.closeOnce.Do(func() {
		c.ticker.Stop()
		close(c.done)
	})
	return nil
}
