package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"signaltrack/internal/model"
	"signaltrack/internal/model/enum"
	"signaltrack/internal/obs"
	"signaltrack/pkg/exception"
)

// PriceSource returns the latest known price of an instrument.
type PriceSource interface {
	Get(instrument model.Instrument) (model.PriceSample, bool)
}

// InstrumentSubscriber asks the price feed to track an instrument.
type InstrumentSubscriber interface {
	AddInstrument(ctx context.Context, instrument model.Instrument) error
}

// Config defines the manager dependencies. Feed, Tracer, Metrics and Now are optional.
type Config struct {
	Store   Store
	Prices  PriceSource
	Feed    InstrumentSubscriber
	Tracer  trace.Tracer
	Metrics *obs.Metrics
	Now     func() time.Time
}

// Manager processes open and close events. It is the only writer of trade signals.
type Manager struct {
	store   Store
	prices  PriceSource
	feed    InstrumentSubscriber
	tracer  trace.Tracer
	metrics *obs.Metrics
	now     func() time.Time
	locks   *keyedMutex
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: signal store", exception.ErrNilInstance)
	}
	if cfg.Prices == nil {
		return nil, fmt.Errorf("%w: price source", exception.ErrNilInstance)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("signal")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:   cfg.Store,
		prices:  cfg.Prices,
		feed:    cfg.Feed,
		tracer:  cfg.Tracer,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		locks:   newKeyedMutex(),
	}, nil
}

// ProcessEvent dispatches ev to Open or Close.
func (m *Manager) ProcessEvent(ctx context.Context, ev Event) (Result, error) {
	switch e := ev.(type) {
	case OpenEvent:
		return m.Open(ctx, e)
	case *OpenEvent:
		return m.Open(ctx, *e)
	case CloseEvent:
		return m.Close(ctx, e)
	case *CloseEvent:
		return m.Close(ctx, *e)
	default:
		return Result{}, fmt.Errorf("%w: unsupported event %T", exception.ErrInvalidEvent, ev)
	}
}

// Open records a new position priced at the latest cached sample.
func (m *Manager) Open(ctx context.Context, ev OpenEvent) (res Result, err error) {
	ctx, span := m.tracer.Start(ctx, "signal.open", trace.WithAttributes(
		attribute.String("trade_id", ev.TradeID),
		attribute.String("title", ev.Title),
	))
	start := time.Now()
	defer func() { m.finish(span, "open", start, res, err) }()

	ins, side, err := validateOpen(ev)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.String("instrument", ins.String()))

	if m.feed != nil {
		if err := m.feed.AddInstrument(ctx, ins); err != nil {
			logs.Warnf("signal: add instrument %s to feed, err: %+v", ins, err)
		}
	}

	unlock := m.locks.Lock(ev.TradeID)
	defer unlock()

	existing, ok, err := m.store.LoadOpenByTradeID(ctx, ev.TradeID)
	if err != nil {
		return Result{}, persistenceError(err, "load open", ev.TradeID)
	}
	if ok {
		logs.Infof("signal: trade %s already open, id: %d", ev.TradeID, existing.ID)
		return Result{Outcome: OutcomeAlreadyOpen, Signal: &existing}, nil
	}

	sample, ok := m.prices.Get(ins)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", exception.ErrPriceUnavailable, ins)
	}

	rec := &model.TradeSignal{
		TradeID:         ev.TradeID,
		Title:           ev.Title,
		Instrument:      ins,
		Side:            side,
		Leverage:        ev.Leverage,
		StopLossPrice:   ev.StopLossPrice,
		TakeProfitPrice: ev.TakeProfitPrice,
		OpenPrice:       sample.Price,
		OpenedAt:        m.now(),
		State:           enum.StateOpen,
	}
	if err := m.store.Save(ctx, rec); err != nil {
		if errors.Is(err, exception.ErrDuplicateOpen) {
			// another process opened it between load and save
			existing, ok, lerr := m.store.LoadOpenByTradeID(ctx, ev.TradeID)
			if lerr == nil && ok {
				return Result{Outcome: OutcomeAlreadyOpen, Signal: &existing}, nil
			}
		}
		return Result{}, persistenceError(err, "save open", ev.TradeID)
	}

	logs.Infof("signal: opened %s %s %s at %s, trade: %s", rec.Title, rec.Instrument, rec.Side, rec.OpenPrice, rec.TradeID)
	return Result{Outcome: OutcomeOpened, Signal: rec}, nil
}

// Close settles the open position for ev.TradeID at the latest cached price
// and extends its strategy's streak. A close without an open record is not an error.
func (m *Manager) Close(ctx context.Context, ev CloseEvent) (res Result, err error) {
	ctx, span := m.tracer.Start(ctx, "signal.close", trace.WithAttributes(
		attribute.String("trade_id", ev.TradeID),
	))
	start := time.Now()
	defer func() { m.finish(span, "close", start, res, err) }()

	if strings.TrimSpace(ev.TradeID) == "" {
		return Result{}, fmt.Errorf("%w: empty trade id", exception.ErrInvalidEvent)
	}

	unlock := m.locks.Lock(ev.TradeID)
	defer unlock()

	rec, ok, err := m.store.LoadOpenByTradeID(ctx, ev.TradeID)
	if err != nil {
		return Result{}, persistenceError(err, "load open", ev.TradeID)
	}
	if !ok {
		return Result{Outcome: OutcomeNoMatchingPosition}, nil
	}

	sample, ok := m.prices.Get(rec.Instrument)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", exception.ErrPriceUnavailable, rec.Instrument)
	}

	prior, found, err := m.store.LoadLastClosed(ctx, rec.Title, rec.ID)
	if err != nil {
		return Result{}, persistenceError(err, "load last closed", ev.TradeID)
	}
	var priorStreak *Streak
	if found {
		priorStreak = &Streak{Win: prior.WinStreak, Lose: prior.LoseStreak}
	}

	closed := settle(rec, sample.Price, m.now(), priorStreak)
	if err := m.store.Save(ctx, &closed); err != nil {
		if errors.Is(err, exception.ErrSignalNotOpen) {
			return Result{Outcome: OutcomeNoMatchingPosition}, nil
		}
		return Result{}, persistenceError(err, "save close", ev.TradeID)
	}

	logs.Infof("signal: closed %s %s at %s, profit: %.4f%%, streak: %d/%d, trade: %s",
		closed.Title, closed.Instrument, sample.Price, *closed.ProfitPercentage, closed.WinStreak, closed.LoseStreak, closed.TradeID)
	return Result{Outcome: OutcomeClosed, Signal: &closed}, nil
}

// Signals returns the latest record per trade id.
func (m *Manager) Signals(ctx context.Context) ([]model.TradeSignal, error) {
	out, err := m.store.ListLatest(ctx)
	if err != nil {
		return nil, persistenceError(err, "list latest", "")
	}
	return out, nil
}

// History returns the closed records of a strategy.
func (m *Manager) History(ctx context.Context, title string) ([]model.TradeSignal, error) {
	out, err := m.store.History(ctx, title)
	if err != nil {
		return nil, persistenceError(err, "history", "")
	}
	return out, nil
}

// Stats summarizes records closed in [start, end).
func (m *Manager) Stats(ctx context.Context, start, end time.Time) ([]StrategyStats, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: stats end must be after start", exception.ErrInvalidArgument)
	}
	records, err := m.store.ClosedBetween(ctx, start, end)
	if err != nil {
		return nil, persistenceError(err, "closed between", "")
	}
	return Summarize(records), nil
}

// settle returns a closed copy of rec.
func settle(rec model.TradeSignal, closePrice decimal.Decimal, closedAt time.Time, prior *Streak) model.TradeSignal {
	pct, _ := profitPercentage(rec.Side, rec.OpenPrice, closePrice).Float64()
	isProfit := pct > 0
	streak := ComputeStreak(prior, isProfit)

	rec.ClosePrice = decimal.NewNullDecimal(closePrice)
	rec.ClosedAt = &closedAt
	rec.ProfitPercentage = &pct
	rec.IsProfit = &isProfit
	rec.WinStreak = streak.Win
	rec.LoseStreak = streak.Lose
	rec.State = enum.StateClosed
	return rec
}

func validateOpen(ev OpenEvent) (model.Instrument, enum.Side, error) {
	if strings.TrimSpace(ev.TradeID) == "" {
		return "", 0, fmt.Errorf("%w: empty trade id", exception.ErrInvalidEvent)
	}
	if strings.TrimSpace(ev.Title) == "" {
		return "", 0, fmt.Errorf("%w: empty title, trade: %s", exception.ErrInvalidEvent, ev.TradeID)
	}
	if ev.Leverage < 0 {
		return "", 0, fmt.Errorf("%w: negative leverage %d, trade: %s", exception.ErrInvalidEvent, ev.Leverage, ev.TradeID)
	}
	ins, err := model.NormalizeInstrument(ev.Instrument)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w %q", exception.ErrInvalidEvent, err, ev.Instrument)
	}
	side, ok := enum.ParseSide(ev.Side)
	if !ok {
		return "", 0, fmt.Errorf("%w: %w %q", exception.ErrInvalidEvent, exception.ErrInvalidSide, ev.Side)
	}
	return ins, side, nil
}

func persistenceError(err error, op, tradeID string) error {
	logs.Errorf("signal: %s, trade: %s, err: %+v", op, tradeID, err)
	return fmt.Errorf("%w: %s: %w", exception.ErrPersistence, op, err)
}

func (m *Manager) finish(span trace.Span, kind string, start time.Time, res Result, err error) {
	outcome := res.Outcome.String()
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("outcome", outcome))
	}
	span.End()
	m.metrics.ObserveSignal(kind, outcome, time.Since(start))
}
