package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"signaltrack/internal/model"
	"signaltrack/internal/signal"
	"signaltrack/pkg/exception"
)

const maxSignalBody = 64 << 10

// signalRequest is the inbound webhook payload. Numeric fields arrive as strings.
type signalRequest struct {
	IsClose    string `json:"is_close"`
	TradeID    string `json:"trade_id"`
	Title      string `json:"title"`
	Currency   string `json:"currency"`
	Currentcy  string `json:"currentcy"`
	Side       string `json:"side"`
	Lever      string `json:"lever"`
	StopLoss   string `json:"zs_tp_trigger_px"`
	TakeProfit string `json:"zy_tp_trigger_px"`
}

type signalResponse struct {
	Status signal.Outcome     `json:"status"`
	Signal *model.TradeSignal `json:"signal,omitempty"`
}

type statisticsResponse struct {
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Strategies []signal.StrategyStats `json:"strategies"`
}

func (r signalRequest) closing() bool {
	switch strings.ToLower(strings.TrimSpace(r.IsClose)) {
	case "1", "true":
		return true
	default:
		return false
	}
}

// event converts the payload into an OpenEvent or CloseEvent.
func (r signalRequest) event() (signal.Event, error) {
	if r.closing() {
		return signal.CloseEvent{TradeID: strings.TrimSpace(r.TradeID)}, nil
	}

	instrument := r.Currency
	if instrument == "" {
		instrument = r.Currentcy
	}

	lever, err := parseLever(r.Lever)
	if err != nil {
		return nil, err
	}
	stopLoss, err := parsePrice("zs_tp_trigger_px", r.StopLoss)
	if err != nil {
		return nil, err
	}
	takeProfit, err := parsePrice("zy_tp_trigger_px", r.TakeProfit)
	if err != nil {
		return nil, err
	}

	return signal.OpenEvent{
		TradeID:         strings.TrimSpace(r.TradeID),
		Title:           strings.TrimSpace(r.Title),
		Instrument:      instrument,
		Side:            r.Side,
		Leverage:        lever,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
	}, nil
}

// parseLever accepts integral leverage, also written as a float ("10.0").
func parseLever(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: lever %q", exception.ErrInvalidEvent, s)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: lever %q is not integral", exception.ErrInvalidEvent, s)
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: lever %q out of range", exception.ErrInvalidEvent, s)
	}
	return int(f), nil
}

func parsePrice(field, s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s %q", exception.ErrInvalidEvent, field, s)
	}
	return decimal.NewNullDecimal(d), nil
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignalBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: decode body: %s", exception.ErrInvalidEvent, err.Error()))
		return
	}

	ev, err := req.event()
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}

	res, err := s.cfg.Signals.ProcessEvent(r.Context(), ev)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			logs.Errorf("api: process %s event, trade: %s, err: %+v", ev.Kind(), ev.TradeKey(), err)
		}
		writeError(w, status, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == signal.OutcomeOpened {
		status = http.StatusCreated
	}
	writeJSON(w, status, signalResponse{Status: res.Outcome, Signal: res.Signal})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	out, err := s.cfg.Signals.Signals(r.Context())
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	if out == nil {
		out = []model.TradeSignal{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.PathValue("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: empty title", exception.ErrInvalidArgument))
		return
	}
	out, err := s.cfg.Signals.History(r.Context(), title)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	if out == nil {
		out = []model.TradeSignal{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStatistics defaults to the last 24 hours when no window is given.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	q := r.URL.Query()
	if v := q.Get("start_time"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		start = t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		end = t
	}

	stats, err := s.cfg.Signals.Stats(r.Context(), start, end)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	if stats == nil {
		stats = []signal.StrategyStats{}
	}
	writeJSON(w, http.StatusOK, statisticsResponse{StartTime: start, EndTime: end, Strategies: stats})
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseTime reads RFC 3339 or a zone-less timestamp taken as UTC.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: time %q", exception.ErrInvalidArgument, s)
}
