package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaltrack/internal/feed"
	"signaltrack/internal/hub"
	"signaltrack/internal/model"
	"signaltrack/internal/obs"
	"signaltrack/internal/pricecache"
	"signaltrack/internal/signal"
	"signaltrack/pkg/exception"
)

type stubFeed struct {
	mu    sync.Mutex
	added []model.Instrument
}

func (f *stubFeed) State() feed.State { return feed.StateStreaming }
func (f *stubFeed) Attempts() uint64  { return 3 }

func (f *stubFeed) Instruments() []model.Instrument {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Instrument(nil), f.added...)
}

func (f *stubFeed) AddInstrument(_ context.Context, ins model.Instrument) error {
	f.mu.Lock()
	f.added = append(f.added, ins)
	f.mu.Unlock()
	return nil
}

type fixture struct {
	srv   *Server
	cache *pricecache.Cache
	hub   *hub.Hub
	feed  *stubFeed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{cache: pricecache.New(), feed: &stubFeed{}}
	metrics := obs.NewMetrics()
	f.hub = hub.New(f.cache, metrics)
	t.Cleanup(f.hub.Close)

	m, err := signal.NewManager(signal.Config{
		Store:   signal.NewMemoryStore(),
		Prices:  f.cache,
		Feed:    f.feed,
		Metrics: metrics,
	})
	require.NoError(t, err)

	f.srv = NewServer(Config{
		Signals:      m,
		Prices:       f.cache,
		Feed:         f.feed,
		Hub:          f.hub,
		Metrics:      metrics,
		BufferSize:   16,
		PingInterval: time.Second,
	})
	return f
}

func (f *fixture) price(ins model.Instrument, p string) model.PriceSample {
	return f.cache.Upsert(ins, decimal.RequireFromString(p), time.Now())
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

type signalBody struct {
	Status string             `json:"status"`
	Signal *model.TradeSignal `json:"signal"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSignalOpenAndClose(t *testing.T) {
	f := newFixture(t)
	f.price("BTCUSDT", "50000")

	rec := f.do(t, http.MethodPost, "/api/signal",
		`{"is_close":"0","trade_id":"t1","title":"alpha","currency":"BTC","side":"long","lever":"10","zs_tp_trigger_px":"48000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decode[signalBody](t, rec)
	assert.Equal(t, "opened", opened.Status)
	require.NotNil(t, opened.Signal)
	assert.Equal(t, 10, opened.Signal.Leverage)
	assert.True(t, opened.Signal.StopLossPrice.Valid)
	assert.False(t, opened.Signal.TakeProfitPrice.Valid)

	f.price("BTCUSDT", "51000")
	rec = f.do(t, http.MethodPost, "/api/signal", `{"is_close":"1","trade_id":"t1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decode[signalBody](t, rec)
	assert.Equal(t, "closed", closed.Status)
	require.NotNil(t, closed.Signal.ProfitPercentage)
	assert.InDelta(t, 2.0, *closed.Signal.ProfitPercentage, 1e-9)
	assert.Equal(t, 1, closed.Signal.WinStreak)

	rec = f.do(t, http.MethodPost, "/api/signal", `{"is_close":"1","trade_id":"t1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no_matching_position", decode[signalBody](t, rec).Status)
}

func TestSignalCurrencyAlias(t *testing.T) {
	f := newFixture(t)
	f.price("ETHUSDT", "3000")

	rec := f.do(t, http.MethodPost, "/api/signal",
		`{"is_close":"0","trade_id":"t2","title":"beta","currentcy":"eth","side":"short","lever":"5.0"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[signalBody](t, rec)
	assert.Equal(t, model.Instrument("ETHUSDT"), body.Signal.Instrument)
	assert.Equal(t, 5, body.Signal.Leverage)

	rec = f.do(t, http.MethodPost, "/api/signal",
		`{"is_close":"0","trade_id":"t2","title":"beta","currentcy":"eth","side":"short"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_open", decode[signalBody](t, rec).Status)
}

func TestSignalErrors(t *testing.T) {
	f := newFixture(t)
	f.price("BTCUSDT", "50000")

	testCases := []struct {
		desc   string
		body   string
		status int
	}{
		{desc: "malformed json", body: `{"trade_id":`, status: http.StatusBadRequest},
		{desc: "invalid side", body: `{"trade_id":"a","title":"x","currency":"BTC","side":"up"}`, status: http.StatusBadRequest},
		{desc: "invalid lever", body: `{"trade_id":"a","title":"x","currency":"BTC","side":"long","lever":"ten"}`, status: http.StatusBadRequest},
		{desc: "invalid stop loss", body: `{"trade_id":"a","title":"x","currency":"BTC","side":"long","zs_tp_trigger_px":"abc"}`, status: http.StatusBadRequest},
		{desc: "missing title", body: `{"trade_id":"a","currency":"BTC","side":"long"}`, status: http.StatusBadRequest},
		{desc: "missing instrument", body: `{"trade_id":"a","title":"x","side":"long"}`, status: http.StatusBadRequest},
		{desc: "price unavailable", body: `{"trade_id":"a","title":"x","currency":"DOGE","side":"long"}`, status: http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/signal", tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestSignalQueries(t *testing.T) {
	f := newFixture(t)
	f.price("BTCUSDT", "100")

	f.do(t, http.MethodPost, "/api/signal", `{"trade_id":"a","title":"alpha","currency":"BTC","side":"long"}`)
	f.do(t, http.MethodPost, "/api/signal", `{"trade_id":"b","title":"alpha","currency":"BTC","side":"short"}`)
	f.price("BTCUSDT", "110")
	f.do(t, http.MethodPost, "/api/signal", `{"is_close":"1","trade_id":"a"}`)

	rec := f.do(t, http.MethodGet, "/api/signals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.TradeSignal](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/api/signals/alpha/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]model.TradeSignal](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "a", history[0].TradeID)

	rec = f.do(t, http.MethodGet, "/api/signals/unknown/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	start := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(time.Hour).UTC().Format("2006-01-02T15:04:05")
	rec = f.do(t, http.MethodGet, "/api/signals/statistics?start_time="+start+"&end_time="+end, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decode[statisticsResponse](t, rec)
	require.Len(t, stats.Strategies, 1)
	assert.Equal(t, "alpha", stats.Strategies[0].Title)
	assert.Equal(t, 1, stats.Strategies[0].WinCount)
	assert.InDelta(t, 10.0, stats.Strategies[0].TotalProfit, 1e-9)

	rec = f.do(t, http.MethodGet, "/api/signals/statistics?start_time=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/signals/statistics?start_time="+end+"&end_time="+start, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPricesAndFeed(t *testing.T) {
	f := newFixture(t)
	f.price("ETHUSDT", "3000")
	f.price("BTCUSDT", "50000")

	rec := f.do(t, http.MethodGet, "/api/prices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	prices := decode[[]model.PriceSample](t, rec)
	require.Len(t, prices, 2)
	assert.Equal(t, model.Instrument("BTCUSDT"), prices[0].Instrument)

	rec = f.do(t, http.MethodGet, "/api/prices/eth", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.PriceSample](t, rec).Price.Equal(decimal.NewFromInt(3000)))

	rec = f.do(t, http.MethodGet, "/api/prices/xrp", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/feed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"streaming"`)
	assert.Contains(t, rec.Body.String(), `"attempts":3`)
}

func TestRequestIDAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestWebSocketStream(t *testing.T) {
	f := newFixture(t)
	f.price("BTCUSDT", "50000")
	f.price("ETHUSDT", "3000")

	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/btc"
	client, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	read := func() model.PriceSample {
		t.Helper()
		require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, payload, err := client.ReadMessage()
		require.NoError(t, err)
		var sample model.PriceSample
		require.NoError(t, json.Unmarshal(payload, &sample))
		return sample
	}

	snapshot := read()
	assert.Equal(t, model.Instrument("BTCUSDT"), snapshot.Instrument)
	assert.True(t, snapshot.Price.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, []model.Instrument{"BTCUSDT"}, f.feed.Instruments())

	f.hub.Publish(f.price("ETHUSDT", "3100"))
	f.hub.Publish(f.price("BTCUSDT", "50100"))

	next := read()
	assert.Equal(t, model.Instrument("BTCUSDT"), next.Instrument)
	assert.True(t, next.Price.Equal(decimal.NewFromInt(50100)))

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsBadSymbol(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/ws/usdt", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseLever(t *testing.T) {
	testCases := []struct {
		in    string
		want  int
		valid bool
	}{
		{in: "", want: 0, valid: true},
		{in: "10", want: 10, valid: true},
		{in: " 20 ", want: 20, valid: true},
		{in: "5.0", want: 5, valid: true},
		{in: "1e2", want: 100, valid: true},
		{in: "2.5"},
		{in: "1e30"},
		{in: "99999999999"},
		{in: "NaN"},
		{in: "Inf"},
		{in: "-Inf"},
		{in: "ten"},
	}

	for _, tc := range testCases {
		got, err := parseLever(tc.in)
		if !tc.valid {
			require.ErrorIs(t, err, exception.ErrInvalidEvent, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestSignalRejectsFractionalLever(t *testing.T) {
	f := newFixture(t)
	f.price("BTCUSDT", "50000")

	rec := f.do(t, http.MethodPost, "/api/signal",
		`{"trade_id":"t9","title":"alpha","currency":"BTC","side":"long","lever":"2.5"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/signals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.TradeSignal](t, rec))
}
