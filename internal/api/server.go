package api

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"signaltrack/internal/feed"
	"signaltrack/internal/hub"
	"signaltrack/internal/model"
	"signaltrack/internal/obs"
	"signaltrack/internal/signal"
)

// SignalService processes inbound signals and serves their history.
type SignalService interface {
	ProcessEvent(ctx context.Context, ev signal.Event) (signal.Result, error)
	Signals(ctx context.Context) ([]model.TradeSignal, error)
	History(ctx context.Context, title string) ([]model.TradeSignal, error)
	Stats(ctx context.Context, start, end time.Time) ([]signal.StrategyStats, error)
}

// PriceReader reads the price cache.
type PriceReader interface {
	Get(instrument model.Instrument) (model.PriceSample, bool)
	Snapshot() []model.PriceSample
}

// FeedControl exposes the price feed status and instrument set.
type FeedControl interface {
	State() feed.State
	Attempts() uint64
	Instruments() []model.Instrument
	AddInstrument(ctx context.Context, instrument model.Instrument) error
}

// Broadcaster registers live price subscribers.
type Broadcaster interface {
	Register(sub *hub.Subscriber) hub.Handle
	Unregister(handle hub.Handle)
}

// Config defines the API dependencies and websocket subscriber settings.
type Config struct {
	Signals SignalService
	Prices  PriceReader
	Feed    FeedControl
	Hub     Broadcaster
	Metrics *obs.Metrics

	BufferSize   int
	Overflow     hub.OverflowPolicy
	IdleTimeout  time.Duration
	PingInterval time.Duration
}

// Server is the HTTP surface of the tracker.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	upgrader gorilla.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 3 * cfg.PingInterval
	}

	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/signal", s.handleSignal)
	s.mux.HandleFunc("GET /api/signals", s.handleSignals)
	s.mux.HandleFunc("GET /api/signals/statistics", s.handleStatistics)
	s.mux.HandleFunc("GET /api/signals/{title}/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/prices", s.handlePrices)
	s.mux.HandleFunc("GET /api/prices/{symbol}", s.handlePrice)
	s.mux.HandleFunc("GET /api/feed", s.handleFeed)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /ws/{symbol}", s.handleWS)
	if s.cfg.Metrics != nil {
		s.mux.Handle("GET /metrics", s.cfg.Metrics.Handler())
	}
}

// ServeHTTP tags every request with an id and logs its outcome.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	logs.Infof("api: %s %s %d %s, request: %s", r.Method, r.URL.Path, rec.status, time.Since(start), id)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Serve runs an http.Server on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logs.Infof("api: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
