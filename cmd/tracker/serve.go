package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"signaltrack/internal/api"
	"signaltrack/internal/feed"
	"signaltrack/internal/hub"
	"signaltrack/internal/model/enum"
	"signaltrack/internal/obs"
	"signaltrack/internal/ops"
	"signaltrack/internal/pricecache"
	"signaltrack/internal/signal"
	"signaltrack/pkg/websocket"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the price feed and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	loaded, err := ops.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if loaded.Profiling.Enabled {
		profiler, err := startProfiler(loaded.Profiling)
		if err != nil {
			return fmt.Errorf("start profiler: %w", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	tracing, err := obs.NewTracing(ctx, loaded.Tracing.Enabled, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logs.Warnf("tracing shutdown, err: %+v", err)
		}
	}()

	var metrics *obs.Metrics
	if loaded.Metrics.Enabled {
		metrics = obs.NewMetrics()
	}

	store, closeStore, err := openStore(ctx, loaded.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	cache := pricecache.New()
	broadcaster := hub.New(cache, metrics)
	defer broadcaster.Close()

	dialer, err := newDialer(loaded)
	if err != nil {
		return err
	}

	priceFeed, err := feed.New(feed.Config{
		Dialer:      dialer,
		Codec:       feed.BinanceCodec{},
		Cache:       cache,
		Publisher:   broadcaster,
		Instruments: loaded.Instruments,
		Backoff: websocket.Backoff{
			Min:    loaded.Feed.ReconnectDelay.Std(),
			Max:    loaded.Feed.MaxReconnectDelay.Std(),
			Factor: loaded.Feed.BackoffFactor,
			Jitter: loaded.Feed.Jitter,
		},
		Metrics: metrics,
		OnStateChange: func(from, to feed.State) {
			logs.Infof("feed: %s -> %s", from, to)
		},
	})
	if err != nil {
		return fmt.Errorf("init feed: %w", err)
	}

	manager, err := signal.NewManager(signal.Config{
		Store:   store,
		Prices:  cache,
		Feed:    priceFeed,
		Tracer:  tracing.Tracer(),
		Metrics: metrics,
	})
	if err != nil {
		return fmt.Errorf("init signal manager: %w", err)
	}

	server := api.NewServer(api.Config{
		Signals:      manager,
		Prices:       cache,
		Feed:         priceFeed,
		Hub:          broadcaster,
		Metrics:      metrics,
		BufferSize:   loaded.Hub.BufferSize,
		Overflow:     hub.ParseOverflowPolicy(loaded.Hub.Overflow),
		IdleTimeout:  loaded.Feed.IdleTimeout.Std(),
		PingInterval: loaded.Feed.PingInterval.Std(),
	})

	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	logs.Infof("tracker v%s starting, provider: %s, instruments: %v", version, loaded.Platform, loaded.Instruments)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := priceFeed.Run(ctx); err != nil && ctx.Err() == nil {
			logs.Errorf("feed stopped, err: %+v", err)
			cancel()
		}
	}()

	err = api.Serve(ctx, loaded.API.Addr(), server, loaded.API.ShutdownTimeout.Std())
	cancel()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("serve api: %w", err)
	}
	logs.Info("tracker stopped")
	return nil
}

func newDialer(loaded ops.Loaded) (websocket.Dialer, error) {
	switch loaded.Platform {
	case enum.PlatformSimulated:
		return feed.NewSimulatedDialer(loaded.Feed.SimulateInterval.Std()), nil
	default:
		d, err := websocket.NewDialer(loaded.Feed.URL, loaded.Feed.HandshakeTimeout.Std(), websocket.ConnConfig{
			IdleTimeout:  loaded.Feed.IdleTimeout.Std(),
			PingInterval: loaded.Feed.PingInterval.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("init feed dialer: %w", err)
		}
		return d, nil
	}
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: "signaltrack.tracker",
		ServerAddress:   cfg.ServerAddress,
		Tags: map[string]string{
			"version": version,
		},
		Logger: profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Debugf("pyroscope: "+format, args...) }
func (profilerLogger) Debugf(format string, args ...interface{}) { logs.Debugf("pyroscope: "+format, args...) }
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf("pyroscope: "+format, args...) }
