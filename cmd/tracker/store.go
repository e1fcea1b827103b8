package main

import (
	"context"
	"fmt"

	"github.com/yanun0323/logs"

	"signaltrack/internal/ops"
	"signaltrack/internal/repository"
	"signaltrack/internal/signal"
	"signaltrack/pkg/conn"
)

// openStore returns the configured signal store and its release func.
func openStore(ctx context.Context, cfg ops.DatabaseConfig) (signal.Store, func(), error) {
	if cfg.Driver == "memory" {
		logs.Warnf("signal store is in memory, records are lost on exit")
		return signal.NewMemoryStore(), func() {}, nil
	}

	client, err := conn.New(conn.Option{
		Driver:          cfg.Driver,
		ConnString:      cfg.URL,
		SQLitePath:      cfg.SQLitePath,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	repo := repository.NewSignalRepository(client.DB())
	if err := repo.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("migrate signal store: %w", err)
	}

	return repo, func() {
		if err := client.Close(); err != nil {
			logs.Warnf("close database, err: %+v", err)
		}
	}, nil
}
