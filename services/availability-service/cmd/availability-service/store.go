package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/schedule"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage/postgres"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage/sqlite"
)

func newLogger() *slog.Logger {
	return runtime.NewLoggerTo(os.Stdout, config.String("SERVICE_NAME", "availability-service"), config.String("LOG_LEVEL", "info"))
}

func storeDriver() string {
	return strings.ToLower(config.String("STORE_DRIVER", "postgres"))
}

// openStore picks the backend from STORE_DRIVER ("postgres" or "sqlite").
func openStore(ctx context.Context) (storage.Store, error) {
	switch driver := storeDriver(); driver {
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		maxConns, err := config.Int("DB_MAX_CONNS", 10)
		if err != nil {
			return nil, err
		}
		pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: int32(maxConns)})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return postgres.New(pool), nil
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, config.String("SQLITE_PATH", "slotbook.db"))
		if err != nil {
			return nil, err
		}
		return sqlite.New(conn), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want postgres or sqlite)", driver)
	}
}

func newService(store storage.Store, logger *slog.Logger) (*schedule.Service, error) {
	loc, err := time.LoadLocation(config.String("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return schedule.New(store, logger, schedule.WithLocation(loc)), nil
}
