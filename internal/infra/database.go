package infra

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DatabaseConfig carries pool and transport settings.
type DatabaseConfig struct {
	DSN              string
	MaxOpenConns     int
	MaxIdleConns     int
	StatementTimeout time.Duration
	SlowQuery        time.Duration
}

// NewDatabase opens a GORM connection backed by pgx. The statement timeout
// is sent as a startup parameter so every pooled connection carries it.
// Schema is applied separately by RunMigrations.
func NewDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	dsn, err := withRuntimeParams(cfg.DSN, map[string]string{
		"statement_timeout": fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds()),
		"connect_timeout":   "5",
	})
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: NewGormLogger(cfg.SlowQuery),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// withRuntimeParams adds params to a URL or keyword/value DSN unless the DSN
// already sets them. A zero statement_timeout is dropped.
func withRuntimeParams(dsn string, params map[string]string) (string, error) {
	if params["statement_timeout"] == "0" {
		delete(params, "statement_timeout")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse DATABASE_URL: %w", err)
		}
		q := u.Query()
		for k, v := range params {
			if q.Get(k) == "" {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	for k, v := range params {
		if !strings.Contains(dsn, k+"=") {
			dsn += fmt.Sprintf(" %s=%s", k, v)
		}
	}
	return dsn, nil
}

// WatchPool pings the pool every interval and reports failures on the
// returned channel instead of crashing. The channel is closed when ctx ends;
// reports are dropped while the reader is behind.
func WatchPool(ctx context.Context, db *gorm.DB, interval time.Duration) <-chan error {
	errs := make(chan error, 8)
	go func() {
		defer close(errs)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := pingPool(ctx, db); err != nil {
					select {
					case errs <- err:
					default:
					}
				}
			}
		}
	}()
	return errs
}

func pingPool(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	return nil
}
