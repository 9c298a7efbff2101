package infra

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"retailcore/internal/metrics"
	"retailcore/internal/tenant"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// ErrDatabaseUnavailable is returned once the retry budget is exhausted.
// The underlying cause stays in the chain for logging; callers only ever
// surface this generic error.
var ErrDatabaseUnavailable = errors.New("database unavailable")

// transientSQLStates lists server conditions worth retrying. Class 08
// (connection exception) is matched by prefix in IsTransient.
var transientSQLStates = map[string]bool{
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
	"57014": true, // query_canceled (statement_timeout)
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
}

// IsTransient classifies err as an infrastructure hiccup that a fresh attempt
// may not hit again.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, tenant.ErrInvalidTenantID) || errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientSQLStates[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RetryPolicy drives re-execution of a unit of work on transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleep waits between attempts; nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is 3 attempts with 1s, 2s, 4s … backoff capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
}

// Backoff returns the delay after the given failed attempt (1-based):
// min(base·2^(attempt−1), max).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails permanently, or the budget runs out.
// label identifies the work in logs and metrics; it is truncated and never
// returned to callers.
func (p RetryPolicy) Do(ctx context.Context, op, label string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return err
		}
		if attempt >= attempts {
			log.Error().
				Err(err).
				Str("op", op).
				Str("query", truncateSQL(label)).
				Str("tenant_id", tenant.ID(ctx)).
				Int("attempts", attempt).
				Msg("database retries exhausted")
			return fmt.Errorf("%w: %w", ErrDatabaseUnavailable, err)
		}

		delay := p.Backoff(attempt)
		metrics.DBRetries.WithLabelValues(op).Inc()
		log.Warn().
			Err(err).
			Str("op", op).
			Str("query", truncateSQL(label)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("transient database error, retrying")

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const maxLoggedSQL = 160

// truncateSQL collapses whitespace and cuts the statement for log output.
func truncateSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxLoggedSQL {
		return s[:maxLoggedSQL] + "…"
	}
	return s
}
