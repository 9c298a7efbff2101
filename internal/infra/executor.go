package infra

import (
	"context"
	"fmt"
	"time"

	"retailcore/internal/metrics"
	"retailcore/internal/tenant"

	"gorm.io/gorm"
)

// tenantSetting is read by the row-level-security policies (see schema.go).
const tenantSetting = "app.current_tenant"

// Executor is the only path application code takes to the database. Every
// call runs in its own transaction scoped to the tenant bound to ctx and is
// retried on transient failures.
//
// A ctx without a tenant scope runs unscoped across all tenants; only
// administrative callers (migrations, POS sync cron) do that.
type Executor struct {
	db     *gorm.DB
	policy RetryPolicy
}

func NewExecutor(db *gorm.DB, policy RetryPolicy) *Executor {
	return &Executor{db: db, policy: policy}
}

// DB exposes the pool for health checks.
func (e *Executor) DB() *gorm.DB { return e.db }

// Query reads rows into dest, which must be a pointer to a record struct or
// a slice of them.
func (e *Executor) Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return e.run(ctx, "query", query, func(tx *gorm.DB) error {
		return tx.Raw(query, args...).Scan(dest).Error
	})
}

// Exec runs a write statement and reports the affected row count.
func (e *Executor) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var affected int64
	err := e.run(ctx, "exec", query, func(tx *gorm.DB) error {
		res := tx.Exec(query, args...)
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

// Transaction runs fn on one connection, committing when it returns nil and
// rolling back otherwise. On a transient failure the whole of fn runs again
// from scratch, so fn must not have effects outside tx.
func (e *Executor) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return e.run(ctx, "transaction", "transaction", fn)
}

func (e *Executor) run(ctx context.Context, op, label string, fn func(tx *gorm.DB) error) error {
	scope, err := scopeStatement(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	err = e.policy.Do(ctx, op, label, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if scope != "" {
				if err := tx.Exec(scope).Error; err != nil {
					return fmt.Errorf("set tenant scope: %w", err)
				}
			}
			return fn(tx)
		})
	})
	metrics.ObserveDB(op, err, time.Since(start))
	return err
}

// scopeStatement builds the SET LOCAL for the tenant in ctx. The id is
// interpolated, so it must pass the allow-list first; there is no fallback.
func scopeStatement(ctx context.Context) (string, error) {
	s, ok := tenant.FromContext(ctx)
	if !ok {
		return "", nil
	}
	if err := tenant.ValidateID(s.TenantID); err != nil {
		return "", err
	}
	return fmt.Sprintf("SET LOCAL %s = '%s'", tenantSetting, s.TenantID), nil
}
