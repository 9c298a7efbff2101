package service

import (
	"context"

	"retailcore/internal/dto"

	"gorm.io/gorm"
)

// TxRunner opens tenant-scoped, retried transactions. *infra.Executor is the
// production implementation.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EventNotifier receives order events after commit. Delivery is best effort.
type EventNotifier interface {
	EnqueueOrderEvent(ctx context.Context, ev dto.OrderEvent) error
}

// runTx executes fn through the runner, or calls fn(nil) directly when no
// runner is configured (unit test mode).
func runTx(ctx context.Context, runner TxRunner, fn func(tx *gorm.DB) error) error {
	if runner == nil {
		return fn(nil)
	}
	return runner.Transaction(ctx, fn)
}
