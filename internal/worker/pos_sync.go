package worker

// pos_sync.go
// Background goroutine that publishes delivered orders to the POS topic and
// marks them pos_synced. It runs unscoped across all tenants and uses the
// broker circuit breaker to avoid hammering a downed cluster.

import (
	"context"
	"encoding/json"
	"time"

	"retailcore/internal/dto"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const posSyncBatchSize = 50

// SQLRunner is the Executor surface the cron uses.
type SQLRunner interface {
	Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Exec(ctx context.Context, query string, args ...interface{}) (int64, error)
}

type posSyncRow struct {
	ID          uuid.UUID
	TenantID    string
	OrderNumber string
	Status      string
	GrandTotal  decimal.Decimal
	DeliveredAt *time.Time
	UpdatedAt   time.Time
}

const (
	selectUnsynced = `SELECT id, tenant_id, order_number, status, grand_total, delivered_at, updated_at
FROM orders
WHERE status = 'delivered' AND pos_synced = false
ORDER BY updated_at
LIMIT ?`
	markSynced = `UPDATE orders SET pos_synced = true WHERE id = ? AND tenant_id = ? AND pos_synced = false`
)

// POSSync holds all dependencies for the sync goroutine.
type POSSync struct {
	DB       SQLRunner
	Sink     EventSink
	Interval time.Duration
}

// Start launches the goroutine; it ticks every Interval and returns when ctx
// is cancelled.
func (s *POSSync) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Str("component", "pos_sync").Dur("interval", interval).Msg("pos sync started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Str("component", "pos_sync").Msg("pos sync shutting down")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Tick syncs one batch and returns how many orders were marked.
func (s *POSSync) Tick(ctx context.Context) int {
	if !s.Sink.Available() {
		log.Debug().Str("component", "pos_sync").Msg("circuit breaker is open, skipping tick")
		return 0
	}

	var rows []posSyncRow
	if err := s.DB.Query(ctx, &rows, selectUnsynced, posSyncBatchSize); err != nil {
		log.Error().Str("component", "pos_sync").Err(err).Msg("failed to query unsynced orders")
		return 0
	}
	if len(rows) == 0 {
		return 0
	}

	synced := 0
	for _, r := range rows {
		// The breaker may have tripped mid-batch.
		if !s.Sink.Available() {
			log.Debug().Str("component", "pos_sync").Msg("circuit breaker opened mid-batch, stopping")
			break
		}
		occurred := r.UpdatedAt
		if r.DeliveredAt != nil {
			occurred = *r.DeliveredAt
		}
		payload, err := json.Marshal(dto.OrderEvent{
			Type:        dto.EventOrderPOSSync,
			TenantID:    r.TenantID,
			OrderID:     r.ID.String(),
			OrderNumber: r.OrderNumber,
			Status:      r.Status,
			GrandTotal:  r.GrandTotal,
			OccurredAt:  occurred,
		})
		if err != nil {
			continue
		}
		if err := s.Sink.Publish(ctx, r.ID.String(), payload, map[string]string{
			"event_type": dto.EventOrderPOSSync,
			"tenant_id":  r.TenantID,
		}); err != nil {
			log.Warn().Str("component", "pos_sync").Str("order_id", r.ID.String()).Err(err).Msg("pos publish failed")
			continue
		}
		// A failed mark leaves the order for the next tick; POS consumers
		// dedupe on order id.
		if _, err := s.DB.Exec(ctx, markSynced, r.ID, r.TenantID); err != nil {
			log.Error().Str("component", "pos_sync").Str("order_id", r.ID.String()).Err(err).Msg("failed to mark order synced")
			continue
		}
		synced++
	}

	log.Info().Str("component", "pos_sync").Int("candidates", len(rows)).Int("synced", synced).Msg("pos sync tick")
	return synced
}
