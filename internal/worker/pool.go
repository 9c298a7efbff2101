package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"retailcore/internal/dto"
	"retailcore/internal/infra"
	"retailcore/internal/metrics"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	QueueOrderEvents = "jobs:order_events"

	JobOrderEvent = "order_event"

	// MaxEventAttempts bounds Kafka delivery before a job goes to the DLQ.
	MaxEventAttempts = 5

	popTimeout = 5 * time.Second
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
	// Fanned marks that the real-time fan-out already ran; retries only
	// redo the broker publication.
	Fanned bool `json:"fanned,omitempty"`
}

// EventSink is the broker side of the fan-out (infra.EventPublisher).
type EventSink interface {
	Publish(ctx context.Context, key string, value []byte, headers map[string]string) error
	Available() bool
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	queue JobQueue
}

func NewDispatcher(queue JobQueue) *Dispatcher {
	return &Dispatcher{queue: queue}
}

// EnqueueOrderEvent pushes one order event for fan-out.
func (d *Dispatcher) EnqueueOrderEvent(ctx context.Context, ev dto.OrderEvent) error {
	return d.enqueue(ctx, QueueOrderEvents, JobOrderEvent, ev)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.queue.Push(ctx, queue, encoded)
}

// Pool consumes order events: each one is published on the tenant's Redis
// channel (best effort, once) and then to Kafka, retrying through the
// queue and dead-lettering after MaxEventAttempts.
type Pool struct {
	queue JobQueue
	sink  EventSink
	size  int
}

// NewPool builds a pool of size workers. sink may be nil when no broker is
// configured; events then only reach the real-time channel.
func NewPool(queue JobQueue, sink EventSink, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{queue: queue, sink: sink, size: size}
}

// Run blocks until ctx is cancelled and every worker has returned.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		id := i
		g.Go(func() error {
			p.runWorker(ctx, id)
			return nil
		})
	}
	log.Info().Str("component", "worker").Int("workers", p.size).Msg("worker pool started")
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			log.Info().Str("component", "worker").Int("worker", id).Msg("worker shutting down")
			return
		}
		queue, raw, err := p.queue.Pop(ctx, popTimeout, QueueOrderEvents)
		if err != nil {
			if !errors.Is(err, ErrQueueEmpty) && ctx.Err() == nil {
				log.Warn().Str("component", "worker").Err(err).Msg("queue pop failed")
				time.Sleep(time.Second)
			}
			continue
		}
		p.process(ctx, queue, raw)
	}
}

func (p *Pool) process(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("component", "worker").Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		quoted, _ := json.Marshal(raw)
		SendToDLQ(ctx, p.queue, queue, "unknown", quoted, "malformed job: "+err.Error(), 0)
		return
	}
	if job.Type != JobOrderEvent {
		SendToDLQ(ctx, p.queue, queue, job.Type, job.Payload, "unknown job type", job.Attempts)
		return
	}

	var ev dto.OrderEvent
	if err := json.Unmarshal(job.Payload, &ev); err != nil {
		SendToDLQ(ctx, p.queue, queue, job.Type, job.Payload, "malformed order event: "+err.Error(), job.Attempts)
		return
	}

	if !job.Fanned {
		p.fanOut(ctx, ev, job.Payload)
		job.Fanned = true
	}
	if p.sink == nil {
		return
	}

	err := p.sink.Publish(ctx, ev.OrderID, job.Payload, map[string]string{
		"event_type": ev.Type,
		"tenant_id":  ev.TenantID,
	})
	if err == nil {
		metrics.EventsPublished.WithLabelValues("kafka", "ok").Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues("kafka", "error").Inc()

	job.Attempts++
	if job.Attempts >= MaxEventAttempts {
		SendToDLQ(ctx, p.queue, queue, job.Type, job.Payload,
			fmt.Sprintf("max attempts (%d) exceeded: %s", MaxEventAttempts, err), job.Attempts)
		return
	}
	log.Warn().
		Str("component", "worker").
		Str("order_id", ev.OrderID).
		Int("attempts", job.Attempts).
		Bool("breaker_open", errors.Is(err, infra.ErrCircuitOpen)).
		Err(err).
		Msg("event publish failed, requeued")

	encoded, mErr := json.Marshal(job)
	if mErr == nil {
		mErr = p.queue.Push(ctx, queue, encoded)
	}
	if mErr != nil {
		SendToDLQ(ctx, p.queue, queue, job.Type, job.Payload, "requeue failed: "+mErr.Error(), job.Attempts)
	}
}

// fanOut publishes on the tenant channel. Missed notifications are
// tolerated: staff clients fall back to polling the order list.
func (p *Pool) fanOut(ctx context.Context, ev dto.OrderEvent, payload []byte) {
	if err := p.queue.Publish(ctx, infra.OrderChannel(ev.TenantID), payload); err != nil {
		metrics.EventsPublished.WithLabelValues("pubsub", "error").Inc()
		log.Warn().Str("component", "worker").Str("tenant_id", ev.TenantID).Err(err).Msg("real-time publish failed")
		return
	}
	metrics.EventsPublished.WithLabelValues("pubsub", "ok").Inc()
}
