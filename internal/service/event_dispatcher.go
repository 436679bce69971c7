package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edufund-loan-api/internal/models"
	"github.com/noah-isme/edufund-loan-api/pkg/jobs"
)

// EventConsumer reacts to a domain event. Consumers must be idempotent:
// the job queue retries failed deliveries.
type EventConsumer func(context.Context, models.DomainEvent) error

// EventDispatcher fans domain events out to registered consumers through a
// background worker pool. Publishing is fire-and-forget from the caller's
// perspective; delivery failures are retried and then logged, never bubbled
// back into the originating request.
type EventDispatcher struct {
	queue  *jobs.Queue
	logger *zap.Logger

	mu        sync.RWMutex
	consumers map[models.EventType][]EventConsumer
}

// NewEventDispatcher builds a dispatcher backed by the given queue config.
func NewEventDispatcher(cfg jobs.QueueConfig, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &EventDispatcher{
		logger:    logger,
		consumers: make(map[models.EventType][]EventConsumer),
	}
	cfg.Logger = logger
	d.queue = jobs.NewQueue("domain-events", d.deliver, cfg)
	return d
}

// Start begins background delivery.
func (d *EventDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers.
func (d *EventDispatcher) Stop() {
	d.queue.Stop()
}

// Subscribe registers a consumer for an event type. Not safe to call after
// events for that type are already in flight expecting the consumer.
func (d *EventDispatcher) Subscribe(eventType models.EventType, consumer EventConsumer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.consumers[eventType] = append(d.consumers[eventType], consumer)
}

// Publish enqueues the event for asynchronous delivery.
func (d *EventDispatcher) Publish(event models.DomainEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	err := d.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(event.Type),
		Payload: event,
	})
	if err != nil {
		d.logger.Sugar().Errorw("failed to publish domain event",
			"type", event.Type, "application_id", event.ApplicationID, "error", err)
		return err
	}
	return nil
}

func (d *EventDispatcher) deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.DomainEvent)
	if !ok {
		d.logger.Sugar().Errorw("dropping malformed event job", "job_id", job.ID, "type", job.Type)
		return nil
	}

	d.mu.RLock()
	consumers := d.consumers[event.Type]
	d.mu.RUnlock()

	var firstErr error
	for _, consumer := range consumers {
		if err := consumer(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("deliver %s: %w", event.Type, err)
			}
			d.logger.Sugar().Warnw("event consumer failed",
				"type", event.Type, "application_id", event.ApplicationID, "error", err)
		}
	}
	return firstErr
}
