// Package ingest decouples event persistence from the request that
// submitted the event.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"gamestore/api/models"
)

var ErrDispatcherClosed = errors.New("ingest: dispatcher is stopped")

const (
	DefaultWorkers     = 8
	DefaultQueueSize   = 1024
	DefaultTaskTimeout = 15 * time.Second
)

// SessionAggregator folds an event into its session aggregate.
type SessionAggregator interface {
	ApplyEvent(ctx context.Context, event *models.Event) error
}

// RecentItemsRecorder tracks the games a user viewed most recently.
type RecentItemsRecorder interface {
	RecordView(ctx context.Context, userID, gameID int64) error
}

// EventRecorder is an append-only durable sink for ingested events.
type EventRecorder interface {
	Name() string
	RecordEvent(ctx context.Context, event *models.IngestedEvent) error
}

type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// Params injects the dispatcher's collaborators.
type Params struct {
	Sessions    SessionAggregator
	RecentItems RecentItemsRecorder
	Recorders   []EventRecorder
	Options     Options
	Meter       metric.Meter
	Logger      log.Logger
}

// Dispatcher accepts events synchronously and persists them on a worker
// pool. Work is best effort: failures are logged and counted, never
// reported back to the submitter.
type Dispatcher struct {
	sessions  SessionAggregator
	recent    RecentItemsRecorder
	recorders []EventRecorder
	opts      Options

	queue   chan *models.IngestedEvent
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	closed  bool

	metrics *dispatchMetrics
	log     *log.Helper
}

func NewDispatcher(p Params) (*Dispatcher, error) {
	if p.Sessions == nil {
		return nil, fmt.Errorf("ingest: session aggregator is required")
	}
	if p.Logger == nil {
		p.Logger = log.DefaultLogger
	}
	opts := p.Options
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	helper := log.NewHelper(log.With(p.Logger, "module", "ingest/dispatcher"))

	return &Dispatcher{
		sessions:  p.Sessions,
		recent:    p.RecentItems,
		recorders: p.Recorders,
		opts:      opts,
		queue:     make(chan *models.IngestedEvent, opts.QueueSize),
		metrics:   newDispatchMetrics(p.Meter, helper),
		log:       helper,
	}, nil
}

// Start launches the worker pool. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.log.Infow("msg", "ingest dispatcher started", "workers", d.opts.Workers, "queue_size", d.opts.QueueSize)
}

// Submit assigns a request id to the event and queues it for persistence.
// It never blocks: when the queue is full the event is dropped and the id
// is still returned, since the caller is only promised acceptance.
func (d *Dispatcher) Submit(ctx context.Context, event models.Event) (string, error) {
	task := &models.IngestedEvent{RequestID: uuid.NewString(), Event: event}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrDispatcherClosed
	}

	select {
	case d.queue <- task:
		d.metrics.recordAccepted(ctx)
	default:
		d.metrics.recordDropped(ctx)
		d.log.WithContext(ctx).Warnw("msg", "ingest queue full, dropping event",
			"request_id", task.RequestID,
			"session_id", event.SessionID,
			"user_id", event.UserID,
			"event_type", event.EventType,
		)
	}
	return task.RequestID, nil
}

// Stop refuses new events, lets the workers drain what is queued and waits
// for them until ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("ingest dispatcher drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ingest: stop before queue drained: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for task := range d.queue {
		d.process(task)
	}
}

// process runs every persistence step for one event. Steps are independent:
// a failure or panic in one does not skip the others.
func (d *Dispatcher) process(task *models.IngestedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.TaskTimeout)
	defer cancel()
	start := time.Now()

	d.runStep(ctx, task, "session", func(ctx context.Context) error {
		return d.sessions.ApplyEvent(ctx, &task.Event)
	})

	if d.recent != nil && task.IsView() && task.GameID != nil {
		d.runStep(ctx, task, "recent_items", func(ctx context.Context) error {
			return d.recent.RecordView(ctx, task.UserID, *task.GameID)
		})
	}

	for _, rec := range d.recorders {
		d.runStep(ctx, task, rec.Name(), func(ctx context.Context) error {
			return rec.RecordEvent(ctx, task)
		})
	}

	d.metrics.recordDuration(ctx, time.Since(start))
}

func (d *Dispatcher) runStep(ctx context.Context, task *models.IngestedEvent, stage string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			d.fail(ctx, task, stage, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(ctx); err != nil {
		d.fail(ctx, task, stage, err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, task *models.IngestedEvent, stage string, err error) {
	d.metrics.recordFailure(ctx, stage)
	d.log.WithContext(ctx).Errorw("msg", "error ingesting event",
		"stage", stage,
		"request_id", task.RequestID,
		"session_id", task.SessionID,
		"user_id", task.UserID,
		"event_type", task.EventType,
		"error", err,
	)
}
