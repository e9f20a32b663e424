package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestd/internal/telemetry"

// EventType identifies an orchestration event.
type EventType string

const (
	EventTaskStarted        EventType = "task_started"
	EventTaskFinished       EventType = "task_finished"
	EventPhaseStarted       EventType = "phase_started"
	EventPhaseFinished      EventType = "phase_finished"
	EventHealthReport       EventType = "health_report"
	EventRemediationOutcome EventType = "remediation_outcome"
)

// Event is one fire-and-forget orchestration event.
type Event struct {
	Type     EventType      `json:"type"`
	GoalID   string         `json:"goal_id,omitempty"`
	Artifact string         `json:"artifact,omitempty"`
	TaskID   string         `json:"task_id,omitempty"`
	Phase    int            `json:"phase,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
	At       time.Time      `json:"at"`
}

// EventBus is a bounded, non-blocking telemetry sink.
//
// Publish never blocks: when the buffer is full the oldest queued event is
// dropped to make room (drop-oldest back-pressure, chosen explicitly over
// blocking the orchestration path). A single consumer goroutine drains the
// buffer, logs each event, and counts it on the meter.
type EventBus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	ch     chan Event
	closed bool
	wg     sync.WaitGroup

	published metric.Int64Counter
	dropped   metric.Int64Counter
}

// NewEventBus creates the bus and starts its consumer.
func NewEventBus(buffer int, tel *Telemetry, logger *zap.Logger) *EventBus {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &EventBus{
		logger: logger,
		ch:     make(chan Event, buffer),
	}

	meter := tel.Meter(instrumentationName)
	if counter, err := meter.Int64Counter(
		"orchestd.events.published_total",
		metric.WithDescription("Total orchestration events published"),
		metric.WithUnit("{event}"),
	); err == nil {
		b.published = counter
	}
	if counter, err := meter.Int64Counter(
		"orchestd.events.dropped_total",
		metric.WithDescription("Total orchestration events dropped under back-pressure"),
		metric.WithUnit("{event}"),
	); err == nil {
		b.dropped = counter
	}

	b.wg.Add(1)
	go b.consume()

	return b
}

// Publish enqueues an event without blocking. Events published after
// Close are silently discarded.
func (b *EventBus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for {
		select {
		case b.ch <- e:
			return
		default:
		}
		// Buffer full: drop the oldest queued event and retry.
		select {
		case <-b.ch:
			if b.dropped != nil {
				b.dropped.Add(context.Background(), 1)
			}
		default:
		}
	}
}

// Close stops accepting events and waits for the consumer to drain.
func (b *EventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *EventBus) consume() {
	defer b.wg.Done()
	for e := range b.ch {
		if b.published != nil {
			b.published.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("event_type", string(e.Type)),
			))
		}
		b.logger.Debug("orchestration event",
			zap.String("type", string(e.Type)),
			zap.String("goal_id", e.GoalID),
			zap.String("artifact", e.Artifact),
			zap.String("task_id", e.TaskID),
			zap.Int("phase", e.Phase),
			zap.Any("fields", e.Fields),
		)
	}
}
