package mq

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shaiso/Displacement/internal/domain"
)

const (
	defaultForwardBuffer  = 256
	defaultPublishTimeout = 5 * time.Second
)

// EventPublisher публикует одно событие.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
}

// EventForwarder передаёт события Runner в EventPublisher.
//
// Observe не блокируется: события копятся в буфере, публикация идёт
// в горутине Run. При переполнении буфера событие отбрасывается.
type EventForwarder struct {
	publisher EventPublisher
	queue     chan domain.Event
	timeout   time.Duration
	logger    *slog.Logger

	dropped atomic.Int64
}

// ForwarderConfig — конфигурация EventForwarder.
type ForwarderConfig struct {
	Publisher EventPublisher

	// Buffer — размер буфера событий (default: 256).
	Buffer int

	// PublishTimeout — таймаут одной публикации (default: 5s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// NewEventForwarder создаёт EventForwarder.
func NewEventForwarder(cfg ForwarderConfig) *EventForwarder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultForwardBuffer
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &EventForwarder{
		publisher: cfg.Publisher,
		queue:     make(chan domain.Event, cfg.Buffer),
		timeout:   cfg.PublishTimeout,
		logger:    cfg.Logger,
	}
}

// Observe ставит событие в очередь на публикацию.
// Совместим с pipeline.Subscriber.
func (f *EventForwarder) Observe(ev domain.Event) {
	select {
	case f.queue <- ev:
	default:
		f.dropped.Add(1)
		f.logger.Warn("event buffer full, dropping event", "type", ev.Type, "run_id", ev.RunID)
	}
}

// Dropped возвращает количество отброшенных событий.
func (f *EventForwarder) Dropped() int64 {
	return f.dropped.Load()
}

// Run публикует события до отмены ctx, затем публикует остаток буфера.
func (f *EventForwarder) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-f.queue:
			f.publish(ctx, ev)
		case <-ctx.Done():
			f.drain()
			return nil
		}
	}
}

// drain публикует накопленные события с собственным таймаутом.
func (f *EventForwarder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	for {
		select {
		case ev := <-f.queue:
			f.publish(ctx, ev)
		default:
			return
		}
	}
}

func (f *EventForwarder) publish(ctx context.Context, ev domain.Event) {
	pubCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.publisher.PublishEvent(pubCtx, ev); err != nil {
		f.logger.Warn("failed to publish event", "type", ev.Type, "run_id", ev.RunID, "error", err)
	}
}
