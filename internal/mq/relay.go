package mq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/pipesim/internal/domain"
	"github.com/shaiso/pipesim/internal/events"
	"github.com/shaiso/pipesim/internal/telemetry"
)

const defaultPublishTimeout = 5 * time.Second

// EventSource — источник событий для Relay.
type EventSource interface {
	Subscribe() *events.Subscription
}

// EventPublisher — получатель событий. Реализуется Publisher.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
}

// Relay зеркалирует события из Broadcaster в RabbitMQ.
//
// Relay — обычный подписчик Broadcaster: если брокер тормозит,
// буфер подписки переполняется и события отбрасываются,
// но Driver никогда не ждёт брокера.
type Relay struct {
	source    EventSource
	publisher EventPublisher
	timeout   time.Duration
	logger    *slog.Logger

	sub        *events.Subscription
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// RelayConfig — конфигурация Relay.
type RelayConfig struct {
	Source    EventSource
	Publisher EventPublisher

	// PublishTimeout — таймаут на публикацию одного события (default: 5s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// NewRelay создаёт новый Relay.
func NewRelay(cfg RelayConfig) *Relay {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		source:    cfg.Source,
		publisher: cfg.Publisher,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start подписывается на события и запускает пересылку.
func (r *Relay) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel
	r.sub = r.source.Subscribe()

	r.wg.Add(1)
	go r.loop(ctx)

	r.logger.Info("event relay started")
}

// Stop отписывается и ждёт завершения пересылки.
func (r *Relay) Stop() {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	if r.sub != nil {
		r.sub.Close()
	}
	r.wg.Wait()

	r.logger.Info("event relay stopped")
}

func (r *Relay) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.sub.Events():
			if !ok {
				return
			}
			r.forward(ctx, ev)
		}
	}
}

func (r *Relay) forward(ctx context.Context, ev domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.publisher.PublishEvent(ctx, ev); err != nil {
		telemetry.EventsRelayed.WithLabelValues("error").Inc()
		r.logger.Warn("failed to relay event",
			"run_id", ev.RunID,
			"type", ev.Type,
			"error", err,
		)
		return
	}

	telemetry.EventsRelayed.WithLabelValues("ok").Inc()
}
