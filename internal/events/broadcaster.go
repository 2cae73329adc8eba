package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shaiso/pipesim/internal/domain"
	"github.com/shaiso/pipesim/internal/telemetry"
)

const defaultBuffer = 64

// Broadcaster раздаёт события всем текущим подписчикам.
//
// У каждого подписчика свой буферизированный канал. Publish никогда
// не блокируется: если буфер подписчика полон, событие для него
// отбрасывается. Порядок событий внутри одного канала сохраняется,
// поэтому события одного run приходят подписчику в порядке публикации.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool

	dropped atomic.Uint64
	logger  *slog.Logger
}

// Config — конфигурация Broadcaster.
type Config struct {
	// Buffer — размер буфера на подписчика (default: 64).
	Buffer int

	Logger *slog.Logger
}

// New создаёт новый Broadcaster.
func New(cfg Config) *Broadcaster {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscription — регистрация одного слушателя.
type Subscription struct {
	ch     chan domain.Event
	b      *Broadcaster
	once   sync.Once
	closed bool // защищено b.mu
}

// Events возвращает канал событий. Канал закрывается при отписке.
func (s *Subscription) Events() <-chan domain.Event {
	return s.ch
}

// Close отписывает слушателя. Повторные вызовы безопасны.
func (s *Subscription) Close() error {
	s.b.Unsubscribe(s)
	return nil
}

// Subscribe регистрирует нового слушателя.
// Слушатель получает только события, опубликованные после регистрации.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{
		ch: make(chan domain.Event, b.buffer),
		b:  b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.closed = true
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}

	b.subs[sub] = struct{}{}
	telemetry.EventSubscribers.Inc()
	b.logger.Debug("subscriber registered", "subscribers", len(b.subs))

	return sub
}

// Unsubscribe удаляет слушателя и закрывает его канал. Идемпотентен.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.removeLocked(sub)
}

// removeLocked вызывается под b.mu.Lock.
func (b *Broadcaster) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		telemetry.EventSubscribers.Dec()
		b.logger.Debug("subscriber removed", "subscribers", len(b.subs))
	}
	sub.once.Do(func() { close(sub.ch) })
}

// Publish доставляет событие всем подписчикам без блокировки.
func (b *Broadcaster) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	telemetry.EventsPublished.WithLabelValues(string(ev.Type)).Inc()

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
			telemetry.EventsDropped.Inc()
			b.logger.Warn("subscriber buffer full, event dropped",
				"run_id", ev.RunID,
				"type", ev.Type,
				"stage", ev.Stage,
			)
		}
	}
}

// Subscribers возвращает количество текущих подписчиков.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped возвращает количество отброшенных доставок.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close закрывает все подписки. Последующие Publish игнорируются.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for sub := range b.subs {
		b.removeLocked(sub)
	}

	b.logger.Info("broadcaster closed")
	return nil
}
