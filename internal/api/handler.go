package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/pipesim/internal/domain"
	"github.com/shaiso/pipesim/internal/events"
	"github.com/shaiso/pipesim/internal/orchestrator"
)

const defaultHeartbeat = 15 * time.Second

// RunController — операции над runs, доступные через API.
type RunController interface {
	CreateRun(ctx context.Context, payload map[string]any) (*orchestrator.PendingRun, error)
	ListRuns(ctx context.Context) ([]domain.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error)
}

// EventBus — источник событий для потоковых endpoint'ов.
type EventBus interface {
	Subscribe() *events.Subscription
	Publish(ev domain.Event)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runs      RunController
	bus       EventBus
	heartbeat time.Duration
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runs RunController
	Bus  EventBus

	// Heartbeat — период keep-alive комментариев в SSE (default: 15s).
	Heartbeat time.Duration

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		runs:      cfg.Runs,
		bus:       cfg.Bus,
		heartbeat: heartbeat,
		logger:    logger,
	}
}
