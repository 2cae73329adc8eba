package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/pipesim/internal/domain"
)

// Run DTOs

// StartRunResponse — ответ на запуск pipeline.
type StartRunResponse struct {
	ID uuid.UUID `json:"id"`
}

// StageResponse — ответ со стадией run.
type StageResponse struct {
	Name       string             `json:"name"`
	Status     domain.StageStatus `json:"status"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	ID         uuid.UUID        `json:"id"`
	Status     domain.RunStatus `json:"status"`
	Stages     []StageResponse  `json:"stages"`
	Payload    map[string]any   `json:"payload,omitempty"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	DurationMs int64            `json:"duration_ms,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	stages := make([]StageResponse, len(r.Stages))
	for i, s := range r.Stages {
		stages[i] = StageResponse{
			Name:       s.Name,
			Status:     s.Status,
			StartedAt:  s.StartedAt,
			FinishedAt: s.FinishedAt,
		}
	}

	return RunResponse{
		ID:         r.ID,
		Status:     r.Status,
		Stages:     stages,
		Payload:    r.Payload,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
}

// Service DTOs

// HealthResponse — ответ health check.
type HealthResponse struct {
	Status string `json:"status"`
}

// OKResponse — подтверждение без данных.
type OKResponse struct {
	OK bool `json:"ok"`
}

// StreamMessage — кадр WebSocket-потока.
type StreamMessage struct {
	Event domain.EventType `json:"event"`
	Data  any              `json:"data"`
}
