package domain

import (
	"fmt"
	"time"
)

// EventType — тип события для подписчиков.
type EventType string

const (
	// EventTypeLog — старт или завершение стадии.
	EventTypeLog EventType = "log"

	// EventTypePipelineDone — run завершён.
	EventTypePipelineDone EventType = "pipeline_done"
)

// ManualRunID — идентификатор для диагностических событий, не привязанных к run.
const ManualRunID = "manual"

// Event — неизменяемое уведомление о переходе стадии или run.
//
// События эфемерны: не хранятся после публикации, подписчик,
// подключившийся позже, их не увидит.
type Event struct {
	Type      EventType
	RunID     string
	Stage     string
	Message   string
	Timestamp time.Time
}

// LogPayload — wire-формат события log.
type LogPayload struct {
	PID   string `json:"pid"`
	Stage string `json:"stage"`
	Msg   string `json:"msg"`
}

// DonePayload — wire-формат события pipeline_done.
type DonePayload struct {
	PID string `json:"pid"`
}

// StageStartedEvent создаёт событие о старте стадии.
func StageStartedEvent(runID, stage string) Event {
	return Event{
		Type:      EventTypeLog,
		RunID:     runID,
		Stage:     stage,
		Message:   fmt.Sprintf("Starting %s", stage),
		Timestamp: time.Now(),
	}
}

// StageFinishedEvent создаёт событие о завершении стадии.
func StageFinishedEvent(runID, stage string) Event {
	return Event{
		Type:      EventTypeLog,
		RunID:     runID,
		Stage:     stage,
		Message:   fmt.Sprintf("Finished %s", stage),
		Timestamp: time.Now(),
	}
}

// PipelineDoneEvent создаёт терминальное событие run.
func PipelineDoneEvent(runID string) Event {
	return Event{
		Type:      EventTypePipelineDone,
		RunID:     runID,
		Timestamp: time.Now(),
	}
}

// ManualEvent создаёт диагностическое событие, не связанное с run.
func ManualEvent() Event {
	return Event{
		Type:      EventTypeLog,
		RunID:     ManualRunID,
		Stage:     ManualRunID,
		Message:   "Manual emit test",
		Timestamp: time.Now(),
	}
}

// Payload возвращает wire-представление события.
func (e Event) Payload() any {
	if e.Type == EventTypePipelineDone {
		return DonePayload{PID: e.RunID}
	}
	return LogPayload{PID: e.RunID, Stage: e.Stage, Msg: e.Message}
}
