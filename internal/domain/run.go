package domain

import (
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"
)

// DefaultStages — каталог стадий pipeline по умолчанию, в порядке выполнения.
var DefaultStages = []string{"checkout", "build", "test", "scan", "push", "deploy"}

// Run — экземпляр выполнения pipeline.
//
// Run создаётся Orchestrator'ом при запросе на запуск и изменяется
// только своим Driver'ом. Наружу (API, поллинг) отдаются только копии,
// полученные через Clone.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Stages — записи о стадиях в порядке каталога.
	// Только дополняется, пока run в статусе RUNNING.
	Stages []StageRecord `json:"stages"`

	// Payload — тело запроса на запуск. Симуляцией не используется.
	Payload map[string]any `json:"payload,omitempty"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (SUCCESS или CANCELLED).
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// StageRecord — состояние одной стадии внутри run.
type StageRecord struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// NewRun создаёт run в статусе RUNNING с пустым списком стадий.
func NewRun(payload map[string]any) *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.New(),
		Status:    RunStatusRunning,
		Stages:    []StageRecord{},
		Payload:   payload,
		StartedAt: &now,
		CreatedAt: now,
	}
}

// Clone возвращает глубокую копию run.
// Копия не разделяет с оригиналом ни слайс стадий, ни payload,
// включая вложенные объекты и массивы payload.
func (r *Run) Clone() Run {
	c := *r
	c.Stages = make([]StageRecord, len(r.Stages))
	copy(c.Stages, r.Stages)
	c.Payload = clonePayload(r.Payload)
	return c
}

// clonePayload копирует payload со всеми вложенными объектами и массивами.
func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	cp, err := copystructure.Copy(p)
	if err != nil {
		// Copy отказывает только на типах, которых нет в JSON
		return maps.Clone(p)
	}
	return cp.(map[string]any)
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// CurrentStage возвращает последнюю стадию, если она ещё выполняется.
func (r *Run) CurrentStage() (*StageRecord, bool) {
	if len(r.Stages) == 0 {
		return nil, false
	}
	last := &r.Stages[len(r.Stages)-1]
	if last.Status != StageStatusRunning {
		return nil, false
	}
	return last, true
}

// StartStage добавляет новую стадию в статусе RUNNING.
func (r *Run) StartStage(name string) {
	now := time.Now()
	r.Stages = append(r.Stages, StageRecord{
		Name:      name,
		Status:    StageStatusRunning,
		StartedAt: &now,
	})
}

// MarkSucceeded переводит run в статус SUCCESS.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSuccess
	r.FinishedAt = &now
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}

// MarkDone переводит стадию в статус DONE.
func (s *StageRecord) MarkDone() {
	now := time.Now()
	s.Status = StageStatusDone
	s.FinishedAt = &now
}

// Duration возвращает продолжительность стадии.
func (s *StageRecord) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}
