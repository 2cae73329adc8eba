package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCESS
//	                  ↘ CANCELLED (остановка процесса во время выполнения)
type RunStatus string

const (
	// RunStatusPending — run создан, но driver ещё не стартовал.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "running"

	// RunStatusSuccess — все стадии завершены.
	RunStatusSuccess RunStatus = "success"

	// RunStatusCancelled — driver был отменён до завершения всех стадий.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// StageStatus — статус отдельной стадии внутри run.
//
// Жизненный цикл:
//
//	RUNNING → DONE
type StageStatus string

const (
	// StageStatusRunning — стадия выполняется.
	StageStatusRunning StageStatus = "running"

	// StageStatusDone — стадия завершена.
	StageStatusDone StageStatus = "done"
)
