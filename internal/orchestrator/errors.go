package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrOrchestratorStopped — оркестратор остановлен, новые runs не принимаются.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
