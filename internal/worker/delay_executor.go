package worker

import (
	"context"
	"time"
)

// DelayExecutor ждёт фиксированное время. Побочных эффектов нет.
type DelayExecutor struct {
	// Delay — длительность стадии (default: 1s).
	Delay time.Duration

	// PerStage переопределяет Delay для отдельных стадий.
	PerStage map[string]time.Duration
}

// Execute выполняет задержку с учётом отмены context.
func (e *DelayExecutor) Execute(ctx context.Context, stage string) error {
	delay := e.Delay
	if d, ok := e.PerStage[stage]; ok {
		delay = d
	}
	if delay <= 0 {
		delay = defaultStageDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
