package worker

import "context"

// Executor — имитация работы одной стадии.
//
// Реализация не должна держать общих блокировок и обязана
// прерываться по отмене ctx. Возврат ошибки прерывает run.
type Executor interface {
	Execute(ctx context.Context, stage string) error
}

// ExecutorFunc — адаптер функции к Executor.
type ExecutorFunc func(ctx context.Context, stage string) error

// Execute вызывает f(ctx, stage).
func (f ExecutorFunc) Execute(ctx context.Context, stage string) error {
	return f(ctx, stage)
}
