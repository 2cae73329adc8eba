package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/pipesim/internal/domain"
)

// RunRepo — in-memory хранилище runs.
//
// Единственный владелец состояния runs. Все изменения выполняются
// под одним мьютексом, поэтому читатель никогда не видит
// наполовину записанную стадию. Наружу отдаются только копии.
// Данные живут до завершения процесса.
type RunRepo struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*domain.Run
	order []uuid.UUID
}

// NewRunRepo создаёт пустой RunRepo.
func NewRunRepo() *RunRepo {
	return &RunRepo{
		runs: make(map[uuid.UUID]*domain.Run),
	}
}

// Create создаёт новый run в статусе RUNNING и возвращает его копию.
func (r *RunRepo) Create(ctx context.Context, payload map[string]any) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := domain.NewRun(payload)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return nil, fmt.Errorf("%w: run %s", ErrAlreadyExists, run.ID)
	}
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)

	snapshot := run.Clone()
	return &snapshot, nil
}

// GetByID возвращает копию run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}

	snapshot := run.Clone()
	return &snapshot, nil
}

// List возвращает копии всех runs в порядке создания.
func (r *RunRepo) List(ctx context.Context) ([]domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]domain.Run, 0, len(r.order))
	for _, id := range r.order {
		runs = append(runs, r.runs[id].Clone())
	}
	return runs, nil
}

// Count возвращает количество runs.
func (r *RunRepo) Count(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// AppendStage добавляет стадию в статусе RUNNING.
func (r *RunRepo) AppendStage(ctx context.Context, id uuid.UUID, stage string) error {
	return r.update(id, func(run *domain.Run) error {
		if run.IsFinished() {
			return fmt.Errorf("%w: run %s is %s", ErrInvalidState, id, run.Status)
		}
		if cur, ok := run.CurrentStage(); ok {
			return fmt.Errorf("%w: stage %s still running", ErrInvalidState, cur.Name)
		}
		run.StartStage(stage)
		return nil
	})
}

// CompleteStage помечает последнюю стадию как DONE.
func (r *RunRepo) CompleteStage(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(run *domain.Run) error {
		cur, ok := run.CurrentStage()
		if !ok {
			return fmt.Errorf("%w: run %s has no running stage", ErrInvalidState, id)
		}
		cur.MarkDone()
		return nil
	})
}

// Finish переводит run в статус SUCCESS.
func (r *RunRepo) Finish(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(run *domain.Run) error {
		if run.IsFinished() {
			return fmt.Errorf("%w: run %s is %s", ErrInvalidState, id, run.Status)
		}
		if cur, ok := run.CurrentStage(); ok {
			return fmt.Errorf("%w: stage %s still running", ErrInvalidState, cur.Name)
		}
		run.MarkSucceeded()
		return nil
	})
}

// Cancel переводит незавершённый run в статус CANCELLED.
func (r *RunRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(run *domain.Run) error {
		if run.IsFinished() {
			return fmt.Errorf("%w: run %s is %s", ErrInvalidState, id, run.Status)
		}
		run.MarkCancelled()
		return nil
	})
}

// update применяет fn к run под эксклюзивной блокировкой.
func (r *RunRepo) update(id uuid.UUID, fn func(run *domain.Run) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return fn(run)
}
