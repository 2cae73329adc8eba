package repo

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/pipesim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRepo_Create(t *testing.T) {
	r := NewRunRepo()
	ctx := context.Background()

	run, err := r.Create(ctx, map[string]any{"branch": "main"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, domain.RunStatusRunning, run.Status)
	assert.NotNil(t, run.Stages, "stages should be empty, not nil")
	assert.Empty(t, run.Stages)
	assert.Equal(t, "main", run.Payload["branch"])
	assert.Equal(t, 1, r.Count(ctx))
}

func TestRunRepo_GetByID_NotFound(t *testing.T) {
	r := NewRunRepo()

	_, err := r.GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRunRepo_List_Empty(t *testing.T) {
	r := NewRunRepo()

	runs, err := r.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestRunRepo_List_CreationOrder(t *testing.T) {
	r := NewRunRepo()
	ctx := context.Background()

	var ids []uuid.UUID
	for range 5 {
		run, err := r.Create(ctx, nil)
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 5)
	for i, run := range runs {
		assert.Equal(t, ids[i], run.ID)
	}
}

func TestRunRepo_StageLifecycle(t *testing.T) {
	r := NewRunRepo()
	ctx := context.Background()

	run, err := r.Create(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, r.AppendStage(ctx, run.ID, "checkout"))

	got, err := r.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.Stages, 1)
	assert.Equal(t, "checkout", got.Stages[0].Name)
	assert.Equal(t, domain.StageStatusRunning, got.Stages[0].Status)

	// Вторая стадия не может начаться, пока первая выполняется
	err = r.AppendStage(ctx, run.ID, "build")
	require.ErrorIs(t, err, ErrInvalidState)

	// Finish тоже запрещён при running стадии
	err = r.Finish(ctx, run.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, r.CompleteStage(ctx, run.ID))
	require.ErrorIs(t, r.CompleteStage(ctx, run.ID), ErrInvalidState)

	require.NoError(t, r.AppendStage(ctx, run.ID, "build"))
	require.NoError(t, r.CompleteStage(ctx, run.ID))
	require.NoError(t, r.Finish(ctx, run.ID))

	got, err = r.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, got.Status)
	assert.NotNil(t, got.FinishedAt)
	require.Len(t, got.Stages, 2)
	for _, s := range got.Stages {
		assert.Equal(t, domain.StageStatusDone, s.Status)
	}

	// После SUCCESS стадии не добавляются и статус не меняется
	require.ErrorIs(t, r.AppendStage(ctx, run.ID, "test"), ErrInvalidState)
	require.ErrorIs(t, r.Finish(ctx, run.ID), ErrInvalidState)
	require.ErrorIs(t, r.Cancel(ctx, run.ID), ErrInvalidState)
}

func TestRunRepo_Mutations_NotFound(t *testing.T) {
	r := NewRunRepo()
	ctx := context.Background()
	id := uuid.New()

	assert.ErrorIs(t, r.AppendStage(ctx, id, "checkout"), ErrNotFound)
	assert.ErrorIs(t, r.CompleteStage(ctx, id), ErrNotFound)
	assert.ErrorIs(t, r.Finish(ctx, id), ErrNotFound)
	assert.ErrorIs(t, r.Cancel(ctx, id), ErrNotFound)
}

func TestRunRepo_Cancel(t *testing.T) {
	r := NewRunRepo()
	ctx := context.Background()

	run, err := r.Create(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.AppendStage(ctx, run.ID, "checkout"))
	require.NoError(t, r.Cancel(ctx, run.ID))

	got, err := r.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, got.Status)
	assert.ErrorIs(t, r.AppendStage(ctx, run.ID, "build"), ErrInvalidState)
}

func TestRunRepo_SnapshotsAreIsolated(t *testing.T) {
	r := NewRunRepo()
	ctx := context.Background()

	run, err := r.Create(ctx, map[string]any{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, r.AppendStage(ctx, run.ID, "checkout"))

	before, err := r.GetByID(ctx, run.ID)
	require.NoError(t, err)
	listed, err := r.List(ctx)
	require.NoError(t, err)

	// Изменения копий не влияют на хранилище
	before.Stages[0].Status = domain.StageStatusDone
	before.Payload["k"] = "changed"

	require.NoError(t, r.CompleteStage(ctx, run.ID))
	require.NoError(t, r.AppendStage(ctx, run.ID, "build"))

	// Более поздние изменения не влияют на ранее выданные копии
	assert.Len(t, listed[0].Stages, 1)
	assert.Equal(t, domain.StageStatusRunning, listed[0].Stages[0].Status)

	after, err := r.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "v", after.Payload["k"])
	assert.Len(t, after.Stages, 2)
}

func TestRunRepo_ConcurrentAccess(t *testing.T) {
	r := NewRunRepo()
	ctx := context.Background()
	stages := domain.DefaultStages

	const writers = 8
	var wg sync.WaitGroup

	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := r.Create(ctx, nil)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			for _, s := range stages {
				if err := r.AppendStage(ctx, run.ID, s); err != nil {
					t.Errorf("append: %v", err)
					return
				}
				if err := r.CompleteStage(ctx, run.ID); err != nil {
					t.Errorf("complete: %v", err)
					return
				}
			}
			if err := r.Finish(ctx, run.ID); err != nil {
				t.Errorf("finish: %v", err)
			}
		}()
	}

	// Читатели проверяют инварианты на каждом снимке
	done := make(chan struct{})
	var readers sync.WaitGroup
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				runs, err := r.List(ctx)
				if err != nil {
					t.Errorf("list: %v", err)
					return
				}
				for _, run := range runs {
					checkSnapshot(t, run, stages)
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	readers.Wait()

	runs, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, writers)
	for _, run := range runs {
		assert.Equal(t, domain.RunStatusSuccess, run.Status)
		assert.Len(t, run.Stages, len(stages))
	}
}

func checkSnapshot(t *testing.T, run domain.Run, catalogue []string) {
	t.Helper()

	if len(run.Stages) > len(catalogue) {
		t.Errorf("run %s has %d stages, catalogue has %d", run.ID, len(run.Stages), len(catalogue))
		return
	}
	running := 0
	for i, s := range run.Stages {
		if s.Name != catalogue[i] {
			t.Errorf("stage %d: expected %s, got %s", i, catalogue[i], s.Name)
		}
		if s.Status == domain.StageStatusRunning {
			running++
			if i != len(run.Stages)-1 {
				t.Errorf("running stage %s is not the last one", s.Name)
			}
		}
	}
	if running > 1 {
		t.Errorf("run %s has %d running stages", run.ID, running)
	}
	if run.Status == domain.RunStatusSuccess && running != 0 {
		t.Errorf("run %s is success with a running stage", run.ID)
	}
}
