package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/pipesim/internal/domain"
	"github.com/shaiso/pipesim/internal/events"
	"github.com/shaiso/pipesim/internal/repo"
	"github.com/shaiso/pipesim/internal/worker"
)

// stageUnit — масштабированная «секунда» стадии для тестов.
const stageUnit = 20 * time.Millisecond

type harness struct {
	repo *repo.RunRepo
	bus  *events.Broadcaster
	orch *Orchestrator
}

func newHarness(t *testing.T, exec worker.Executor) *harness {
	t.Helper()

	h := &harness{
		repo: repo.NewRunRepo(),
		bus:  events.New(events.Config{Buffer: 256}),
	}
	driver := worker.New(worker.Config{
		Store:      h.repo,
		Publisher:  h.bus,
		Executor:   exec,
		StageDelay: stageUnit,
	})
	h.orch = New(Config{Repo: h.repo, Driver: driver})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.orch.Stop(ctx)
		_ = h.bus.Close()
	})
	return h
}

// collect читает события подписки до pipeline_done нужного run.
func collect(t *testing.T, sub *events.Subscription, runID uuid.UUID) []domain.Event {
	t.Helper()

	var out []domain.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "subscription closed early")
			if ev.RunID != runID.String() {
				continue
			}
			out = append(out, ev)
			if ev.Type == domain.EventTypePipelineDone {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out waiting for run %s, got %d events", runID, len(out))
		}
	}
}

func TestStartRun_FullPipeline(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.bus.Subscribe()
	defer sub.Close()

	id, err := h.orch.StartRun(context.Background(), map[string]any{"branch": "main"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	// Сразу после StartRun run уже виден и находится в running
	run, err := h.orch.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, run.Status)
	assert.Equal(t, "main", run.Payload["branch"])

	got := collect(t, sub, id)
	require.Len(t, got, 2*len(domain.DefaultStages)+1)

	for i, stage := range domain.DefaultStages {
		assert.Equal(t, domain.LogPayload{PID: id.String(), Stage: stage, Msg: "Starting " + stage}, got[2*i].Payload())
		assert.Equal(t, domain.LogPayload{PID: id.String(), Stage: stage, Msg: "Finished " + stage}, got[2*i+1].Payload())
	}
	assert.Equal(t, domain.DonePayload{PID: id.String()}, got[len(got)-1].Payload())

	// Финальное состояние записывается до pipeline_done
	run, err = h.orch.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, run.Status)
	require.Len(t, run.Stages, len(domain.DefaultStages))
	for i, s := range run.Stages {
		assert.Equal(t, domain.DefaultStages[i], s.Name)
		assert.Equal(t, domain.StageStatusDone, s.Status)
	}
	assert.GreaterOrEqual(t, run.Duration(), time.Duration(len(domain.DefaultStages))*stageUnit)
}

func TestStartRun_UniqueIDs(t *testing.T) {
	h := newHarness(t, worker.ExecutorFunc(func(context.Context, string) error { return nil }))

	const n = 50
	ids := make(chan uuid.UUID, n)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := h.orch.StartRun(context.Background(), nil)
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uuid.UUID]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}

	runs, err := h.orch.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, n)
}

func TestStartRun_ConcurrentRunsIndependent(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.bus.Subscribe()
	defer sub.Close()

	first, err := h.orch.StartRun(context.Background(), nil)
	require.NoError(t, err)
	second, err := h.orch.StartRun(context.Background(), nil)
	require.NoError(t, err)

	perRun := map[string][]domain.Event{}
	timeout := time.After(5 * time.Second)
	for done := 0; done < 2; {
		select {
		case ev := <-sub.Events():
			perRun[ev.RunID] = append(perRun[ev.RunID], ev)
			if ev.Type == domain.EventTypePipelineDone {
				done++
			}
		case <-timeout:
			t.Fatal("timed out waiting for runs")
		}
	}

	for _, id := range []uuid.UUID{first, second} {
		evs := perRun[id.String()]
		require.Len(t, evs, 2*len(domain.DefaultStages)+1)
		for i, stage := range domain.DefaultStages {
			assert.Equal(t, "Starting "+stage, evs[2*i].Message)
			assert.Equal(t, "Finished "+stage, evs[2*i+1].Message)
		}
	}
}

func TestStartRun_LateSubscriber(t *testing.T) {
	gate := make(chan struct{})
	exec := worker.ExecutorFunc(func(ctx context.Context, _ string) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	h := newHarness(t, exec)

	early := h.bus.Subscribe()
	defer early.Close()

	id, err := h.orch.StartRun(context.Background(), nil)
	require.NoError(t, err)

	select {
	case ev := <-early.Events():
		require.Equal(t, "Starting checkout", ev.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("no first event")
	}

	// Checkout заблокирован на gate: late увидит всё, начиная с "Finished checkout"
	late := h.bus.Subscribe()
	defer late.Close()
	close(gate)

	got := collect(t, late, id)
	require.Len(t, got, 2*len(domain.DefaultStages))
	assert.Equal(t, "Finished checkout", got[0].Message)
	assert.Equal(t, domain.EventTypePipelineDone, got[len(got)-1].Type)
}

func TestStartRun_DriverSeesCreatedRun(t *testing.T) {
	r := repo.NewRunRepo()
	seen := make(chan *domain.Run, 1)
	driver := driverFunc(func(ctx context.Context, id uuid.UUID) error {
		run, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		seen <- run
		return nil
	})

	o := New(Config{Repo: r, Driver: driver})
	id, err := o.StartRun(context.Background(), nil)
	require.NoError(t, err)

	select {
	case run := <-seen:
		assert.Equal(t, id, run.ID)
		assert.Empty(t, run.Stages)
	case <-time.After(5 * time.Second):
		t.Fatal("driver not started")
	}
	require.NoError(t, o.Stop(context.Background()))
}

func TestCreateRun_NoEventsBeforeLaunch(t *testing.T) {
	h := newHarness(t, nil)

	sub := h.bus.Subscribe()
	defer sub.Close()

	pending, err := h.orch.CreateRun(context.Background(), nil)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, pending.ID)

	// Несколько стадий по времени: без Launch driver стоит
	select {
	case ev := <-sub.Events():
		t.Fatalf("event before launch: %+v", ev)
	case <-time.After(3 * stageUnit):
	}

	run, err := h.orch.GetRun(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, run.Status)
	assert.Empty(t, run.Stages)

	pending.Launch()
	pending.Launch()

	got := collect(t, sub, pending.ID)
	require.Len(t, got, 2*len(domain.DefaultStages)+1)
	assert.Equal(t, "Starting checkout", got[0].Message)
}

func TestStop_CancelsUnlaunchedRun(t *testing.T) {
	h := newHarness(t, nil)

	sub := h.bus.Subscribe()
	defer sub.Close()

	pending, err := h.orch.CreateRun(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, h.orch.Stop(ctx), context.DeadlineExceeded)
	assert.Zero(t, h.orch.ActiveRuns())

	run, err := h.orch.GetRun(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.Empty(t, run.Stages)

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestListRuns_Empty(t *testing.T) {
	h := newHarness(t, nil)

	runs, err := h.orch.ListRuns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestGetRun_NotFound(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.GetRun(context.Background(), uuid.New())
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStop_DrainsActiveRuns(t *testing.T) {
	h := newHarness(t, nil)

	id, err := h.orch.StartRun(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, h.orch.Stop(context.Background()))
	assert.Zero(t, h.orch.ActiveRuns())

	run, err := h.orch.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, run.Status)
}

func TestStop_TimeoutCancelsRuns(t *testing.T) {
	block := worker.ExecutorFunc(func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	h := newHarness(t, block)

	id, err := h.orch.StartRun(context.Background(), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		run, err := h.orch.GetRun(context.Background(), id)
		return err == nil && len(run.Stages) == 1
	}, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = h.orch.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, h.orch.ActiveRuns())

	run, err := h.orch.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
}

func TestStartRun_AfterStop(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.orch.Stop(context.Background()))
	assert.True(t, h.orch.IsStopped())

	_, err := h.orch.StartRun(context.Background(), nil)
	require.ErrorIs(t, err, ErrOrchestratorStopped)

	runs, err := h.orch.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

type driverFunc func(ctx context.Context, id uuid.UUID) error

func (f driverFunc) Run(ctx context.Context, id uuid.UUID) error { return f(ctx, id) }
