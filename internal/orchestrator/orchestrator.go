package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/pipesim/internal/domain"
	"github.com/shaiso/pipesim/internal/telemetry"
)

// RunRepository — операции хранилища, нужные контроллеру.
type RunRepository interface {
	Create(ctx context.Context, payload map[string]any) (*domain.Run, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context) ([]domain.Run, error)
	Count(ctx context.Context) int
}

// RunDriver выполняет стадии одного run до конца.
type RunDriver interface {
	Run(ctx context.Context, runID uuid.UUID) error
}

// Orchestrator — публичная точка входа для запуска runs.
//
// StartRun создаёт run, запускает Driver в отдельной горутине
// и сразу возвращает ID, не дожидаясь завершения. Все запущенные
// горутины учитываются, поэтому Stop может дождаться их или отменить.
type Orchestrator struct {
	repo   RunRepository
	driver RunDriver

	// Active runs — runs, для которых driver ещё работает
	active map[uuid.UUID]struct{}
	mu     sync.Mutex

	// Lifecycle
	logger     *slog.Logger
	baseCtx    context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
}

// Config — конфигурация Orchestrator.
type Config struct {
	Repo   RunRepository
	Driver RunDriver
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Контекст driver'ов принадлежит контроллеру, а не запросу:
	// run должен пережить HTTP-запрос, который его создал.
	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		repo:       cfg.Repo,
		driver:     cfg.Driver,
		active:     make(map[uuid.UUID]struct{}),
		logger:     logger,
		baseCtx:    ctx,
		cancelFunc: cancel,
	}
}

// PendingRun — созданный run, driver которого ждёт Launch.
type PendingRun struct {
	ID uuid.UUID

	release chan struct{}
	once    sync.Once
}

// Launch отпускает driver. Повторные вызовы ничего не делают.
func (p *PendingRun) Launch() {
	p.once.Do(func() { close(p.release) })
}

// CreateRun создаёт run и готовит его driver, но не запускает его.
//
// До вызова Launch по run не публикуется ни одного события, поэтому
// вызывающий может сначала отдать ID клиенту. Launch обязателен:
// не запущенный run держит Stop до отмены контекста остановки.
// payload не используется симуляцией и сохраняется в run как есть.
func (o *Orchestrator) CreateRun(ctx context.Context, payload map[string]any) (*PendingRun, error) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil, ErrOrchestratorStopped
	}

	run, err := o.repo.Create(ctx, payload)
	if err != nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("create run: %w", err)
	}

	o.active[run.ID] = struct{}{}
	o.wg.Add(1)
	o.mu.Unlock()

	o.logger.Info("run accepted",
		"run_id", run.ID,
		"payload_keys", slices.Sorted(maps.Keys(payload)),
		"total_runs", o.repo.Count(ctx),
	)
	telemetry.RunsStarted.Inc()

	pending := &PendingRun{ID: run.ID, release: make(chan struct{})}
	go o.drive(run.ID, pending.release)

	return pending, nil
}

// StartRun создаёт run и сразу запускает его driver, не дожидаясь завершения.
//
// Driver работает параллельно с возвратом из StartRun: первое событие
// run может быть опубликовано до того, как вызывающий получит ID.
// Если ID нужно отдать раньше событий, используйте CreateRun и Launch.
func (o *Orchestrator) StartRun(ctx context.Context, payload map[string]any) (uuid.UUID, error) {
	pending, err := o.CreateRun(ctx, payload)
	if err != nil {
		return uuid.Nil, err
	}
	pending.Launch()
	return pending.ID, nil
}

// drive выполняет driver для одного run.
func (o *Orchestrator) drive(runID uuid.UUID, release <-chan struct{}) {
	defer o.wg.Done()
	defer o.removeActive(runID)

	telemetry.ActiveRuns.Inc()
	defer telemetry.ActiveRuns.Dec()

	// Отмена при остановке снимает ожидание: driver сразу переведёт run в cancelled
	select {
	case <-release:
	case <-o.baseCtx.Done():
	}

	if err := o.driver.Run(o.baseCtx, runID); err != nil {
		o.logger.Warn("driver stopped early", "run_id", runID, "error", err)
	}
}

// ListRuns возвращает снимки всех runs.
func (o *Orchestrator) ListRuns(ctx context.Context) ([]domain.Run, error) {
	runs, err := o.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun возвращает снимок run. Неизвестный ID — repo.ErrNotFound.
func (o *Orchestrator) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ActiveRuns возвращает количество работающих driver'ов.
func (o *Orchestrator) ActiveRuns() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}

// Stop перестаёт принимать новые runs и ждёт работающие driver'ы.
//
// Если ctx завершится раньше, оставшиеся driver'ы отменяются,
// и Stop дожидается их выхода. В этом случае возвращается ctx.Err().
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	active := len(o.active)
	o.mu.Unlock()

	o.logger.Info("stopping orchestrator...", "active_runs", active)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Warn("drain timeout, cancelling drivers", "active_runs", o.ActiveRuns())
		o.cancelFunc()
		<-done
		err = ctx.Err()
	}
	o.cancelFunc()

	o.logger.Info("orchestrator stopped")
	return err
}

func (o *Orchestrator) removeActive(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, runID)
}
