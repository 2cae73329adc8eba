package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/pipesim/internal/domain"
	"github.com/shaiso/pipesim/internal/repo"
	"github.com/shaiso/pipesim/internal/telemetry"
)

const (
	defaultStageDelay = time.Second
	tracerName        = "github.com/shaiso/pipesim/internal/worker"
)

// RunStore — операции хранилища, которые нужны driver'у.
type RunStore interface {
	AppendStage(ctx context.Context, id uuid.UUID, stage string) error
	CompleteStage(ctx context.Context, id uuid.UUID) error
	Finish(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Publisher — получатель событий стадий.
type Publisher interface {
	Publish(ev domain.Event)
}

// Driver проводит run через фиксированный каталог стадий.
//
// Один Driver обслуживает любое количество runs: вся изменяемая
// информация о run хранится в RunStore, а сам Driver после создания
// только читается. Для каждого run вызывается Run в отдельной горутине.
//
// Переходы стадии i:
//
//	AppendStage(running) → "Starting i" → Execute → CompleteStage(done) → "Finished i"
//
// После последней стадии: Finish(success) → pipeline_done.
type Driver struct {
	store     RunStore
	publisher Publisher
	executor  Executor
	stages    []string
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Config — конфигурация Driver.
type Config struct {
	Store     RunStore
	Publisher Publisher

	// Executor — имитация работы стадии.
	// Если nil — DelayExecutor со StageDelay.
	Executor Executor

	// Stages — каталог стадий (default: domain.DefaultStages).
	Stages []string

	// StageDelay — длительность стадии для DelayExecutor (default: 1s).
	StageDelay time.Duration

	Logger *slog.Logger
}

// New создаёт новый Driver.
func New(cfg Config) *Driver {
	stages := cfg.Stages
	if len(stages) == 0 {
		stages = domain.DefaultStages
	}

	executor := cfg.Executor
	if executor == nil {
		delay := cfg.StageDelay
		if delay <= 0 {
			delay = defaultStageDelay
		}
		executor = &DelayExecutor{Delay: delay}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		executor:  executor,
		stages:    slices.Clone(stages),
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Stages возвращает копию каталога стадий.
func (d *Driver) Stages() []string {
	return slices.Clone(d.stages)
}

// Run выполняет все стадии run до конца.
//
// При ошибке хранилища или отмене ctx run прерывается, и дальнейшие
// события по нему не публикуются. Если run ещё существует, он
// переводится в CANCELLED.
func (d *Driver) Run(ctx context.Context, runID uuid.UUID) error {
	pid := runID.String()
	logger := telemetry.WithRunID(d.logger, pid)

	ctx, span := d.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", pid),
			attribute.Int("run.stages", len(d.stages)),
		),
	)
	defer span.End()

	started := time.Now()
	logger.Info("run started", "stages", len(d.stages))

	for _, stage := range d.stages {
		if err := ctx.Err(); err != nil {
			return d.abort(ctx, span, logger, runID, err)
		}
		if err := d.runStage(ctx, logger, runID, stage); err != nil {
			return d.abort(ctx, span, logger, runID, err)
		}
	}

	if err := d.store.Finish(ctx, runID); err != nil {
		return d.abort(ctx, span, logger, runID, fmt.Errorf("finish run: %w", err))
	}
	d.publisher.Publish(domain.PipelineDoneEvent(pid))

	telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusSuccess)).Inc()
	logger.Info("run succeeded", "duration", time.Since(started))

	return nil
}

// runStage выполняет одну стадию.
func (d *Driver) runStage(ctx context.Context, logger *slog.Logger, runID uuid.UUID, stage string) error {
	pid := runID.String()
	logger = telemetry.WithStage(logger, stage)

	ctx, span := d.tracer.Start(ctx, "pipeline.stage",
		trace.WithAttributes(attribute.String("stage.name", stage)),
	)
	defer span.End()

	if err := d.store.AppendStage(ctx, runID, stage); err != nil {
		return fmt.Errorf("append stage %s: %w", stage, err)
	}
	d.publisher.Publish(domain.StageStartedEvent(pid, stage))
	logger.Debug("stage started")

	start := time.Now()
	if err := d.executor.Execute(ctx, stage); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %s: %w", ErrStageFailed, stage, err)
	}
	elapsed := time.Since(start)
	telemetry.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())

	if err := d.store.CompleteStage(ctx, runID); err != nil {
		return fmt.Errorf("complete stage %s: %w", stage, err)
	}
	d.publisher.Publish(domain.StageFinishedEvent(pid, stage))
	logger.Debug("stage finished", "duration", elapsed)

	return nil
}

// abort завершает run без публикации событий.
func (d *Driver) abort(ctx context.Context, span trace.Span, logger *slog.Logger, runID uuid.UUID, cause error) error {
	span.SetStatus(codes.Error, cause.Error())

	if errors.Is(cause, repo.ErrNotFound) {
		logger.Error("run vanished, driver aborted", "error", cause)
		return fmt.Errorf("%w: %s: %w", ErrRunVanished, runID, cause)
	}

	// Отмена ctx не должна мешать записать финальный статус.
	if err := d.store.Cancel(context.WithoutCancel(ctx), runID); err != nil && !errors.Is(err, repo.ErrInvalidState) {
		logger.Error("failed to mark run cancelled", "error", err)
	}
	telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusCancelled)).Inc()

	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		logger.Warn("run cancelled", "error", cause)
	} else {
		logger.Error("run aborted", "error", cause)
	}

	return cause
}
