package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/steps"
	"github.com/shaiso/Stepflow/internal/telemetry"
)

// Сообщения, которые движок пишет в лог run.
const (
	msgExecutingStep  = "Executing step: %s"
	msgStepCompleted  = "Step completed successfully"
	msgStepFailed     = "Step failed: %s"
	msgRunSucceeded   = "Workflow execution completed successfully"
	msgRunFailed      = "Workflow execution failed: %s"
	unknownStepMetric = "unknown"
)

// RunStore — хранилище состояния run.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	Update(ctx context.Context, run *domain.Run) error
}

// LogSink — append-only хранилище записей лога run.
type LogSink interface {
	Append(ctx context.Context, entry *domain.LogEntry) error
}

// Notifier получает уведомление о завершении run (например, RabbitMQ).
type Notifier interface {
	NotifyRunFinished(ctx context.Context, run *domain.Run) error
}

// Engine выполняет шаги workflow последовательно.
//
// Engine не хранит состояние между вызовами Execute: всё, что относится
// к конкретному run, живёт в локальных переменных вызова. Поэтому один
// Engine безопасно использовать для параллельных независимых runs.
type Engine struct {
	runs     RunStore
	logs     LogSink
	registry *steps.Registry
	clock    steps.Clock
	notifier Notifier
	logger   *slog.Logger
}

// Config — конфигурация Engine.
type Config struct {
	Runs RunStore
	Logs LogSink

	// Registry — реестр executor'ов (опционально; если nil — steps.DefaultRegistry()).
	Registry *steps.Registry

	// Clock — часы и ожидание (опционально; если nil — steps.SystemClock).
	Clock steps.Clock

	// Notifier — уведомление о завершении run (опционально).
	Notifier Notifier

	Logger *slog.Logger
}

// New создаёт новый Engine.
func New(cfg Config) *Engine {
	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = steps.SystemClock{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		runs:     cfg.Runs,
		logs:     cfg.Logs,
		registry: registry,
		clock:    clock,
		notifier: cfg.Notifier,
		logger:   logger,
	}
}

// Execute выполняет шаги workflow и возвращает run в финальном статусе.
//
// Шаги выполняются по возрастанию Order. Первая ошибка шага прерывает
// выполнение оставшихся шагов, run становится FAILED. Ошибки шагов
// не возвращаются вызывающему: о них говорят статус run и его лог.
//
// Начатый run не прерывается отменой ctx: шаги ограничены собственными
// таймаутами, а из ctx берутся только значения.
//
// error возвращается только если хранилище не смогло создать run
// (тогда run == nil) или сохранить финальный статус (тогда run уже
// финальный в памяти).
func (e *Engine) Execute(ctx context.Context, workflowID uuid.UUID, stepDefs []domain.Step) (*domain.Run, error) {
	ctx = context.WithoutCancel(ctx)

	run := domain.NewRun(workflowID, e.clock.Now())
	if err := e.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	logger := telemetry.WithWorkflowID(telemetry.WithRunID(e.logger, run.ID.String()), workflowID.String())
	logger.Info("run started", "steps", len(stepDefs))

	rec := &recorder{
		sink:   e.logs,
		clock:  e.clock,
		logger: logger,
		runID:  run.ID,
		last:   run.StartedAt,
	}

	var failure error
	for _, step := range domain.SortSteps(stepDefs) {
		if err := e.executeStep(ctx, rec, step); err != nil {
			failure = err
			break
		}
	}

	if failure == nil {
		run.MarkSucceeded(rec.now())
	} else {
		run.MarkFailed(rec.now(), failure.Error())
	}

	updateErr := e.runs.Update(ctx, run)
	if updateErr != nil {
		logger.Error("failed to persist run status", "status", run.Status, "error", updateErr)
	}

	if failure == nil {
		rec.log(ctx, nil, domain.LogLevelInfo, msgRunSucceeded)
	} else {
		rec.log(ctx, nil, domain.LogLevelError, fmt.Sprintf(msgRunFailed, failure.Error()))
	}

	telemetry.RecordRun(string(run.Status), run.Duration())
	logger.Info("run finished",
		"status", run.Status,
		"duration", run.Duration(),
		"error", run.Error,
	)

	if e.notifier != nil {
		if err := e.notifier.NotifyRunFinished(ctx, run); err != nil {
			// Не фатально: run уже сохранён
			logger.Warn("failed to notify run finished", "error", err)
		}
	}

	if updateErr != nil {
		return run, fmt.Errorf("update run: %w", updateErr)
	}
	return run, nil
}

// executeStep выполняет один шаг и пишет его лог.
func (e *Engine) executeStep(ctx context.Context, rec *recorder, step domain.Step) error {
	rec.log(ctx, &step.ID, domain.LogLevelInfo, fmt.Sprintf(msgExecutingStep, step.Type))

	started := e.clock.Now()
	err := e.dispatch(ctx, rec, step)
	elapsed := e.clock.Now().Sub(started)

	metricType := string(step.Type)
	if !e.registry.Has(step.Type) {
		metricType = unknownStepMetric
	}

	if err != nil {
		rec.log(ctx, &step.ID, domain.LogLevelError, fmt.Sprintf(msgStepFailed, err.Error()))
		telemetry.RecordStep(metricType, telemetry.OutcomeFailed, elapsed)
		return err
	}

	rec.log(ctx, &step.ID, domain.LogLevelInfo, msgStepCompleted)
	telemetry.RecordStep(metricType, telemetry.OutcomeSucceeded, elapsed)
	return nil
}

// dispatch находит executor по типу шага и вызывает его.
// Паника executor'а превращается в ошибку шага.
func (e *Engine) dispatch(ctx context.Context, rec *recorder, step domain.Step) (err error) {
	executor, err := e.registry.Get(step.Type)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			telemetry.WithStepID(rec.logger, step.ID.String()).Error("step executor panicked",
				"type", step.Type,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", steps.ErrStepPanicked, p)
		}
	}()

	stepID := step.ID
	logFn := func(level domain.LogLevel, message string) {
		rec.log(ctx, &stepID, level, message)
	}

	return executor.Execute(ctx, steps.NewRequest(step.ID, step.Config, logFn, e.clock))
}
