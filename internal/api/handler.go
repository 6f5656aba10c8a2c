package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/repo"
	"github.com/shaiso/Stepflow/internal/steps"
)

// WorkflowStore — хранилище workflows и их шагов.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	List(ctx context.Context) ([]domain.WorkflowSummary, error)
	Update(ctx context.Context, wf *domain.Workflow) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddStep(ctx context.Context, step *domain.Step) error
	ListSteps(ctx context.Context, workflowID uuid.UUID) ([]domain.Step, error)
	MoveStep(ctx context.Context, workflowID, stepID uuid.UUID, dir domain.Direction) error
	DeleteStep(ctx context.Context, workflowID, stepID uuid.UUID) error
}

// RunReader — чтение runs.
type RunReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]domain.Run, error)
}

// LogReader — чтение логов runs.
type LogReader interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.LogEntry, error)
	List(ctx context.Context, filter repo.LogFilter) ([]domain.LogEntry, int, error)
}

// ScheduleStore — хранилище schedules.
type ScheduleStore interface {
	Create(ctx context.Context, schedule *domain.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	List(ctx context.Context, filter repo.ScheduleFilter) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Executor синхронно выполняет workflow (engine.Engine).
type Executor interface {
	Execute(ctx context.Context, workflowID uuid.UUID, stepDefs []domain.Step) (*domain.Run, error)
}

// RunRequester ставит run в очередь воркерам (mq.Publisher).
type RunRequester interface {
	PublishRunRequested(ctx context.Context, workflowID uuid.UUID, scheduleID *uuid.UUID) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflows WorkflowStore
	runs      RunReader
	logs      LogReader
	schedules ScheduleStore
	executor  Executor
	requester RunRequester
	registry  *steps.Registry
	now       func() time.Time
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflows WorkflowStore
	Runs      RunReader
	Logs      LogReader
	Schedules ScheduleStore
	Executor  Executor

	// Requester — очередь для асинхронных запусков (опционально).
	// Без него POST /runs?async=true отвечает 422.
	Requester RunRequester

	// Registry — реестр типов шагов для валидации (опционально).
	Registry *steps.Registry

	// Now — источник времени (опционально, для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		workflows: cfg.Workflows,
		runs:      cfg.Runs,
		logs:      cfg.Logs,
		schedules: cfg.Schedules,
		executor:  cfg.Executor,
		requester: cfg.Requester,
		registry:  registry,
		now:       now,
		logger:    logger,
	}
}
