package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/repo"
)

const defaultBatchSize = 100

// ScheduleStore — хранилище schedules.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
}

// WorkflowLookup проверяет существование workflow.
type WorkflowLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
}

// RunRequester публикует запрос на выполнение workflow (mq.Publisher).
type RunRequester interface {
	PublishRunRequested(ctx context.Context, workflowID uuid.UUID, scheduleID *uuid.UUID) error
}

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	schedules ScheduleStore
	workflows WorkflowLookup
	requester RunRequester
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Workflows WorkflowLookup
	Requester RunRequester
	Logger    *slog.Logger

	// BatchSize — количество schedules за один тик (default: 100).
	BatchSize int

	// Now — источник времени (по умолчанию time.Now).
	Now func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		schedules: cfg.Schedules,
		workflows: cfg.Workflows,
		requester: cfg.Requester,
		logger:    logger,
		batchSize: batchSize,
		now:       now,
	}
}

// TickResult — итог одного тика.
type TickResult struct {
	Due       int
	Requested int
	Skipped   int
	Failed    int
}

// Tick выполняет один тик планировщика.
//
//  1. Находит due schedules (enabled, next_due_at <= now)
//  2. Для каждого публикует run.requested
//  3. Сдвигает next_due_at на следующий слот после now
//
// Пропущенные за время простоя слоты не догоняются: schedule
// срабатывает один раз. Ошибка одного schedule не блокирует остальные.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	now := s.now().UTC()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return TickResult{}, fmt.Errorf("list due schedules: %w", err)
	}

	result := TickResult{Due: len(schedules)}
	if len(schedules) == 0 {
		return result, nil
	}

	for i := range schedules {
		sched := &schedules[i]

		requested, err := s.processSchedule(ctx, sched, now)
		switch {
		case err != nil:
			result.Failed++
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
		case requested:
			result.Requested++
		default:
			result.Skipped++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", result.Due,
		"requested", result.Requested,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если run был запрошен.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	if _, err := s.workflows.GetByID(ctx, sched.WorkflowID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("workflow not found for schedule, skipping",
				"schedule_id", sched.ID,
				"workflow_id", sched.WorkflowID,
			)
			return false, nil
		}
		return false, fmt.Errorf("get workflow: %w", err)
	}

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		// Некорректный schedule выключаем, иначе он будет срабатывать каждый тик
		sched.Enabled = false
		sched.UpdatedAt = now
		if updErr := s.schedules.Update(ctx, sched); updErr != nil {
			return false, errors.Join(err, fmt.Errorf("disable schedule: %w", updErr))
		}
		s.logger.Warn("schedule disabled", "schedule_id", sched.ID, "reason", err)
		return false, nil
	}

	// Запрос публикуется до сдвига next_due_at: при сбое брокера
	// schedule останется due и сработает на следующем тике.
	scheduleID := sched.ID
	if err := s.requester.PublishRunRequested(ctx, sched.WorkflowID, &scheduleID); err != nil {
		return false, fmt.Errorf("publish run.requested: %w", err)
	}

	sched.RecordTrigger(now, nextDue)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return true, fmt.Errorf("update schedule: %w", err)
	}

	s.logger.Info("requested run from schedule",
		"schedule_id", sched.ID,
		"schedule_name", sched.Name,
		"workflow_id", sched.WorkflowID,
		"next_due_at", nextDue,
	)
	return true, nil
}
