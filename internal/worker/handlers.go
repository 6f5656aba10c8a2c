package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/mq"
	"github.com/shaiso/Stepflow/internal/repo"
	"github.com/shaiso/Stepflow/internal/telemetry"
)

// HandleMessage обрабатывает сообщение run.requested.
//
// Ошибка с mq.ErrPermanent отправляет сообщение в DLQ, прочие ошибки
// приводят к одному повтору.
func (w *Worker) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg.Type != mq.MessageTypeRunRequested {
		return mq.Permanent(fmt.Errorf("unexpected message type %q", msg.Type))
	}

	payload, err := mq.ParsePayload[mq.RunRequestedPayload](msg)
	if err != nil {
		return mq.Permanent(err)
	}

	logger := telemetry.WithWorkflowID(w.logger, payload.WorkflowID.String()).With("message_id", msg.ID)
	if payload.ScheduleID != nil {
		logger = logger.With("schedule_id", payload.ScheduleID.String())
	}

	run, err := w.ProcessRequest(ctx, payload)
	switch {
	case errors.Is(err, ErrNoSteps):
		// Нечего выполнять: подтверждаем без run
		logger.Warn("run request skipped", "reason", err)
		return nil
	case errors.Is(err, ErrWorkflowNotFound):
		return mq.Permanent(err)
	case err != nil && run != nil:
		// Run уже выполнен, повтор запустил бы его второй раз
		return mq.Permanent(err)
	case err != nil:
		return err
	}

	logger.Info("run request processed", "run_id", run.ID, "status", run.Status)
	return nil
}

// ProcessRequest загружает шаги workflow и выполняет их через engine.
func (w *Worker) ProcessRequest(ctx context.Context, payload mq.RunRequestedPayload) (*domain.Run, error) {
	if _, err := w.workflows.GetByID(ctx, payload.WorkflowID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, payload.WorkflowID)
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	steps, err := w.workflows.ListSteps(ctx, payload.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSteps, payload.WorkflowID)
	}

	return w.engine.Execute(ctx, payload.WorkflowID, steps)
}
