package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — экземпляр выполнения workflow.
//
// Run создаётся движком в статусе RUNNING в момент запуска и переводится
// в SUCCEEDED или FAILED ровно один раз. CompletedAt заполнен тогда и
// только тогда, когда статус финальный.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на выполняемый workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// StartedAt — время создания run. Не меняется.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время перехода в финальный статус.
	// Nil, пока run выполняется.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error — причина неудачи, если run завершился с FAILED.
	Error string `json:"error,omitempty"`
}

// NewRun создаёт run в статусе RUNNING.
func NewRun(workflowID uuid.UUID, startedAt time.Time) *Run {
	return &Run{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		Status:     RunStatusRunning,
		StartedAt:  startedAt,
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// MarkSucceeded переводит run в статус SUCCEEDED.
// Возвращает false, если run уже завершён.
func (r *Run) MarkSucceeded(at time.Time) bool {
	return r.finish(RunStatusSucceeded, at, "")
}

// MarkFailed переводит run в статус FAILED с причиной.
// Возвращает false, если run уже завершён.
func (r *Run) MarkFailed(at time.Time, reason string) bool {
	return r.finish(RunStatusFailed, at, reason)
}

func (r *Run) finish(status RunStatus, at time.Time, reason string) bool {
	if r.Status.IsTerminal() {
		return false
	}
	// completed_at не может быть раньше started_at
	if at.Before(r.StartedAt) {
		at = r.StartedAt
	}
	r.Status = status
	r.CompletedAt = &at
	r.Error = reason
	return true
}
