package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/steps"
)

// recorder пишет записи лога одного run.
//
// Время записей не убывает в пределах run, даже если часы пошли назад.
// Ошибка записи в sink не прерывает выполнение: она уходит в slog.
type recorder struct {
	sink   LogSink
	clock  steps.Clock
	logger *slog.Logger
	runID  uuid.UUID

	mu   sync.Mutex
	last time.Time
}

// now возвращает текущее время, не меньше времени последней записи.
func (r *recorder) now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.clock.Now()
	if at.Before(r.last) {
		return r.last
	}
	return at
}

func (r *recorder) log(ctx context.Context, stepID *uuid.UUID, level domain.LogLevel, message string) {
	r.mu.Lock()
	at := r.clock.Now()
	if at.Before(r.last) {
		at = r.last
	}
	r.last = at
	r.mu.Unlock()

	entry := &domain.LogEntry{
		RunID:    r.runID,
		Level:    level,
		Message:  message,
		LoggedAt: at,
	}
	if stepID != nil {
		id := *stepID
		entry.StepID = &id
	}

	if err := r.sink.Append(ctx, entry); err != nil {
		r.logger.Warn("failed to append run log",
			"level", level,
			"message", message,
			"error", err,
		)
	}
}
