package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry — запись в логе выполнения run.
//
// Записи без StepID относятся к run целиком (старт, завершение).
// Записи упорядочены по LoggedAt, при равенстве — по ID (порядку вставки).
type LogEntry struct {
	// ID — порядковый номер записи, назначается хранилищем.
	ID int64 `json:"id"`

	// RunID — run, которому принадлежит запись.
	RunID uuid.UUID `json:"run_id"`

	// StepID — шаг, породивший запись. Nil для записей уровня run.
	StepID *uuid.UUID `json:"step_id,omitempty"`

	// Level — уровень: info, warn, error.
	Level LogLevel `json:"level"`

	// Message — человекочитаемое описание события.
	Message string `json:"message"`

	// LoggedAt — время добавления записи.
	LoggedAt time.Time `json:"logged_at"`
}

// IsRunLevel возвращает true для записей, не привязанных к шагу.
func (e *LogEntry) IsRunLevel() bool {
	return e.StepID == nil
}
