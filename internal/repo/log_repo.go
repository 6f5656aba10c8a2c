package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Stepflow/internal/domain"
)

// Размер страницы логов по умолчанию и максимальный.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// LogFilter — параметры постраничного чтения логов.
type LogFilter struct {
	RunID  *uuid.UUID
	Limit  int
	Offset int
}

// LogRepo — append-only репозиторий логов runs.
type LogRepo struct {
	pool *pgxpool.Pool
}

// NewLogRepo создаёт новый LogRepo.
func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

// Append добавляет запись в лог. entry.ID заполняется базой.
func (r *LogRepo) Append(ctx context.Context, entry *domain.LogEntry) error {
	query := `
		INSERT INTO run_logs (run_id, step_id, level, message, logged_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		entry.RunID,
		nullUUID(entry.StepID),
		entry.Level,
		entry.Message,
		entry.LoggedAt,
	).Scan(&entry.ID)
	if err != nil {
		return wrapWriteError("insert run log", err)
	}
	return nil
}

// ListByRun возвращает лог run в порядке записи.
func (r *LogRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.LogEntry, error) {
	query := `
		SELECT id, run_id, step_id, level, message, logged_at
		FROM run_logs
		WHERE run_id = $1
		ORDER BY logged_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.StepID, &e.Level, &e.Message, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// List возвращает страницу логов, новые первыми, и общее число записей.
func (r *LogRepo) List(ctx context.Context, filter LogFilter) ([]domain.LogEntry, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM run_logs WHERE ($1::uuid IS NULL OR run_id = $1)
	`, nullUUID(filter.RunID)).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count run logs: %w", err)
	}

	query := `
		SELECT id, run_id, step_id, level, message, logged_at
		FROM run_logs
		WHERE ($1::uuid IS NULL OR run_id = $1)
		ORDER BY logged_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.RunID),
		normalizeLimit(filter.Limit),
		max(filter.Offset, 0),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.StepID, &e.Level, &e.Message, &e.LoggedAt); err != nil {
			return nil, 0, fmt.Errorf("scan run log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// normalizeLimit приводит limit к диапазону [1, MaxPageSize].
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
