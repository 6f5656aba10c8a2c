package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Stepflow/internal/domain"
)

// WorkflowRepo — репозиторий для работы с workflows и их steps.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// --- Workflow CRUD ---

// Create создаёт новый workflow.
func (r *WorkflowRepo) Create(ctx context.Context, wf *domain.Workflow) error {
	query := `
		INSERT INTO workflows (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		wf.ID,
		wf.Name,
		wf.Description,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("insert workflow", err)
	}
	return nil
}

// GetByID возвращает workflow по ID.
func (r *WorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`
	var wf domain.Workflow
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&wf.ID,
		&wf.Name,
		&wf.Description,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow by id: %w", err)
	}
	return &wf, nil
}

// List возвращает все workflows с количеством шагов, новые первыми.
func (r *WorkflowRepo) List(ctx context.Context) ([]domain.WorkflowSummary, error) {
	query := `
		SELECT w.id, w.name, w.description, w.created_at, w.updated_at,
		       (SELECT COUNT(*) FROM steps s WHERE s.workflow_id = w.id)
		FROM workflows w
		ORDER BY w.created_at DESC, w.id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.WorkflowSummary
	for rows.Next() {
		var s domain.WorkflowSummary
		if err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.Description,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.StepCount,
		); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, s)
	}
	return workflows, rows.Err()
}

// Update обновляет имя и описание workflow.
func (r *WorkflowRepo) Update(ctx context.Context, wf *domain.Workflow) error {
	query := `
		UPDATE workflows
		SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, wf.ID, wf.Name, wf.Description, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет workflow вместе с шагами, runs, логами и расписаниями.
func (r *WorkflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Steps ---

// AddStep добавляет шаг в конец workflow.
// step.Order выставляется репозиторием.
func (r *WorkflowRepo) AddStep(ctx context.Context, step *domain.Step) error {
	configJSON, err := marshalConfig(step.Config)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockWorkflow(ctx, tx, step.WorkflowID); err != nil {
			return err
		}

		var nextOrder int
		err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(step_order) + 1, 0)
			FROM steps
			WHERE workflow_id = $1
		`, step.WorkflowID).Scan(&nextOrder)
		if err != nil {
			return fmt.Errorf("get next step order: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO steps (id, workflow_id, type, config, step_order, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, step.ID, step.WorkflowID, step.Type, configJSON, nextOrder, step.CreatedAt)
		if err != nil {
			return wrapWriteError("insert step", err)
		}

		step.Order = nextOrder
		return touchWorkflow(ctx, tx, step.WorkflowID)
	})
}

// ListSteps возвращает шаги workflow в порядке выполнения.
func (r *WorkflowRepo) ListSteps(ctx context.Context, workflowID uuid.UUID) ([]domain.Step, error) {
	query := `
		SELECT id, workflow_id, type, config, step_order, created_at
		FROM steps
		WHERE workflow_id = $1
		ORDER BY step_order ASC
	`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		var s domain.Step
		var configJSON []byte
		if err := rows.Scan(
			&s.ID,
			&s.WorkflowID,
			&s.Type,
			&configJSON,
			&s.Order,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if err := json.Unmarshal(configJSON, &s.Config); err != nil {
			return nil, fmt.Errorf("unmarshal step config: %w", err)
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// MoveStep меняет шаг местами с соседом сверху или снизу.
// Шаг на границе списка остаётся на месте.
func (r *WorkflowRepo) MoveStep(ctx context.Context, workflowID, stepID uuid.UUID, dir domain.Direction) error {
	if !dir.IsValid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidState, dir)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockWorkflow(ctx, tx, workflowID); err != nil {
			return err
		}

		order, err := stepOrder(ctx, tx, workflowID, stepID)
		if err != nil {
			return err
		}

		target := order - 1
		if dir == domain.DirectionDown {
			target = order + 1
		}

		var neighborID uuid.UUID
		err = tx.QueryRow(ctx, `
			SELECT id FROM steps WHERE workflow_id = $1 AND step_order = $2
		`, workflowID, target).Scan(&neighborID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get neighbor step: %w", err)
		}

		// Уникальность (workflow_id, step_order) проверяется при COMMIT
		if _, err := tx.Exec(ctx, `UPDATE steps SET step_order = $2 WHERE id = $1`, stepID, target); err != nil {
			return fmt.Errorf("move step: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE steps SET step_order = $2 WHERE id = $1`, neighborID, order); err != nil {
			return fmt.Errorf("move neighbor step: %w", err)
		}

		return touchWorkflow(ctx, tx, workflowID)
	})
}

// DeleteStep удаляет шаг и сдвигает последующие шаги вверх.
func (r *WorkflowRepo) DeleteStep(ctx context.Context, workflowID, stepID uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockWorkflow(ctx, tx, workflowID); err != nil {
			return err
		}

		var order int
		err := tx.QueryRow(ctx, `
			DELETE FROM steps WHERE workflow_id = $1 AND id = $2
			RETURNING step_order
		`, workflowID, stepID).Scan(&order)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("delete step: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE steps SET step_order = step_order - 1
			WHERE workflow_id = $1 AND step_order > $2
		`, workflowID, order)
		if err != nil {
			return fmt.Errorf("renumber steps: %w", err)
		}

		return touchWorkflow(ctx, tx, workflowID)
	})
}

// --- Helpers ---

// lockWorkflow блокирует строку workflow до конца транзакции,
// чтобы правки шагов одного workflow шли последовательно.
func lockWorkflow(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM workflows WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock workflow: %w", err)
	}
	return nil
}

func touchWorkflow(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(ctx, `UPDATE workflows SET updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch workflow: %w", err)
	}
	return nil
}

func stepOrder(ctx context.Context, tx pgx.Tx, workflowID, stepID uuid.UUID) (int, error) {
	var order int
	err := tx.QueryRow(ctx, `
		SELECT step_order FROM steps WHERE workflow_id = $1 AND id = $2
	`, workflowID, stepID).Scan(&order)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get step order: %w", err)
	}
	return order, nil
}

// marshalConfig сериализует config шага; nil сохраняется как {}.
func marshalConfig(config map[string]any) ([]byte, error) {
	if config == nil {
		config = map[string]any{}
	}
	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal step config: %w", err)
	}
	return data, nil
}
