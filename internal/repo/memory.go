package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
)

// MemoryDB — хранилище в памяти с той же семантикой, что и PostgreSQL:
// каскадное удаление workflow, обнуление step_id в логах при удалении
// шага, перенумерация шагов.
//
// Используется командой `stepflow exec` и в тестах. Безопасна для
// конкурентного использования.
type MemoryDB struct {
	mu        sync.RWMutex
	workflows map[uuid.UUID]domain.Workflow
	steps     map[uuid.UUID][]domain.Step
	runs      map[uuid.UUID]domain.Run
	logs      []domain.LogEntry
	schedules map[uuid.UUID]domain.Schedule
	nextLogID int64
}

// NewMemoryDB создаёт пустую MemoryDB.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		workflows: make(map[uuid.UUID]domain.Workflow),
		steps:     make(map[uuid.UUID][]domain.Step),
		runs:      make(map[uuid.UUID]domain.Run),
		schedules: make(map[uuid.UUID]domain.Schedule),
	}
}

// Workflows возвращает репозиторий workflows и steps.
func (db *MemoryDB) Workflows() *MemoryWorkflowRepo { return &MemoryWorkflowRepo{db: db} }

// Runs возвращает репозиторий runs.
func (db *MemoryDB) Runs() *MemoryRunRepo { return &MemoryRunRepo{db: db} }

// Logs возвращает репозиторий логов.
func (db *MemoryDB) Logs() *MemoryLogRepo { return &MemoryLogRepo{db: db} }

// Schedules возвращает репозиторий schedules.
func (db *MemoryDB) Schedules() *MemoryScheduleRepo { return &MemoryScheduleRepo{db: db} }

// --- Workflows ---

// MemoryWorkflowRepo — аналог WorkflowRepo в памяти.
type MemoryWorkflowRepo struct {
	db *MemoryDB
}

func (r *MemoryWorkflowRepo) Create(_ context.Context, wf *domain.Workflow) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.workflows[wf.ID]; ok {
		return fmt.Errorf("%w: workflow %s", ErrAlreadyExists, wf.ID)
	}
	r.db.workflows[wf.ID] = *wf
	return nil
}

func (r *MemoryWorkflowRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	wf, ok := r.db.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &wf, nil
}

func (r *MemoryWorkflowRepo) List(_ context.Context) ([]domain.WorkflowSummary, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]domain.WorkflowSummary, 0, len(r.db.workflows))
	for id, wf := range r.db.workflows {
		out = append(out, domain.WorkflowSummary{Workflow: wf, StepCount: len(r.db.steps[id])})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *MemoryWorkflowRepo) Update(_ context.Context, wf *domain.Workflow) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	existing, ok := r.db.workflows[wf.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name = wf.Name
	existing.Description = wf.Description
	existing.UpdatedAt = wf.UpdatedAt
	r.db.workflows[wf.ID] = existing
	return nil
}

func (r *MemoryWorkflowRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(r.db.workflows, id)
	delete(r.db.steps, id)

	removedRuns := make(map[uuid.UUID]bool)
	for runID, run := range r.db.runs {
		if run.WorkflowID == id {
			removedRuns[runID] = true
			delete(r.db.runs, runID)
		}
	}

	kept := r.db.logs[:0]
	for _, e := range r.db.logs {
		if !removedRuns[e.RunID] {
			kept = append(kept, e)
		}
	}
	r.db.logs = kept

	for schedID, s := range r.db.schedules {
		if s.WorkflowID == id {
			delete(r.db.schedules, schedID)
		}
	}
	return nil
}

func (r *MemoryWorkflowRepo) AddStep(_ context.Context, step *domain.Step) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.workflows[step.WorkflowID]; !ok {
		return ErrNotFound
	}

	steps := r.db.steps[step.WorkflowID]
	step.Order = len(steps)
	stored := *step
	stored.Config = copyConfig(step.Config)
	r.db.steps[step.WorkflowID] = append(steps, stored)
	r.db.touch(step.WorkflowID)
	return nil
}

func (r *MemoryWorkflowRepo) ListSteps(_ context.Context, workflowID uuid.UUID) ([]domain.Step, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	steps := r.db.steps[workflowID]
	out := make([]domain.Step, len(steps))
	for i, s := range steps {
		out[i] = s
		out[i].Config = copyConfig(s.Config)
	}
	return out, nil
}

func (r *MemoryWorkflowRepo) MoveStep(_ context.Context, workflowID, stepID uuid.UUID, dir domain.Direction) error {
	if !dir.IsValid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidState, dir)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.workflows[workflowID]; !ok {
		return ErrNotFound
	}

	steps := r.db.steps[workflowID]
	idx := indexOfStep(steps, stepID)
	if idx < 0 {
		return ErrNotFound
	}

	target := idx - 1
	if dir == domain.DirectionDown {
		target = idx + 1
	}
	if target < 0 || target >= len(steps) {
		return nil
	}

	steps[idx], steps[target] = steps[target], steps[idx]
	renumber(steps)
	r.db.touch(workflowID)
	return nil
}

func (r *MemoryWorkflowRepo) DeleteStep(_ context.Context, workflowID, stepID uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.workflows[workflowID]; !ok {
		return ErrNotFound
	}

	steps := r.db.steps[workflowID]
	idx := indexOfStep(steps, stepID)
	if idx < 0 {
		return ErrNotFound
	}

	steps = append(steps[:idx], steps[idx+1:]...)
	renumber(steps)
	r.db.steps[workflowID] = steps

	for i := range r.db.logs {
		if r.db.logs[i].StepID != nil && *r.db.logs[i].StepID == stepID {
			r.db.logs[i].StepID = nil
		}
	}
	r.db.touch(workflowID)
	return nil
}

// --- Runs ---

// MemoryRunRepo — аналог RunRepo в памяти.
type MemoryRunRepo struct {
	db *MemoryDB
}

func (r *MemoryRunRepo) Create(_ context.Context, run *domain.Run) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.workflows[run.WorkflowID]; !ok {
		return fmt.Errorf("%w: workflow %s", ErrNotFound, run.WorkflowID)
	}
	if _, ok := r.db.runs[run.ID]; ok {
		return fmt.Errorf("%w: run %s", ErrAlreadyExists, run.ID)
	}
	r.db.runs[run.ID] = copyRun(*run)
	return nil
}

func (r *MemoryRunRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	run, ok := r.db.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	run = copyRun(run)
	return &run, nil
}

func (r *MemoryRunRepo) ListByWorkflow(_ context.Context, workflowID uuid.UUID, limit int) ([]domain.Run, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []domain.Run
	for _, run := range r.db.runs {
		if run.WorkflowID == workflowID {
			out = append(out, copyRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRunRepo) Update(_ context.Context, run *domain.Run) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	existing, ok := r.db.runs[run.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Status.IsTerminal() {
		return fmt.Errorf("%w: run %s already finished", ErrInvalidState, run.ID)
	}
	existing.Status = run.Status
	existing.CompletedAt = run.CompletedAt
	existing.Error = run.Error
	r.db.runs[run.ID] = copyRun(existing)
	return nil
}

// --- Logs ---

// MemoryLogRepo — аналог LogRepo в памяти.
type MemoryLogRepo struct {
	db *MemoryDB
}

func (r *MemoryLogRepo) Append(_ context.Context, entry *domain.LogEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.runs[entry.RunID]; !ok {
		return fmt.Errorf("%w: run %s", ErrNotFound, entry.RunID)
	}

	r.db.nextLogID++
	entry.ID = r.db.nextLogID

	stored := *entry
	if entry.StepID != nil {
		id := *entry.StepID
		stored.StepID = &id
	}
	r.db.logs = append(r.db.logs, stored)
	return nil
}

func (r *MemoryLogRepo) ListByRun(_ context.Context, runID uuid.UUID) ([]domain.LogEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []domain.LogEntry
	for _, e := range r.db.logs {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LoggedAt.Equal(out[j].LoggedAt) {
			return out[i].LoggedAt.Before(out[j].LoggedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryLogRepo) List(_ context.Context, filter LogFilter) ([]domain.LogEntry, int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var all []domain.LogEntry
	for _, e := range r.db.logs {
		if filter.RunID == nil || e.RunID == *filter.RunID {
			all = append(all, e)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].LoggedAt.Equal(all[j].LoggedAt) {
			return all[i].LoggedAt.After(all[j].LoggedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)
	offset := min(max(filter.Offset, 0), total)
	end := min(offset+normalizeLimit(filter.Limit), total)
	return all[offset:end], total, nil
}

// --- Schedules ---

// MemoryScheduleRepo — аналог ScheduleRepo в памяти.
type MemoryScheduleRepo struct {
	db *MemoryDB
}

func (r *MemoryScheduleRepo) Create(_ context.Context, schedule *domain.Schedule) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.workflows[schedule.WorkflowID]; !ok {
		return fmt.Errorf("%w: workflow %s", ErrNotFound, schedule.WorkflowID)
	}
	r.db.schedules[schedule.ID] = *schedule
	return nil
}

func (r *MemoryScheduleRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	s, ok := r.db.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *MemoryScheduleRepo) List(_ context.Context, filter ScheduleFilter) ([]domain.Schedule, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []domain.Schedule
	for _, s := range r.db.schedules {
		if filter.WorkflowID != nil && s.WorkflowID != *filter.WorkflowID {
			continue
		}
		if filter.Enabled != nil && s.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	offset := min(max(filter.Offset, 0), len(out))
	end := min(offset+normalizeLimit(filter.Limit), len(out))
	return out[offset:end], nil
}

func (r *MemoryScheduleRepo) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []domain.Schedule
	for _, s := range r.db.schedules {
		if s.IsDue(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextDueAt.Before(*out[j].NextDueAt)
	})

	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryScheduleRepo) Update(_ context.Context, schedule *domain.Schedule) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.schedules[schedule.ID]; !ok {
		return ErrNotFound
	}
	r.db.schedules[schedule.ID] = *schedule
	return nil
}

func (r *MemoryScheduleRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.schedules[id]; !ok {
		return ErrNotFound
	}
	delete(r.db.schedules, id)
	return nil
}

// --- Helpers ---

// touch обновляет updated_at workflow. Вызывается под mu.
func (db *MemoryDB) touch(id uuid.UUID) {
	wf := db.workflows[id]
	wf.UpdatedAt = time.Now().UTC()
	db.workflows[id] = wf
}

func indexOfStep(steps []domain.Step, id uuid.UUID) int {
	for i, s := range steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func renumber(steps []domain.Step) {
	for i := range steps {
		steps[i].Order = i
	}
}

func copyConfig(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = v
	}
	return out
}

func copyRun(run domain.Run) domain.Run {
	if run.CompletedAt != nil {
		at := *run.CompletedAt
		run.CompletedAt = &at
	}
	return run
}
