package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Stepflow/internal/domain"
)

var baseTime = time.Date(2025, 12, 29, 19, 0, 0, 0, time.UTC)

func newWorkflow(t *testing.T, db *MemoryDB, name string) *domain.Workflow {
	t.Helper()
	wf := &domain.Workflow{ID: uuid.New(), Name: name, CreatedAt: baseTime, UpdatedAt: baseTime}
	require.NoError(t, db.Workflows().Create(context.Background(), wf))
	return wf
}

func addSteps(t *testing.T, db *MemoryDB, wfID uuid.UUID, n int) []domain.Step {
	t.Helper()
	var out []domain.Step
	for i := 0; i < n; i++ {
		step := &domain.Step{
			ID:         uuid.New(),
			WorkflowID: wfID,
			Type:       domain.StepTypeDelay,
			Config:     map[string]any{"seconds": i},
		}
		require.NoError(t, db.Workflows().AddStep(context.Background(), step))
		out = append(out, *step)
	}
	return out
}

func stepIDs(steps []domain.Step) []uuid.UUID {
	ids := make([]uuid.UUID, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	return ids
}

func TestMemory_AddStepAssignsContiguousOrder(t *testing.T) {
	db := NewMemoryDB()
	wf := newWorkflow(t, db, "orders")

	added := addSteps(t, db, wf.ID, 3)
	for i, s := range added {
		assert.Equal(t, i, s.Order)
	}

	err := db.Workflows().AddStep(context.Background(), &domain.Step{ID: uuid.New(), WorkflowID: uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := db.Workflows().List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].StepCount)
}

func TestMemory_MoveStep(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	wf := newWorkflow(t, db, "move")
	s := addSteps(t, db, wf.ID, 3)

	require.NoError(t, db.Workflows().MoveStep(ctx, wf.ID, s[2].ID, domain.DirectionUp))
	got, err := db.Workflows().ListSteps(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{s[0].ID, s[2].ID, s[1].ID}, stepIDs(got))
	for i, step := range got {
		assert.Equal(t, i, step.Order)
	}

	// На границе ничего не меняется
	require.NoError(t, db.Workflows().MoveStep(ctx, wf.ID, s[0].ID, domain.DirectionUp))
	require.NoError(t, db.Workflows().MoveStep(ctx, wf.ID, s[1].ID, domain.DirectionDown))
	got, _ = db.Workflows().ListSteps(ctx, wf.ID)
	assert.Equal(t, []uuid.UUID{s[0].ID, s[2].ID, s[1].ID}, stepIDs(got))

	assert.ErrorIs(t, db.Workflows().MoveStep(ctx, wf.ID, uuid.New(), domain.DirectionUp), ErrNotFound)
	assert.ErrorIs(t, db.Workflows().MoveStep(ctx, wf.ID, s[0].ID, "sideways"), ErrInvalidState)
}

func TestMemory_DeleteStepRenumbersAndDetachesLogs(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	wf := newWorkflow(t, db, "delete")
	s := addSteps(t, db, wf.ID, 3)

	run := domain.NewRun(wf.ID, baseTime)
	require.NoError(t, db.Runs().Create(ctx, run))
	stepID := s[1].ID
	require.NoError(t, db.Logs().Append(ctx, &domain.LogEntry{
		RunID: run.ID, StepID: &stepID, Level: domain.LogLevelInfo, Message: "Executing step: delay", LoggedAt: baseTime,
	}))

	require.NoError(t, db.Workflows().DeleteStep(ctx, wf.ID, s[1].ID))

	got, err := db.Workflows().ListSteps(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{s[0].ID, s[2].ID}, stepIDs(got))
	assert.Equal(t, 1, got[1].Order)

	logs, err := db.Logs().ListByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].StepID)

	assert.ErrorIs(t, db.Workflows().DeleteStep(ctx, wf.ID, s[1].ID), ErrNotFound)
}

func TestMemory_DeleteWorkflowCascades(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	wf := newWorkflow(t, db, "cascade")
	other := newWorkflow(t, db, "other")
	addSteps(t, db, wf.ID, 2)

	run := domain.NewRun(wf.ID, baseTime)
	require.NoError(t, db.Runs().Create(ctx, run))
	require.NoError(t, db.Logs().Append(ctx, &domain.LogEntry{RunID: run.ID, Level: domain.LogLevelInfo, Message: "x", LoggedAt: baseTime}))

	otherRun := domain.NewRun(other.ID, baseTime)
	require.NoError(t, db.Runs().Create(ctx, otherRun))
	require.NoError(t, db.Logs().Append(ctx, &domain.LogEntry{RunID: otherRun.ID, Level: domain.LogLevelInfo, Message: "y", LoggedAt: baseTime}))

	require.NoError(t, db.Schedules().Create(ctx, &domain.Schedule{ID: uuid.New(), WorkflowID: wf.ID, IntervalSec: 60}))

	require.NoError(t, db.Workflows().Delete(ctx, wf.ID))

	_, err := db.Workflows().GetByID(ctx, wf.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.Runs().GetByID(ctx, run.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	logs, total, err := db.Logs().List(ctx, LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "y", logs[0].Message)

	schedules, err := db.Schedules().List(ctx, ScheduleFilter{})
	require.NoError(t, err)
	assert.Empty(t, schedules)

	assert.ErrorIs(t, db.Workflows().Delete(ctx, wf.ID), ErrNotFound)
}

func TestMemory_RunUpdateOnlyOnce(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	wf := newWorkflow(t, db, "runs")

	run := domain.NewRun(wf.ID, baseTime)
	require.NoError(t, db.Runs().Create(ctx, run))

	run.MarkSucceeded(baseTime.Add(time.Second))
	require.NoError(t, db.Runs().Update(ctx, run))

	stored, err := db.Runs().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, stored.Status)
	assert.Equal(t, time.Second, stored.Duration())

	assert.ErrorIs(t, db.Runs().Update(ctx, run), ErrInvalidState)

	_, err = db.Runs().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, db.Runs().Create(ctx, domain.NewRun(uuid.New(), baseTime)), ErrNotFound)
}

func TestMemory_ListByWorkflowNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	wf := newWorkflow(t, db, "list")

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		run := domain.NewRun(wf.ID, baseTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, db.Runs().Create(ctx, run))
		ids = append(ids, run.ID)
	}

	runs, err := db.Runs().ListByWorkflow(ctx, wf.ID, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[4], runs[0].ID)
	assert.Equal(t, ids[3], runs[1].ID)
}

func TestMemory_LogsPagination(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	wf := newWorkflow(t, db, "logs")
	run := domain.NewRun(wf.ID, baseTime)
	require.NoError(t, db.Runs().Create(ctx, run))

	// Одинаковое время: порядок определяется id
	for i := 0; i < 120; i++ {
		require.NoError(t, db.Logs().Append(ctx, &domain.LogEntry{
			RunID: run.ID, Level: domain.LogLevelInfo, Message: "m", LoggedAt: baseTime,
		}))
	}

	page, total, err := db.Logs().List(ctx, LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 120, total)
	require.Len(t, page, DefaultPageSize)
	assert.Equal(t, int64(120), page[0].ID)

	page, _, err = db.Logs().List(ctx, LogFilter{Limit: 50, Offset: 100})
	require.NoError(t, err)
	require.Len(t, page, 20)
	assert.Equal(t, int64(20), page[0].ID)

	page, _, err = db.Logs().List(ctx, LogFilter{Offset: 500})
	require.NoError(t, err)
	assert.Empty(t, page)

	ordered, err := db.Logs().ListByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ordered[0].ID)

	err = db.Logs().Append(ctx, &domain.LogEntry{RunID: uuid.New(), Level: domain.LogLevelInfo})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListDueSchedules(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	wf := newWorkflow(t, db, "schedules")

	past := baseTime.Add(-time.Minute)
	future := baseTime.Add(time.Minute)

	due := &domain.Schedule{ID: uuid.New(), WorkflowID: wf.ID, IntervalSec: 60, Enabled: true, NextDueAt: &past}
	later := &domain.Schedule{ID: uuid.New(), WorkflowID: wf.ID, IntervalSec: 60, Enabled: true, NextDueAt: &future}
	disabled := &domain.Schedule{ID: uuid.New(), WorkflowID: wf.ID, IntervalSec: 60, Enabled: false, NextDueAt: &past}
	for _, s := range []*domain.Schedule{due, later, disabled} {
		require.NoError(t, db.Schedules().Create(ctx, s))
	}

	list, err := db.Schedules().ListDue(ctx, baseTime, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)

	enabled := true
	list, err = db.Schedules().List(ctx, ScheduleFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
