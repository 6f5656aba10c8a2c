package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/repo"
)

var tickTime = time.Date(2025, 12, 29, 19, 0, 30, 0, time.UTC)

// --- cron ---

func TestCalculateNextDue_Cron(t *testing.T) {
	sched := &domain.Schedule{CronExpr: "*/5 * * * *", Timezone: "UTC"}

	next, err := CalculateNextDue(sched, tickTime)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 29, 19, 5, 0, 0, time.UTC), next)
}

func TestCalculateNextDue_CronTimezone(t *testing.T) {
	// 09:00 в Москве (UTC+3) = 06:00 UTC
	sched := &domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Europe/Moscow"}

	next, err := CalculateNextDue(sched, tickTime)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 30, 6, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.UTC, next.Location())
}

func TestCalculateNextDue_Interval(t *testing.T) {
	sched := &domain.Schedule{IntervalSec: 90}

	next, err := CalculateNextDue(sched, tickTime)
	require.NoError(t, err)
	assert.Equal(t, tickTime.Add(90*time.Second), next)
}

func TestCalculateNextDue_Invalid(t *testing.T) {
	_, err := CalculateNextDue(&domain.Schedule{}, tickTime)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = CalculateNextDue(&domain.Schedule{CronExpr: "not a cron"}, tickTime)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = CalculateNextDue(&domain.Schedule{IntervalSec: 60, Timezone: "Mars/Olympus"}, tickTime)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		sched domain.Schedule
		ok    bool
	}{
		{"cron", domain.Schedule{CronExpr: "0 * * * *"}, true},
		{"descriptor", domain.Schedule{CronExpr: "@hourly"}, true},
		{"interval", domain.Schedule{IntervalSec: 60, Timezone: "UTC"}, true},
		{"both", domain.Schedule{CronExpr: "0 * * * *", IntervalSec: 60}, false},
		{"neither", domain.Schedule{}, false},
		{"interval too small", domain.Schedule{IntervalSec: 1}, false},
		{"bad cron", domain.Schedule{CronExpr: "61 * * * *"}, false},
		{"bad timezone", domain.Schedule{IntervalSec: 60, Timezone: "Nowhere/City"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.sched)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSchedule)
			}
		})
	}
}

// --- Tick ---

type request struct {
	workflowID uuid.UUID
	scheduleID uuid.UUID
}

type fakeRequester struct {
	mu       sync.Mutex
	requests []request
	err      error
}

func (r *fakeRequester) PublishRunRequested(_ context.Context, workflowID uuid.UUID, scheduleID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.requests = append(r.requests, request{workflowID: workflowID, scheduleID: *scheduleID})
	return nil
}

type fixture struct {
	db        *repo.MemoryDB
	requester *fakeRequester
	scheduler *Scheduler
	workflow  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := repo.NewMemoryDB()
	wf := &domain.Workflow{ID: uuid.New(), Name: "scheduled", CreatedAt: tickTime, UpdatedAt: tickTime}
	require.NoError(t, db.Workflows().Create(context.Background(), wf))

	requester := &fakeRequester{}
	return &fixture{
		db:        db,
		requester: requester,
		workflow:  wf.ID,
		scheduler: New(Config{
			Schedules: db.Schedules(),
			Workflows: db.Workflows(),
			Requester: requester,
			Now:       func() time.Time { return tickTime },
		}),
	}
}

func (f *fixture) schedule(t *testing.T, mutate func(*domain.Schedule)) *domain.Schedule {
	t.Helper()

	due := tickTime.Add(-time.Minute)
	s := &domain.Schedule{
		ID:          uuid.New(),
		WorkflowID:  f.workflow,
		IntervalSec: 60,
		Timezone:    "UTC",
		Enabled:     true,
		NextDueAt:   &due,
		CreatedAt:   tickTime,
		UpdatedAt:   tickTime,
	}
	if mutate != nil {
		mutate(s)
	}
	require.NoError(t, f.db.Schedules().Create(context.Background(), s))
	return s
}

func TestTick_RequestsDueRuns(t *testing.T) {
	f := newFixture(t)
	due := f.schedule(t, nil)
	future := tickTime.Add(time.Hour)
	f.schedule(t, func(s *domain.Schedule) { s.NextDueAt = &future })

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{Due: 1, Requested: 1}, result)

	require.Len(t, f.requester.requests, 1)
	assert.Equal(t, f.workflow, f.requester.requests[0].workflowID)
	assert.Equal(t, due.ID, f.requester.requests[0].scheduleID)

	stored, err := f.db.Schedules().GetByID(context.Background(), due.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastRunAt)
	assert.Equal(t, tickTime, *stored.LastRunAt)
	assert.Equal(t, tickTime.Add(time.Minute), *stored.NextDueAt)

	// Второй тик в то же время ничего не запрашивает
	result, err = f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Due)
	assert.Len(t, f.requester.requests, 1)
}

func TestTick_PublishFailureKeepsScheduleDue(t *testing.T) {
	f := newFixture(t)
	s := f.schedule(t, nil)
	f.requester.err = errors.New("broker down")

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	stored, err := f.db.Schedules().GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastRunAt)
	assert.True(t, stored.IsDue(tickTime))
}

func TestTick_InvalidScheduleDisabled(t *testing.T) {
	f := newFixture(t)
	s := f.schedule(t, func(s *domain.Schedule) { s.Timezone = "Nowhere/City" })

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, f.requester.requests)

	stored, err := f.db.Schedules().GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
}

type missingWorkflows struct{}

func (missingWorkflows) GetByID(context.Context, uuid.UUID) (*domain.Workflow, error) {
	return nil, repo.ErrNotFound
}

func TestTick_MissingWorkflowSkipped(t *testing.T) {
	f := newFixture(t)
	f.schedule(t, nil)
	f.scheduler.workflows = missingWorkflows{}

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{Due: 1, Skipped: 1}, result)
	assert.Empty(t, f.requester.requests)
}

type brokenStore struct{}

func (brokenStore) ListDue(context.Context, time.Time, int) ([]domain.Schedule, error) {
	return nil, errors.New("db down")
}

func (brokenStore) Update(context.Context, *domain.Schedule) error { return nil }

func TestTick_ListError(t *testing.T) {
	s := New(Config{Schedules: brokenStore{}})
	_, err := s.Tick(context.Background())
	assert.ErrorContains(t, err, "list due schedules")
}
