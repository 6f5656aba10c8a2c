package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/engine"
	"github.com/shaiso/Stepflow/internal/mq"
	"github.com/shaiso/Stepflow/internal/repo"
)

type instantClock struct{ now time.Time }

func (c *instantClock) Now() time.Time { return c.now }

func (c *instantClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

type fixture struct {
	db     *repo.MemoryDB
	worker *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := repo.NewMemoryDB()
	eng := engine.New(engine.Config{
		Runs:  db.Runs(),
		Logs:  db.Logs(),
		Clock: &instantClock{now: time.Date(2025, 12, 29, 19, 0, 0, 0, time.UTC)},
	})

	return &fixture{
		db:     db,
		worker: New(Config{Workflows: db.Workflows(), Engine: eng}),
	}
}

func (f *fixture) workflow(t *testing.T, steps ...domain.Step) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	wf := &domain.Workflow{ID: uuid.New(), Name: "wf", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, f.db.Workflows().Create(ctx, wf))
	for _, s := range steps {
		s.ID = uuid.New()
		s.WorkflowID = wf.ID
		require.NoError(t, f.db.Workflows().AddStep(ctx, &s))
	}
	return wf.ID
}

// requestMessage проходит через JSON, как сообщение из очереди.
func requestMessage(t *testing.T, workflowID uuid.UUID) *mq.Message {
	t.Helper()

	body, err := json.Marshal(&mq.Message{
		ID:      uuid.NewString(),
		Type:    mq.MessageTypeRunRequested,
		Payload: mq.RunRequestedPayload{WorkflowID: workflowID},
	})
	require.NoError(t, err)

	msg, err := mq.DecodeMessage(body)
	require.NoError(t, err)
	return msg
}

func TestHandleMessage_ExecutesRun(t *testing.T) {
	f := newFixture(t)
	wfID := f.workflow(t,
		domain.Step{Type: domain.StepTypeDelay, Config: map[string]any{"seconds": 1}},
		domain.Step{Type: domain.StepTypeDelay, Config: map[string]any{"seconds": 5}},
	)

	require.NoError(t, f.worker.HandleMessage(context.Background(), requestMessage(t, wfID)))

	runs, err := f.db.Runs().ListByWorkflow(context.Background(), wfID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, 3*time.Second, runs[0].Duration())
}

func TestHandleMessage_FailedRunIsAcked(t *testing.T) {
	f := newFixture(t)
	wfID := f.workflow(t, domain.Step{Type: "nope"})

	require.NoError(t, f.worker.HandleMessage(context.Background(), requestMessage(t, wfID)))

	runs, err := f.db.Runs().ListByWorkflow(context.Background(), wfID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusFailed, runs[0].Status)
}

func TestHandleMessage_NoStepsSkipped(t *testing.T) {
	f := newFixture(t)
	wfID := f.workflow(t)

	require.NoError(t, f.worker.HandleMessage(context.Background(), requestMessage(t, wfID)))

	runs, err := f.db.Runs().ListByWorkflow(context.Background(), wfID, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestHandleMessage_UnknownWorkflowIsPermanent(t *testing.T) {
	f := newFixture(t)

	err := f.worker.HandleMessage(context.Background(), requestMessage(t, uuid.New()))
	assert.ErrorIs(t, err, mq.ErrPermanent)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.Equal(t, mq.DeadLetter, mq.Decide(err, false))
}

func TestHandleMessage_WrongTypeIsPermanent(t *testing.T) {
	f := newFixture(t)

	err := f.worker.HandleMessage(context.Background(), &mq.Message{ID: "x", Type: mq.MessageTypeRunFinished})
	assert.ErrorIs(t, err, mq.ErrPermanent)
}

type failingSource struct{ err error }

func (s failingSource) GetByID(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	return &domain.Workflow{ID: id}, nil
}

func (s failingSource) ListSteps(context.Context, uuid.UUID) ([]domain.Step, error) {
	return nil, s.err
}

type stubEngine struct {
	run *domain.Run
	err error
}

func (e stubEngine) Execute(context.Context, uuid.UUID, []domain.Step) (*domain.Run, error) {
	return e.run, e.err
}

type staticSource struct{}

func (staticSource) GetByID(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	return &domain.Workflow{ID: id}, nil
}

func (staticSource) ListSteps(_ context.Context, id uuid.UUID) ([]domain.Step, error) {
	return []domain.Step{{ID: uuid.New(), WorkflowID: id, Type: domain.StepTypeDelay}}, nil
}

func TestHandleMessage_StorageErrors(t *testing.T) {
	dbErr := errors.New("connection reset")

	t.Run("list steps failure is retried", func(t *testing.T) {
		w := New(Config{Workflows: failingSource{err: dbErr}, Engine: stubEngine{}})
		err := w.HandleMessage(context.Background(), requestMessage(t, uuid.New()))
		assert.ErrorIs(t, err, dbErr)
		assert.Equal(t, mq.Requeue, mq.Decide(err, false))
	})

	t.Run("create run failure is retried", func(t *testing.T) {
		w := New(Config{Workflows: staticSource{}, Engine: stubEngine{err: dbErr}})
		err := w.HandleMessage(context.Background(), requestMessage(t, uuid.New()))
		assert.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, mq.ErrPermanent)
	})

	t.Run("executed run is never retried", func(t *testing.T) {
		run := domain.NewRun(uuid.New(), time.Now())
		run.MarkSucceeded(time.Now())
		w := New(Config{Workflows: staticSource{}, Engine: stubEngine{run: run, err: dbErr}})
		err := w.HandleMessage(context.Background(), requestMessage(t, uuid.New()))
		assert.ErrorIs(t, err, mq.ErrPermanent)
	})
}

func TestStart_Twice(t *testing.T) {
	w := New(Config{})
	w.started = true
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
}
