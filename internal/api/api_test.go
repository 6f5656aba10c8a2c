package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/engine"
	"github.com/shaiso/Stepflow/internal/repo"
)

var testNow = time.Date(2025, 12, 29, 19, 0, 0, 0, time.UTC)

type instantClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRequester struct {
	requested []uuid.UUID
	err       error
}

func (r *fakeRequester) PublishRunRequested(_ context.Context, workflowID uuid.UUID, _ *uuid.UUID) error {
	if r.err != nil {
		return r.err
	}
	r.requested = append(r.requested, workflowID)
	return nil
}

type testServer struct {
	db  *repo.MemoryDB
	mux *http.ServeMux
}

func newTestServer(t *testing.T, requester RunRequester) *testServer {
	t.Helper()

	db := repo.NewMemoryDB()
	eng := engine.New(engine.Config{
		Runs:   db.Runs(),
		Logs:   db.Logs(),
		Clock:  &instantClock{now: testNow},
		Logger: slogDiscard(),
	})

	cfg := Config{
		Workflows: db.Workflows(),
		Runs:      db.Runs(),
		Logs:      db.Logs(),
		Schedules: db.Schedules(),
		Executor:  eng,
		Now:       func() time.Time { return testNow },
		Logger:    slogDiscard(),
	}
	if requester != nil {
		cfg.Requester = requester
	}

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	return &testServer{db: db, mux: mux}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

// decodeData разбирает {"data": ...} в out.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func (s *testServer) createWorkflow(t *testing.T, name string) uuid.UUID {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/v1/workflows", CreateWorkflowRequest{Name: name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var wf WorkflowResponse
	decodeData(t, rec, &wf)
	return wf.ID
}

func (s *testServer) addStep(t *testing.T, workflowID uuid.UUID, stepType domain.StepType, config map[string]any) StepResponse {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+workflowID.String()+"/steps", AddStepRequest{Type: stepType, Config: config})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var step StepResponse
	decodeData(t, rec, &step)
	return step
}

func TestCreateWorkflow(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows", CreateWorkflowRequest{Name: "  health check  ", Description: "ping"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var wf WorkflowResponse
	decodeData(t, rec, &wf)
	assert.NotEqual(t, uuid.Nil, wf.ID)
	assert.Equal(t, "health check", wf.Name)
	assert.Equal(t, "ping", wf.Description)
	assert.True(t, wf.CreatedAt.Equal(testNow))
}

func TestCreateWorkflow_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows", CreateWorkflowRequest{Name: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeBadRequest, decodeError(t, rec).Code)

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	rec = s.do(t, http.MethodPost, "/api/v1/workflows", CreateWorkflowRequest{Name: string(long)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	s.mux.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestListWorkflows_StepCount(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "wf")
	s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})
	s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})

	rec := s.do(t, http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []WorkflowResponse
	decodeData(t, rec, &list)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].StepCount)
	assert.Equal(t, 2, *list[0].StepCount)
}

func TestUpdateAndDeleteWorkflow(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "old")

	name := "new"
	rec := s.do(t, http.MethodPut, "/api/v1/workflows/"+id.String(), UpdateWorkflowRequest{Name: &name})
	require.Equal(t, http.StatusOK, rec.Code)

	var wf WorkflowResponse
	decodeData(t, rec, &wf)
	assert.Equal(t, "new", wf.Name)

	rec = s.do(t, http.MethodDelete, "/api/v1/workflows/"+id.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/workflows/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "workflow not found", decodeError(t, rec).Message)
}

func TestGetWorkflow_InvalidID(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/workflows/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddStep_Validation(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "wf")
	path := "/api/v1/workflows/" + id.String() + "/steps"

	tests := []struct {
		name string
		req  AddStepRequest
		code ErrorCode
	}{
		{"missing type", AddStepRequest{Config: map[string]any{"seconds": 1}}, ErrCodeBadRequest},
		{"unknown type", AddStepRequest{Type: "unknown_type"}, ErrCodeInvalidConfig},
		{"delay without seconds", AddStepRequest{Type: domain.StepTypeDelay}, ErrCodeInvalidConfig},
		{"negative delay", AddStepRequest{Type: domain.StepTypeDelay, Config: map[string]any{"seconds": -1}}, ErrCodeInvalidConfig},
		{"http_check without url", AddStepRequest{Type: domain.StepTypeHTTPCheck}, ErrCodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, path, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}

	// Тело больше лимита отклоняется целиком
	big := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, path,
		bytes.NewBufferString(`{"type":"delay","config":{"pad":"`+string(big)+`"}}`))
	raw := httptest.NewRecorder()
	s.mux.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	steps, err := s.db.Workflows().ListSteps(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestAddStep_UnknownWorkflow(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+uuid.NewString()+"/steps",
		AddStepRequest{Type: domain.StepTypeDelay, Config: map[string]any{"seconds": 1}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSteps_OrderMoveDelete(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "wf")
	first := s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})
	second := s.addStep(t, id, domain.StepTypeHTTPCheck, map[string]any{"url": "http://example.com"})
	assert.Equal(t, 0, first.Order)
	assert.Equal(t, 1, second.Order)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+id.String()+"/steps/reorder",
		MoveStepRequest{StepID: second.ID, Direction: domain.DirectionUp})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var steps []StepResponse
	decodeData(t, rec, &steps)
	require.Len(t, steps, 2)
	assert.Equal(t, second.ID, steps[0].ID)
	assert.Equal(t, first.ID, steps[1].ID)

	rec = s.do(t, http.MethodPost, "/api/v1/workflows/"+id.String()+"/steps/reorder",
		MoveStepRequest{StepID: second.ID, Direction: "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/workflows/"+id.String()+"/steps/"+second.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/workflows/"+id.String()+"/steps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &steps)
	require.Len(t, steps, 1)
	assert.Equal(t, first.ID, steps[0].ID)
	assert.Equal(t, 0, steps[0].Order)

	rec = s.do(t, http.MethodDelete, "/api/v1/workflows/"+id.String()+"/steps/"+second.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRun_NoSteps(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "empty")

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+id.String()+"/runs", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, ErrCodeInvalidState, decodeError(t, rec).Code)
}

func TestCreateRun_UnknownWorkflow(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+uuid.NewString()+"/runs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRun_ExecutesSynchronously(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "wf")
	s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})
	s.addStep(t, id, domain.StepTypeHTTPCheck, map[string]any{"url": target.URL})

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+id.String()+"/runs", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var run RunResponse
	decodeData(t, rec, &run)
	assert.Equal(t, string(domain.RunStatusSucceeded), run.Status)
	assert.Equal(t, id, run.WorkflowID)
	require.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.Error)

	messages := make([]string, len(run.Logs))
	for i, l := range run.Logs {
		messages[i] = l.Message
	}
	assert.Equal(t, []string{
		"Executing step: delay",
		"Delaying for 1 second(s)",
		"Delay completed",
		"Step completed successfully",
		"Executing step: http_check",
		"Checking URL: " + target.URL,
		"HTTP check completed. Status: 200, Success: Yes",
		"Step completed successfully",
		"Workflow execution completed successfully",
	}, messages)

	// Тот же run доступен через GET
	rec = s.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched RunResponse
	decodeData(t, rec, &fetched)
	assert.Equal(t, run.ID, fetched.ID)
	assert.Len(t, fetched.Logs, len(run.Logs))
}

func TestCreateRun_ClientDisconnectDoesNotFailRun(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "wf")
	s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})
	s.addStep(t, id, domain.StepTypeHTTPCheck, map[string]any{"url": target.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/"+id.String()+"/runs", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var run RunResponse
	decodeData(t, rec, &run)
	assert.Equal(t, string(domain.RunStatusSucceeded), run.Status)
	assert.Empty(t, run.Error)
	require.NotEmpty(t, run.Logs)
	assert.Equal(t, "Workflow execution completed successfully", run.Logs[len(run.Logs)-1].Message)
}

func TestCreateRun_FailedStepStillReturnsRun(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "wf")
	s.addStep(t, id, domain.StepTypeHTTPCheck, map[string]any{"url": "http://127.0.0.1:1"})
	s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+id.String()+"/runs", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var run RunResponse
	decodeData(t, rec, &run)
	assert.Equal(t, string(domain.RunStatusFailed), run.Status)
	assert.NotEmpty(t, run.Error)

	for _, l := range run.Logs {
		assert.NotEqual(t, "Executing step: delay", l.Message, "steps after a failure must not run")
	}
	last := run.Logs[len(run.Logs)-1]
	assert.Equal(t, "error", last.Level)
	assert.Nil(t, last.StepID)
}

func TestCreateRun_Async(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, nil)
		id := s.createWorkflow(t, "wf")
		s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})

		rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+id.String()+"/runs?async=true", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("queued", func(t *testing.T) {
		requester := &fakeRequester{}
		s := newTestServer(t, requester)
		id := s.createWorkflow(t, "wf")
		s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})

		rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+id.String()+"/runs?async=true", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, []uuid.UUID{id}, requester.requested)

		runs, err := s.db.Runs().ListByWorkflow(context.Background(), id, 10)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("publish error", func(t *testing.T) {
		s := newTestServer(t, &fakeRequester{err: errors.New("broker down")})
		id := s.createWorkflow(t, "wf")
		s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})

		rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+id.String()+"/runs?async=true", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal server error", decodeError(t, rec).Message)
	})
}

func TestGetWorkflow_IncludesStepsAndRecentRuns(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "wf")
	s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})

	for range 12 {
		rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+id.String()+"/runs", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/workflows/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail WorkflowDetailResponse
	decodeData(t, rec, &detail)
	assert.Len(t, detail.Steps, 1)
	assert.Len(t, detail.RecentRuns, recentRunsLimit)

	rec = s.do(t, http.MethodGet, "/api/v1/workflows/"+id.String()+"/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []RunResponse
	decodeData(t, rec, &runs)
	assert.Len(t, runs, 5)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/runs/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLogs_Paging(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "wf")
	s.addStep(t, id, domain.StepTypeDelay, map[string]any{"seconds": 1})

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+id.String()+"/runs", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Data  []LogResponse `json:"data"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 5, page.Total)
	// Новые первыми
	assert.Equal(t, "Workflow execution completed successfully", page.Data[0].Message)

	rec = s.do(t, http.MethodGet, "/api/v1/logs?run_id=bad", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedules(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "wf")
	path := "/api/v1/workflows/" + id.String() + "/schedules"

	rec := s.do(t, http.MethodPost, path, CreateScheduleRequest{Name: "every minute", IntervalSec: 60})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sched ScheduleResponse
	decodeData(t, rec, &sched)
	assert.True(t, sched.Enabled)
	assert.Equal(t, "UTC", sched.Timezone)
	require.NotNil(t, sched.NextDueAt)
	assert.True(t, sched.NextDueAt.Equal(testNow.Add(time.Minute)))

	disabled := false
	rec = s.do(t, http.MethodPost, path, CreateScheduleRequest{CronExpr: "0 9 * * *", Enabled: &disabled})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/schedules?enabled=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ScheduleResponse
	decodeData(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, sched.ID, list[0].ID)

	rec = s.do(t, http.MethodPut, "/api/v1/schedules/"+sched.ID.String()+"/enabled", SetEnabledRequest{Enabled: false})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &sched)
	assert.False(t, sched.Enabled)

	rec = s.do(t, http.MethodDelete, "/api/v1/schedules/"+sched.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/schedules/"+sched.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSchedule_Validation(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createWorkflow(t, "wf")
	path := "/api/v1/workflows/" + id.String() + "/schedules"

	tests := []struct {
		name string
		req  CreateScheduleRequest
	}{
		{"neither", CreateScheduleRequest{}},
		{"both", CreateScheduleRequest{CronExpr: "* * * * *", IntervalSec: 60}},
		{"interval too small", CreateScheduleRequest{IntervalSec: 5}},
		{"bad cron", CreateScheduleRequest{CronExpr: "not a cron"}},
		{"bad timezone", CreateScheduleRequest{IntervalSec: 60, Timezone: "Mars/Olympus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, path, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/"+uuid.NewString()+"/schedules", CreateScheduleRequest{IntervalSec: 60})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListStepTypes(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/step-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var types []string
	decodeData(t, rec, &types)
	assert.Equal(t, []string{"delay", "http_check"}, types)
}

func TestRecovery(t *testing.T) {
	h := Chain(Recovery(slogDiscard()), Logging(slogDiscard()))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, decodeError(t, rec).Code)
}
