package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Stepflow/internal/api"
	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/engine"
	"github.com/shaiso/Stepflow/internal/repo"
)

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

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAPIServer поднимает настоящий API поверх MemoryDB.
func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()

	db := repo.NewMemoryDB()
	eng := engine.New(engine.Config{
		Runs:   db.Runs(),
		Logs:   db.Logs(),
		Clock:  &instantClock{now: time.Date(2025, 12, 29, 19, 0, 0, 0, time.UTC)},
		Logger: discardLogger(),
	})

	mux := http.NewServeMux()
	api.NewHandler(api.Config{
		Workflows: db.Workflows(),
		Runs:      db.Runs(),
		Logs:      db.Logs(),
		Schedules: db.Schedules(),
		Executor:  eng,
		Logger:    discardLogger(),
	}).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// runCmd выполняет команду и возвращает stdout и stderr.
func runCmd(t *testing.T, cmd *cobra.Command, stdout, stderr *bytes.Buffer, args ...string) error {
	t.Helper()

	stdout.Reset()
	stderr.Reset()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.ExecuteContext(context.Background())
}

type harness struct {
	client *Client
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{client: NewClient(newAPIServer(t).URL)}
}

func (h *harness) root(jsonMode bool) *cobra.Command {
	clientFn := func() *Client { return h.client }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &h.stdout, &h.stderr) }

	root := &cobra.Command{Use: "stepflow"}
	root.AddCommand(
		NewWorkflowCmd(clientFn, outputFn),
		NewStepCmd(clientFn, outputFn),
		NewRunCmd(clientFn, outputFn),
		NewLogsCmd(clientFn, outputFn),
		NewScheduleCmd(clientFn, outputFn),
		NewExecCmd(outputFn),
	)
	return root
}

func (h *harness) run(t *testing.T, jsonMode bool, args ...string) error {
	t.Helper()
	var cmdOut, cmdErr bytes.Buffer
	h.stdout.Reset()
	h.stderr.Reset()
	return runCmd(t, h.root(jsonMode), &cmdOut, &cmdErr, args...)
}

func TestParseConfigPairs(t *testing.T) {
	config, err := ParseConfigPairs([]string{"seconds=2", "url=https://example.com/?a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"seconds": 2, "url": "https://example.com/?a=b"}, config)

	_, err = ParseConfigPairs([]string{"seconds"})
	assert.Error(t, err)

	_, err = ParseConfigPairs([]string{"=2"})
	assert.Error(t, err)
}

func TestCLI_WorkflowLifecycle(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	h := newHarness(t)

	require.NoError(t, h.run(t, true, "workflow", "create", "--name", "health"))
	var wf WorkflowResponse
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &wf))
	assert.Contains(t, h.stderr.String(), "Workflow created: "+wf.ID)

	require.NoError(t, h.run(t, false, "step", "add", wf.ID, "--type", "delay", "--config", "seconds=1"))
	require.NoError(t, h.run(t, false, "step", "add", wf.ID, "--type", "http_check", "--config", "url="+target.URL))

	err := h.run(t, false, "step", "add", wf.ID, "--type", "delay")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	require.NoError(t, h.run(t, true, "run", "start", wf.ID))
	var run RunResponse
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &run))
	assert.Equal(t, "succeeded", run.Status)
	require.NotEmpty(t, run.Logs)
	assert.Equal(t, "Workflow execution completed successfully", run.Logs[len(run.Logs)-1].Message)

	require.NoError(t, h.run(t, false, "run", "show", run.ID))
	assert.Contains(t, h.stdout.String(), "Delaying for 1 second(s)")

	require.NoError(t, h.run(t, false, "workflow", "show", wf.ID))
	assert.Contains(t, h.stdout.String(), "http_check")
	assert.Contains(t, h.stdout.String(), run.ID)

	require.NoError(t, h.run(t, false, "logs", "--limit", "3"))
	assert.Contains(t, h.stderr.String(), "3 of 9 entries")

	require.NoError(t, h.run(t, false, "workflow", "delete", wf.ID))
	_, err = h.client.GetWorkflow(context.Background(), wf.ID)
	assert.True(t, IsNotFound(err))
}

func TestCLI_StepMove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf, err := h.client.CreateWorkflow(ctx, "wf", "")
	require.NoError(t, err)
	first, err := h.client.AddStep(ctx, wf.ID, "delay", map[string]any{"seconds": 1})
	require.NoError(t, err)
	second, err := h.client.AddStep(ctx, wf.ID, "delay", map[string]any{"seconds": 2})
	require.NoError(t, err)

	require.NoError(t, h.run(t, true, "step", "move", wf.ID, second.ID, "--direction", "up"))
	var steps []StepResponse
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &steps))
	require.Len(t, steps, 2)
	assert.Equal(t, second.ID, steps[0].ID)
	assert.Equal(t, first.ID, steps[1].ID)

	assert.Error(t, h.run(t, false, "step", "move", wf.ID, second.ID, "--direction", "left"))

	require.NoError(t, h.run(t, false, "step", "delete", wf.ID, first.ID))
	detail, err := h.client.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, detail.Steps, 1)
	assert.Equal(t, 0, detail.Steps[0].Order)
}

func TestCLI_Schedules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf, err := h.client.CreateWorkflow(ctx, "wf", "")
	require.NoError(t, err)

	assert.Error(t, h.run(t, false, "schedule", "create", wf.ID))

	require.NoError(t, h.run(t, true, "schedule", "create", wf.ID, "--interval", "60", "--name", "minutely"))
	var sched ScheduleResponse
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &sched))
	assert.True(t, sched.Enabled)

	require.NoError(t, h.run(t, false, "schedule", "disable", sched.ID))
	got, err := h.client.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	require.NoError(t, h.run(t, false, "schedule", "enable", sched.ID))
	got, err = h.client.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	require.NoError(t, h.run(t, false, "schedule", "list", "--workflow-id", wf.ID))
	assert.Contains(t, h.stdout.String(), "minutely")

	require.NoError(t, h.run(t, false, "schedule", "delete", sched.ID))
	_, err = h.client.GetSchedule(ctx, sched.ID)
	assert.True(t, IsNotFound(err))
}

func TestLoadWorkflowFile(t *testing.T) {
	wf, err := LoadWorkflowFile(strings.NewReader(`
name: health
steps:
  - type: delay
    config:
      seconds: 1
  - type: http_check
    config:
      url: https://example.com
`))
	require.NoError(t, err)
	assert.Equal(t, "health", wf.Name)
	require.Len(t, wf.Steps, 2)
	assert.Equal(t, 1, wf.Steps[0].Config["seconds"])

	_, err = LoadWorkflowFile(strings.NewReader("name: x\nretries: 3\n"))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = LoadWorkflowFile(strings.NewReader("steps:\n  - config: {}\n"))
	assert.Error(t, err)

	_, err = LoadWorkflowFile(strings.NewReader(""))
	assert.Error(t, err)
}

func TestExecuteWorkflowFile(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer target.Close()

	clock := &instantClock{now: time.Date(2025, 12, 29, 19, 0, 0, 0, time.UTC)}
	file := &WorkflowFile{
		Name: "local",
		Steps: []StepFile{
			{Type: "delay", Config: map[string]any{"seconds": 5}},
			{Type: "http_check", Config: map[string]any{"url": target.URL}},
		},
	}

	run, entries, err := ExecuteWorkflowFile(context.Background(), file, ExecConfig{Clock: clock, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	assert.Equal(t, 2*time.Second, run.Duration())

	var warned bool
	for _, e := range entries {
		if e.Level == domain.LogLevelWarn {
			warned = true
			assert.Equal(t, "HTTP check completed. Status: 503, Success: No", e.Message)
		}
	}
	assert.True(t, warned)
	assert.Equal(t, "Delaying for 2 second(s)", entries[1].Message)
}

func TestExecCmd_FailedRun(t *testing.T) {
	h := newHarness(t)

	root := h.root(false)
	var cmdOut, cmdErr bytes.Buffer
	root.SetIn(strings.NewReader("name: broken\nsteps:\n  - type: unknown_type\n"))

	err := runCmd(t, root, &cmdOut, &cmdErr, "exec", "-f", "-")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunFailed))
	assert.Contains(t, h.stdout.String(), "Step failed: unknown step type: unknown_type")
	assert.Contains(t, h.stdout.String(), "failed")
}
