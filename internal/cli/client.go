package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StepCount   *int   `json:"step_count,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// WorkflowDetail — workflow с шагами и последними runs.
type WorkflowDetail struct {
	WorkflowResponse
	Steps      []StepResponse `json:"steps"`
	RecentRuns []RunResponse  `json:"recent_runs"`
}

// StepResponse — шаг из API.
type StepResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Config    map[string]any `json:"config"`
	Order     int            `json:"order"`
	CreatedAt string         `json:"created_at"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	Status      string     `json:"status"`
	StartedAt   string     `json:"started_at"`
	CompletedAt string     `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
	Error       string     `json:"error,omitempty"`
	Logs        []LogEntry `json:"logs,omitempty"`
}

// LogEntry — запись лога run из API.
type LogEntry struct {
	ID       int64  `json:"id"`
	RunID    string `json:"run_id"`
	StepID   string `json:"step_id,omitempty"`
	Level    string `json:"level"`
	Message  string `json:"message"`
	LoggedAt string `json:"logged_at"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID          string `json:"id"`
	WorkflowID  string `json:"workflow_id"`
	Name        string `json:"name"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone"`
	Enabled     bool   `json:"enabled"`
	NextDueAt   string `json:"next_due_at,omitempty"`
	LastRunAt   string `json:"last_run_at,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// --- Request types ---

// UpdateWorkflowRequest — обновление workflow.
type UpdateWorkflowRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	Name        string `json:"name"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// ListLogsOpts — параметры постраничного чтения логов.
type ListLogsOpts struct {
	RunID  string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, которую вернул API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound проверяет, что API ответил 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// --- Client ---

// Client — HTTP-клиент для Stepflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
// Таймаут больше обычного: синхронный run может выполняться долго.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает все workflows.
func (c *Client) ListWorkflows(ctx context.Context) ([]WorkflowResponse, error) {
	var workflows []WorkflowResponse
	_, err := c.list(ctx, "/api/v1/workflows", nil, &workflows)
	return workflows, err
}

// CreateWorkflow создаёт новый workflow.
func (c *Client) CreateWorkflow(ctx context.Context, name, description string) (*WorkflowResponse, error) {
	body := map[string]string{"name": name, "description": description}
	var wf WorkflowResponse
	err := c.post(ctx, "/api/v1/workflows", body, &wf)
	return &wf, err
}

// GetWorkflow возвращает workflow с шагами и последними runs.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*WorkflowDetail, error) {
	var wf WorkflowDetail
	err := c.get(ctx, "/api/v1/workflows/"+url.PathEscape(id), &wf)
	return &wf, err
}

// UpdateWorkflow обновляет workflow.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, req UpdateWorkflowRequest) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.put(ctx, "/api/v1/workflows/"+url.PathEscape(id), req, &wf)
	return &wf, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/workflows/"+url.PathEscape(id))
}

// --- Steps ---

// AddStep добавляет шаг в конец workflow.
func (c *Client) AddStep(ctx context.Context, workflowID, stepType string, config map[string]any) (*StepResponse, error) {
	body := map[string]any{"type": stepType, "config": config}
	var step StepResponse
	err := c.post(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/steps", body, &step)
	return &step, err
}

// MoveStep перемещает шаг вверх или вниз и возвращает новый порядок шагов.
func (c *Client) MoveStep(ctx context.Context, workflowID, stepID, direction string) ([]StepResponse, error) {
	body := map[string]string{"step_id": stepID, "direction": direction}
	var steps []StepResponse
	err := c.post(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/steps/reorder", body, &steps)
	return steps, err
}

// DeleteStep удаляет шаг.
func (c *Client) DeleteStep(ctx context.Context, workflowID, stepID string) error {
	return c.delete(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/steps/"+url.PathEscape(stepID))
}

// --- Runs ---

// StartRun выполняет workflow синхронно и возвращает run с логом.
func (c *Client) StartRun(ctx context.Context, workflowID string) (*RunResponse, error) {
	var run RunResponse
	err := c.post(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/runs", nil, &run)
	return &run, err
}

// EnqueueRun ставит run в очередь воркерам.
func (c *Client) EnqueueRun(ctx context.Context, workflowID string) error {
	return c.post(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/runs?async=true", nil, nil)
}

// ListRuns возвращает runs workflow, новые первыми.
func (c *Client) ListRuns(ctx context.Context, workflowID string, limit int) ([]RunResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var runs []RunResponse
	_, err := c.list(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run с логом.
func (c *Client) GetRun(ctx context.Context, id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// ListLogs возвращает страницу логов и общее количество записей.
func (c *Client) ListLogs(ctx context.Context, opts ListLogsOpts) ([]LogEntry, int, error) {
	params := url.Values{}
	if opts.RunID != "" {
		params.Set("run_id", opts.RunID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var entries []LogEntry
	total, err := c.list(ctx, "/api/v1/logs", params, &entries)
	return entries, total, err
}

// --- Schedules ---

// ListSchedules возвращает schedules. Если workflowID не пустой — фильтрует.
func (c *Client) ListSchedules(ctx context.Context, workflowID string) ([]ScheduleResponse, error) {
	params := url.Values{}
	if workflowID != "" {
		params.Set("workflow_id", workflowID)
	}

	var schedules []ScheduleResponse
	_, err := c.list(ctx, "/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule для workflow.
func (c *Client) CreateSchedule(ctx context.Context, workflowID string, req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(ctx context.Context, id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get(ctx, "/api/v1/schedules/"+url.PathEscape(id), &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/schedules/"+url.PathEscape(id))
}

// SetScheduleEnabled включает или выключает schedule.
func (c *Client) SetScheduleEnabled(ctx context.Context, id string, enabled bool) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": enabled}
	err := c.put(ctx, "/api/v1/schedules/"+url.PathEscape(id)+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPut, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) (int, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return 0, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return lr.Total, json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
