package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
)

// Workflow DTOs

// CreateWorkflowRequest — запрос на создание workflow.
type CreateWorkflowRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateWorkflowRequest — запрос на обновление workflow.
type UpdateWorkflowRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StepCount   *int      `json:"step_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkflowDetailResponse — workflow с шагами и последними runs.
type WorkflowDetailResponse struct {
	WorkflowResponse
	Steps      []StepResponse `json:"steps"`
	RecentRuns []RunResponse  `json:"recent_runs"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(wf *domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

// WorkflowSummaryFromDomain конвертирует domain.WorkflowSummary в WorkflowResponse.
func WorkflowSummaryFromDomain(s *domain.WorkflowSummary) WorkflowResponse {
	resp := WorkflowFromDomain(&s.Workflow)
	count := s.StepCount
	resp.StepCount = &count
	return resp
}

// Step DTOs

// AddStepRequest — запрос на добавление шага.
type AddStepRequest struct {
	Type   domain.StepType `json:"type"`
	Config map[string]any  `json:"config"`
}

// MoveStepRequest — запрос на перемещение шага.
type MoveStepRequest struct {
	StepID    uuid.UUID        `json:"step_id"`
	Direction domain.Direction `json:"direction"`
}

// StepResponse — ответ с шагом.
type StepResponse struct {
	ID        uuid.UUID       `json:"id"`
	Type      domain.StepType `json:"type"`
	Config    map[string]any  `json:"config"`
	Order     int             `json:"order"`
	CreatedAt time.Time       `json:"created_at"`
}

// StepFromDomain конвертирует domain.Step в StepResponse.
func StepFromDomain(s *domain.Step) StepResponse {
	config := s.Config
	if config == nil {
		config = map[string]any{}
	}
	return StepResponse{
		ID:        s.ID,
		Type:      s.Type,
		Config:    config,
		Order:     s.Order,
		CreatedAt: s.CreatedAt,
	}
}

// StepsFromDomain конвертирует список шагов.
func StepsFromDomain(steps []domain.Step) []StepResponse {
	result := make([]StepResponse, len(steps))
	for i := range steps {
		result[i] = StepFromDomain(&steps[i])
	}
	return result
}

// Run DTOs

// RunResponse — ответ с run.
type RunResponse struct {
	ID          uuid.UUID     `json:"id"`
	WorkflowID  uuid.UUID     `json:"workflow_id"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	DurationMs  int64         `json:"duration_ms,omitempty"`
	Error       string        `json:"error,omitempty"`
	Logs        []LogResponse `json:"logs,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r *domain.Run) RunResponse {
	return RunResponse{
		ID:          r.ID,
		WorkflowID:  r.WorkflowID,
		Status:      string(r.Status),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMs:  r.Duration().Milliseconds(),
		Error:       r.Error,
	}
}

// RunsFromDomain конвертирует список runs.
func RunsFromDomain(runs []domain.Run) []RunResponse {
	result := make([]RunResponse, len(runs))
	for i := range runs {
		result[i] = RunFromDomain(&runs[i])
	}
	return result
}

// RunAcceptedResponse — ответ на асинхронный запуск.
type RunAcceptedResponse struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	Queued     bool      `json:"queued"`
}

// Log DTOs

// LogResponse — ответ с записью лога.
type LogResponse struct {
	ID       int64      `json:"id"`
	RunID    uuid.UUID  `json:"run_id"`
	StepID   *uuid.UUID `json:"step_id,omitempty"`
	Level    string     `json:"level"`
	Message  string     `json:"message"`
	LoggedAt time.Time  `json:"logged_at"`
}

// LogFromDomain конвертирует domain.LogEntry в LogResponse.
func LogFromDomain(e *domain.LogEntry) LogResponse {
	return LogResponse{
		ID:       e.ID,
		RunID:    e.RunID,
		StepID:   e.StepID,
		Level:    string(e.Level),
		Message:  e.Message,
		LoggedAt: e.LoggedAt,
	}
}

// LogsFromDomain конвертирует список записей лога.
func LogsFromDomain(entries []domain.LogEntry) []LogResponse {
	result := make([]LogResponse, len(entries))
	for i := range entries {
		result[i] = LogFromDomain(&entries[i])
	}
	return result
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name        string `json:"name"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение schedule.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ с schedule.
type ScheduleResponse struct {
	ID          uuid.UUID  `json:"id"`
	WorkflowID  uuid.UUID  `json:"workflow_id"`
	Name        string     `json:"name,omitempty"`
	CronExpr    string     `json:"cron_expr,omitempty"`
	IntervalSec int        `json:"interval_sec,omitempty"`
	Timezone    string     `json:"timezone"`
	Enabled     bool       `json:"enabled"`
	NextDueAt   *time.Time `json:"next_due_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:          s.ID,
		WorkflowID:  s.WorkflowID,
		Name:        s.Name,
		CronExpr:    s.CronExpr,
		IntervalSec: s.IntervalSec,
		Timezone:    s.Timezone,
		Enabled:     s.Enabled,
		NextDueAt:   s.NextDueAt,
		LastRunAt:   s.LastRunAt,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
