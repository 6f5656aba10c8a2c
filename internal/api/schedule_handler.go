package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
	"github.com/shaiso/Stepflow/internal/repo"
	"github.com/shaiso/Stepflow/internal/scheduler"
)

// ListSchedules возвращает список schedules с фильтрацией.
// GET /api/v1/schedules?workflow_id=...&enabled=...&limit=...&offset=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	filter := repo.ScheduleFilter{
		Limit:  queryInt(r, "limit", repo.DefaultPageSize),
		Offset: queryInt(r, "offset", 0),
	}

	// Парсим query параметры
	if workflowIDStr := r.URL.Query().Get("workflow_id"); workflowIDStr != "" {
		workflowID, err := uuid.Parse(workflowIDStr)
		if err != nil {
			BadRequest(w, "invalid workflow_id")
			return
		}
		filter.WorkflowID = &workflowID
	}

	if enabledStr := r.URL.Query().Get("enabled"); enabledStr != "" {
		enabled := enabledStr == "true"
		filter.Enabled = &enabled
	}

	schedules, err := h.schedules.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		result[i] = ScheduleFromDomain(&schedules[i])
	}

	List(w, result, len(result))
}

// CreateSchedule создаёт новый schedule для workflow.
// POST /api/v1/workflows/{id}/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := parsePathID(w, r, "id", "invalid workflow id")
	if !ok {
		return
	}

	var req CreateScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := h.now()
	schedule := &domain.Schedule{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		Name:        req.Name,
		CronExpr:    req.CronExpr,
		IntervalSec: req.IntervalSec,
		Timezone:    timezone,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if HandleRepoError(w, h.logger, scheduler.Validate(schedule), "") {
		return
	}

	// Проверяем, что workflow существует
	if _, err := h.workflows.GetByID(r.Context(), workflowID); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	nextDue, err := scheduler.CalculateInitialNextDue(schedule, now)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	schedule.NextDueAt = &nextDue

	if HandleRepoError(w, h.logger, h.schedules.Create(r.Context(), schedule), "workflow not found") {
		return
	}

	Created(w, ScheduleFromDomain(schedule))
}

// GetSchedule возвращает schedule по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid schedule id")
	if !ok {
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// DeleteSchedule удаляет schedule.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid schedule id")
	if !ok {
		return
	}

	if HandleRepoError(w, h.logger, h.schedules.Delete(r.Context(), id), "schedule not found") {
		return
	}

	NoContent(w)
}

// SetScheduleEnabled включает или выключает schedule.
// PUT /api/v1/schedules/{id}/enabled
//
// При включении next_due_at пересчитывается от текущего момента:
// пропущенные за время простоя запуски не догоняются.
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid schedule id")
	if !ok {
		return
	}

	var req SetEnabledRequest
	if !decodeBody(w, r, &req) {
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	now := h.now()
	if req.Enabled && !schedule.Enabled {
		nextDue, err := scheduler.CalculateNextDue(schedule, now)
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		schedule.NextDueAt = &nextDue
	}
	schedule.Enabled = req.Enabled
	schedule.UpdatedAt = now

	if HandleRepoError(w, h.logger, h.schedules.Update(r.Context(), schedule), "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}
