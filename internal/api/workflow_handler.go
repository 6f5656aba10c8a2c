package api

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
)

// maxWorkflowNameLen — максимальная длина имени workflow.
const maxWorkflowNameLen = 255

// recentRunsLimit — сколько последних runs показывать в деталях workflow.
const recentRunsLimit = 10

// ListWorkflows возвращает список workflows с количеством шагов.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.workflows.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowResponse, len(workflows))
	for i := range workflows {
		result[i] = WorkflowSummaryFromDomain(&workflows[i])
	}

	List(w, result, len(result))
}

// CreateWorkflow создаёт новый workflow.
// POST /api/v1/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	name, msg := validateWorkflowName(req.Name)
	if msg != "" {
		BadRequest(w, msg)
		return
	}

	now := h.now()
	wf := &domain.Workflow{
		ID:          uuid.New(),
		Name:        name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if HandleRepoError(w, h.logger, h.workflows.Create(r.Context(), wf), "") {
		return
	}

	Created(w, WorkflowFromDomain(wf))
}

// GetWorkflow возвращает workflow с шагами и последними runs.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid workflow id")
	if !ok {
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	stepDefs, err := h.workflows.ListSteps(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	runs, err := h.runs.ListByWorkflow(r.Context(), id, recentRunsLimit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	resp := WorkflowDetailResponse{
		WorkflowResponse: WorkflowFromDomain(wf),
		Steps:            StepsFromDomain(stepDefs),
		RecentRuns:       RunsFromDomain(runs),
	}
	count := len(stepDefs)
	resp.StepCount = &count

	Success(w, resp)
}

// UpdateWorkflow обновляет имя и описание workflow.
// PUT /api/v1/workflows/{id}
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid workflow id")
	if !ok {
		return
	}

	var req UpdateWorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if req.Name != nil {
		name, msg := validateWorkflowName(*req.Name)
		if msg != "" {
			BadRequest(w, msg)
			return
		}
		wf.Name = name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	wf.UpdatedAt = h.now()

	if HandleRepoError(w, h.logger, h.workflows.Update(r.Context(), wf), "workflow not found") {
		return
	}

	Success(w, WorkflowFromDomain(wf))
}

// DeleteWorkflow удаляет workflow со всеми шагами, runs и schedules.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid workflow id")
	if !ok {
		return
	}

	if HandleRepoError(w, h.logger, h.workflows.Delete(r.Context(), id), "workflow not found") {
		return
	}

	NoContent(w)
}

// validateWorkflowName возвращает нормализованное имя или сообщение об ошибке.
func validateWorkflowName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "name is required"
	}
	if utf8.RuneCountInString(name) > maxWorkflowNameLen {
		return "", "name must be at most 255 characters"
	}
	return name, ""
}

// parsePathID парсит UUID из path-параметра; при ошибке отвечает 400.
func parsePathID(w http.ResponseWriter, r *http.Request, name, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		BadRequest(w, msg)
		return uuid.Nil, false
	}
	return id, true
}
