package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
)

// ListSteps возвращает шаги workflow в порядке выполнения.
// GET /api/v1/workflows/{id}/steps
func (h *Handler) ListSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid workflow id")
	if !ok {
		return
	}

	if _, err := h.workflows.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	stepDefs, err := h.workflows.ListSteps(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, StepsFromDomain(stepDefs), len(stepDefs))
}

// AddStep добавляет шаг в конец workflow.
// POST /api/v1/workflows/{id}/steps
func (h *Handler) AddStep(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid workflow id")
	if !ok {
		return
	}

	var req AddStepRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Type == "" {
		BadRequest(w, "type is required")
		return
	}
	if req.Config == nil {
		req.Config = map[string]any{}
	}

	// Конфигурация проверяется до сохранения
	if HandleRepoError(w, h.logger, h.registry.Validate(req.Type, req.Config), "") {
		return
	}

	step := &domain.Step{
		ID:         uuid.New(),
		WorkflowID: id,
		Type:       req.Type,
		Config:     req.Config,
		CreatedAt:  h.now(),
	}

	if HandleRepoError(w, h.logger, h.workflows.AddStep(r.Context(), step), "workflow not found") {
		return
	}

	Created(w, StepFromDomain(step))
}

// MoveStep перемещает шаг вверх или вниз.
// POST /api/v1/workflows/{id}/steps/reorder
func (h *Handler) MoveStep(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid workflow id")
	if !ok {
		return
	}

	var req MoveStepRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.StepID == uuid.Nil {
		BadRequest(w, "step_id is required")
		return
	}
	if !req.Direction.IsValid() {
		BadRequest(w, "direction must be up or down")
		return
	}

	if HandleRepoError(w, h.logger, h.workflows.MoveStep(r.Context(), id, req.StepID, req.Direction), "step not found") {
		return
	}

	stepDefs, err := h.workflows.ListSteps(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, StepsFromDomain(stepDefs), len(stepDefs))
}

// DeleteStep удаляет шаг из workflow.
// DELETE /api/v1/workflows/{id}/steps/{stepID}
func (h *Handler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid workflow id")
	if !ok {
		return
	}
	stepID, ok := parsePathID(w, r, "stepID", "invalid step id")
	if !ok {
		return
	}

	if HandleRepoError(w, h.logger, h.workflows.DeleteStep(r.Context(), id, stepID), "step not found") {
		return
	}

	NoContent(w)
}

// ListStepTypes возвращает зарегистрированные типы шагов.
// GET /api/v1/step-types
func (h *Handler) ListStepTypes(w http.ResponseWriter, r *http.Request) {
	types := h.registry.Types()
	List(w, types, len(types))
}
