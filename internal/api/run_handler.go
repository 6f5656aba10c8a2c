package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/repo"
	"github.com/shaiso/Stepflow/internal/telemetry"
)

// ListRuns возвращает runs workflow, новые первыми.
// GET /api/v1/workflows/{id}/runs?limit=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid workflow id")
	if !ok {
		return
	}

	if _, err := h.workflows.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	limit := queryInt(r, "limit", repo.DefaultPageSize)
	runs, err := h.runs.ListByWorkflow(r.Context(), id, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, RunsFromDomain(runs), len(runs))
}

// CreateRun запускает workflow.
// POST /api/v1/workflows/{id}/runs
//
// По умолчанию run выполняется синхронно: ответ содержит run в
// финальном статусе и его лог. С ?async=true запрос ставится в очередь
// воркерам, ответ 202.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
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

	if len(stepDefs) == 0 {
		InvalidState(w, "workflow has no steps")
		return
	}

	if r.URL.Query().Get("async") == "true" {
		h.enqueueRun(w, r, id)
		return
	}

	logger := telemetry.FromContext(r.Context())

	run, err := h.executor.Execute(r.Context(), id, stepDefs)
	if err != nil {
		if run == nil {
			InternalError(w, logger, err)
			return
		}
		// Run выполнен, но статус не сохранился; отдаём то, что есть
		logger.Warn("run finished with storage error", "run_id", run.ID, "error", err)
	}

	resp := RunFromDomain(run)
	entries, err := h.logs.ListByRun(context.WithoutCancel(r.Context()), run.ID)
	if err != nil {
		logger.Warn("failed to load run logs", "run_id", run.ID, "error", err)
	} else {
		resp.Logs = LogsFromDomain(entries)
	}

	Created(w, resp)
}

// enqueueRun публикует запрос на выполнение run в очередь.
func (h *Handler) enqueueRun(w http.ResponseWriter, r *http.Request, workflowID uuid.UUID) {
	if h.requester == nil {
		InvalidState(w, "async runs are not configured")
		return
	}

	if err := h.requester.PublishRunRequested(r.Context(), workflowID, nil); err != nil {
		InternalError(w, telemetry.FromContext(r.Context()), err)
		return
	}

	Accepted(w, RunAcceptedResponse{WorkflowID: workflowID, Queued: true})
}

// GetRun возвращает run с логом в порядке записи.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, r, "id", "invalid run id")
	if !ok {
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	entries, err := h.logs.ListByRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	resp := RunFromDomain(run)
	resp.Logs = LogsFromDomain(entries)
	Success(w, resp)
}

// ListLogs возвращает записи логов всех runs, новые первыми.
// GET /api/v1/logs?run_id=...&limit=...&offset=...
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	filter := repo.LogFilter{
		Limit:  queryInt(r, "limit", repo.DefaultPageSize),
		Offset: queryInt(r, "offset", 0),
	}

	if runIDStr := r.URL.Query().Get("run_id"); runIDStr != "" {
		runID, err := uuid.Parse(runIDStr)
		if err != nil {
			BadRequest(w, "invalid run_id")
			return
		}
		filter.RunID = &runID
	}

	entries, total, err := h.logs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, LogsFromDomain(entries), total)
}

// queryInt читает целый query-параметр; пустое или некорректное
// значение заменяется на defaultVal.
func queryInt(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
