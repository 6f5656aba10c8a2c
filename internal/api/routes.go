package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Workflows
	mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("POST /api/v1/workflows", chain(http.HandlerFunc(h.CreateWorkflow)))
	mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("PUT /api/v1/workflows/{id}", chain(http.HandlerFunc(h.UpdateWorkflow)))
	mux.Handle("DELETE /api/v1/workflows/{id}", chain(http.HandlerFunc(h.DeleteWorkflow)))

	// Steps
	mux.Handle("GET /api/v1/workflows/{id}/steps", chain(http.HandlerFunc(h.ListSteps)))
	mux.Handle("POST /api/v1/workflows/{id}/steps", chain(http.HandlerFunc(h.AddStep)))
	mux.Handle("POST /api/v1/workflows/{id}/steps/reorder", chain(http.HandlerFunc(h.MoveStep)))
	mux.Handle("DELETE /api/v1/workflows/{id}/steps/{stepID}", chain(http.HandlerFunc(h.DeleteStep)))

	// Runs
	mux.Handle("GET /api/v1/workflows/{id}/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("POST /api/v1/workflows/{id}/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))

	// Logs
	mux.Handle("GET /api/v1/logs", chain(http.HandlerFunc(h.ListLogs)))

	// Step types
	mux.Handle("GET /api/v1/step-types", chain(http.HandlerFunc(h.ListStepTypes)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/workflows/{id}/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))
}
