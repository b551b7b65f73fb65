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
		CORS(h.allowedOrigins),
	)

	// Runs
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.SubmitRun)))
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/current", chain(http.HandlerFunc(h.CurrentRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))

	// Steps
	mux.Handle("GET /api/v1/steps", chain(http.HandlerFunc(h.ListSteps)))

	// CORS preflight
	mux.Handle("OPTIONS /api/v1/", chain(http.HandlerFunc(preflight)))
}

// preflight отвечает на OPTIONS; заголовки выставляет CORS.
func preflight(w http.ResponseWriter, _ *http.Request) {
	NoContent(w)
}
