package api

import "net/http"

// ListSteps возвращает каталог шагов в порядке выполнения.
// GET /api/v1/steps
func (h *Handler) ListSteps(w http.ResponseWriter, r *http.Request) {
	steps := h.runner.Catalog().Steps()

	result := make([]StepResponse, len(steps))
	for i, s := range steps {
		result[i] = StepFromCatalog(s)
	}

	List(w, result, len(result))
}
