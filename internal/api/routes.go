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

	mux.Handle("GET /api/health", chain(http.HandlerFunc(h.Health)))

	// Pipelines
	mux.Handle("GET /api/pipelines", chain(http.HandlerFunc(h.ListPipelines)))
	mux.Handle("POST /api/pipelines/run", chain(http.HandlerFunc(h.RunPipeline)))
	mux.Handle("GET /api/pipelines/{id}", chain(http.HandlerFunc(h.GetPipeline)))

	// Events
	mux.Handle("GET /api/emit_test", chain(http.HandlerFunc(h.EmitTest)))
	mux.Handle("GET /api/events", chain(http.HandlerFunc(h.StreamEvents)))
	mux.Handle("GET /ws", chain(http.HandlerFunc(h.StreamWebSocket)))
}

// Routes возвращает готовый http.Handler: маршруты API под CORS.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return CORS()(mux)
}
