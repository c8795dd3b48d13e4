package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter assembles the chi router. Middleware applies to every
// route, the websocket endpoint included, so upgrades must survive the
// access log wrapper (see statusRecorder).
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID)
	r.Use(s.withAccessLog)
	r.Use(s.withRecovery)
	r.Use(s.withCORS)
	r.Use(s.withBodyLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/system/info", s.handleSystemInfo)
		r.Get("/system/stats", s.handleSystemStats)

		r.Route("/instruments", s.mountInstruments)

		// Event stream for dashboards
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// mountInstruments wires the instrument record CRUD plus the live
// surfaces that talk to running adapters.
func (s *Server) mountInstruments(r chi.Router) {
	r.Get("/", s.handleListInstruments)
	r.Post("/", s.handleCreateInstrument)

	r.Route("/{name}", func(r chi.Router) {
		r.Get("/", s.handleGetInstrument)
		r.Patch("/", s.handleUpdateInstrument)
		r.Delete("/", s.handleDeleteInstrument)

		r.Post("/start", s.handleStartInstrument)
		r.Post("/stop", s.handleStopInstrument)

		r.Get("/commands", s.handleListCommands)
		r.Post("/read", s.handleRead)
		r.Post("/write", s.handleWrite)
		r.Post("/invoke", s.handleInvoke)
	})
}

// handleHealth reports liveness plus the running version.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
