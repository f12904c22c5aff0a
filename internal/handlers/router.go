package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every HTTP and WebSocket route.
func NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", HealthCheck)
	r.Get("/ip/{id}", InstanceIP)

	// Terminal WebSocket, at the root for existing frontends.
	r.Get("/", TerminalWS)
	r.Get("/ws", TerminalWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/spawn", SpawnInstance)
		r.Delete("/destroy/{id}", DestroyInstance)
		r.Get("/instances", ListInstances)

		r.Get("/sessions", ListSessions)
		r.Delete("/sessions/{connId}", CloseSession)

		r.Get("/logs", GetServerLogs)
		r.Delete("/logs", ClearServerLogs)
	})

	return r
}
