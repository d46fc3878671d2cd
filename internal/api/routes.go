package api

import "github.com/go-chi/chi/v5"

func RegisterRoutes(mux chi.Router, h *Handlers, s *Streams) {
	mux.Get("/healthz", h.Health)
	mux.Get("/version", h.Version)

	mux.Route("/api", func(api chi.Router) {
		api.Post("/chat", h.Chat)
		api.Get("/history/{sessionID}", h.History)
		api.Get("/sessions", h.ListSessions)
		api.Delete("/sessions/{sessionID}", h.EndSession)
		api.Get("/universities", h.Universities)
		api.Get("/search-url", h.SearchURL)
		api.Get("/chat/{sessionID}/events", s.Events)
	})
	mux.Get("/ws/chat/{sessionID}", s.WebSocket)
}
