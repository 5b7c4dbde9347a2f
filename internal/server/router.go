package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the API router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.createSession)
			r.Get("/", h.listSessions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getSession)
				r.Delete("/", h.deleteSession)
				r.Post("/messages", h.sendMessage)
				r.Post("/answer", h.submitAnswer)
				r.Post("/journey/next", h.journeyNav(+1))
				r.Post("/journey/prev", h.journeyNav(-1))
				r.Post("/driving", h.startDriving)
				r.Delete("/driving", h.stopDriving)
				r.Get("/specialists", h.specialistStatus)
			})
		})

		r.Get("/programs", h.listPrograms)

		r.Route("/agent", func(r chi.Router) {
			r.Post("/start", h.agentStart)
			r.Post("/stop", h.agentStop)
			r.Post("/reset", h.agentReset)
			r.Get("/status", h.agentStatus)
		})
	})

	return r
}
