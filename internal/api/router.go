package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/health", h.Health)

	r.Route("/v1/scheduler", func(r chi.Router) {
		r.Get("/status", h.SchedulerStatus)
		r.Post("/start", h.SchedulerStart)
		r.Post("/stop", h.SchedulerStop)
	})

	r.Route("/v1/commands", func(r chi.Router) {
		r.Get("/", h.ListCommands)
		r.Post("/", h.CreateCommand)
		r.Get("/{id}", h.GetCommand)
		r.Put("/{id}", h.UpdateCommand)
		r.Patch("/{id}/active", h.SetCommandActive)
		r.Delete("/{id}", h.DeleteCommand)
	})

	r.Post("/v1/resolve", h.Resolve)

	r.Route("/v1/messages", func(r chi.Router) {
		r.Get("/", h.ListMessages)
		r.Post("/", h.EnqueueMessage)
		r.Get("/sent", h.ListSentMessages)
		r.Get("/{id}", h.GetMessage)
		r.Delete("/{id}", h.CancelMessage)
		r.Get("/{id}/receipts", h.MessageReceipts)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("bot-dispatch"))
	})

	return r
}
