package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/task-rewards/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса вознаграждений.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.CORS)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/api/health", h.Health)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/balance", h.GetBalance)
			r.Get("/transactions", h.GetTransactions)
		})
	})

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Get("/complete", h.TaskInstructions)
		r.Get("/auto-complete", h.AutoComplete)
		r.Post("/complete-manually", h.CompleteTaskManually)
		r.Get("/completion", h.GetCompletionStatus)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", h.AdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.RequireAdmin)

			r.Get("/users", h.ListUsers)
			r.Post("/users/delete", h.DeleteUser)
			r.Post("/tasks", h.CreateTask)
			r.Put("/tasks", h.UpdateTask)
			r.Post("/rewards", h.AddReward)
			r.Post("/completions/verify", h.VerifyCompletion)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusNotFound, "Not Found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
