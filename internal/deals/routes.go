package deals

import (
	"net/http"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/auth"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()

	// All deal routes require authentication
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(auth.Tokens))

		r.Get("/", ListDeals)
		r.Post("/", CreateDeal)
		r.Get("/{id}", GetDeal)
		r.Put("/{id}", UpdateDeal)

		// Workflow
		r.Post("/{id}/stage", ChangeStage)

		// Comments + audit trail
		r.Get("/{id}/comments", ListComments)
		r.Post("/{id}/comments", CreateComment)
		r.Get("/{id}/activity", ListActivity)

		// Locking
		r.Post("/{id}/lock", AcquireLock)
		r.Delete("/{id}/lock", ReleaseLock)

		// Admin-only deletion
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware(auth.Tokens))
			r.Delete("/{id}", DeleteDeal)
		})
	})

	return r
}
