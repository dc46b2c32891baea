package watchlists

import (
	"net/http"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/auth"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/middleware"
	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(auth.Tokens))

		r.Get("/", ListWatchlists)
		r.Post("/", CreateWatchlist)
		r.Get("/{id}", GetWatchlist)
		r.Put("/{id}", RenameWatchlist)
		r.Delete("/{id}", DeleteWatchlist)

		r.Post("/{id}/entries", AddEntry)
		r.Delete("/{id}/entries/{entryID}", RemoveEntry)
	})

	return r
}
