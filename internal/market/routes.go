package market

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

		r.Get("/facilities", ListFacilities)
		r.Get("/facilities/{ccn}", GetFacility)
		r.Get("/facilities/{ccn}/scores", GetFacilityScores)

		r.Get("/owners", ListOwners)
		r.Get("/owners/{id}", GetOwner)

		r.Get("/metrics/{cbsa}", GetMetrics)

		r.Get("/scores", ListScores)
		r.Get("/scores/compare", CompareMarkets)
		r.Get("/scores/{cbsa}", GetScores)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware(auth.Tokens))
			r.Post("/scores/rebuild", RebuildScores)
		})
	})

	return r
}
