package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/itinera/internal/planner"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *planner.Service, images ImageLookup, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, images)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/rooms/{room}", func(r chi.Router) {
		// Spot pool.
		r.Get("/spots", h.ListSpots)
		r.Put("/spots/{id}", h.PutSpot)

		r.Put("/travel-days", h.SetTravelDays)

		// Day plans.
		r.Route("/days/{day}", func(r chi.Router) {
			r.Get("/", h.GetDay)
			r.Put("/start", h.SetStartTime)
			r.Patch("/segments/{index}", h.EditSegment)
			r.Post("/reorder", h.Reorder)
			r.Post("/drag/{action}", h.Drag)
			r.Post("/spots/{id}/exclude", h.SetInclusion(false))
			r.Post("/spots/{id}/include", h.SetInclusion(true))
			r.Post("/optimize", h.Optimize)
		})

		// Pinned plans.
		r.Get("/pins", h.ListPins)
		r.Post("/pins", h.CreatePin)
		r.Post("/pins/{id}/load", h.LoadPin)
		r.Delete("/pins/{id}", h.DeletePin)
	})

	r.Get("/images", h.Image)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
