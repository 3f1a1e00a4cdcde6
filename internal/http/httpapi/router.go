package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/middleware"
)

func NewRouter(app *handlers.App, jwtSecret string, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/api/veo", func(r chi.Router) {
		r.Use(middleware.AuthJWT(jwtSecret))
		r.Post("/generations", app.GenerationsCreate)
		r.Get("/generations", app.GenerationsList)
		r.Get("/generations/{job_id}", app.GenerationsGet)
		r.Delete("/generations/{job_id}", app.GenerationsDelete)
		r.Get("/usage", app.Usage)
	})

	return r
}
