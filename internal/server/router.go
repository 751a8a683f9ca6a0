// Package server assembles the HTTP surface of the server.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flatroom/flat-server-go/internal/api"
	"github.com/flatroom/flat-server-go/internal/metrics"
)

// Pinger is a dependency /health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the router serves.
type Deps struct {
	Convert api.ConvertService
	Login   api.LoginService
	Tokens  api.TokenVerifier
	// Health maps a dependency name to its check.
	Health map[string]Pinger
}

// NewRouter creates the chi router with all routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(api.RequestID)
	r.Use(api.RequestLogger)
	r.Use(api.Metrics)
	r.Use(api.Tracing)
	r.Use(api.LimitBody)
	r.Use(api.ValidateContentType)

	r.Get("/health", healthHandler(deps.Health))
	r.Handle("/metrics", metrics.Handler())

	convertH := api.NewConvertHandler(deps.Convert)
	loginH := api.NewLoginHandler(deps.Login)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(api.Authenticate(deps.Tokens))
			r.Post("/cloud-storage/convert/finish", convertH.Finish)
			r.Post("/cloud-storage/convert/start", convertH.Start)
		})

		r.Post("/login/process", loginH.Process)
		r.Post("/login/set-auth-uuid", loginH.SetAuthUUID)
		r.Get("/login/github/callback", loginH.GithubCallback)
	})

	return r
}

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Dependencies: map[string]string{}}
		status := http.StatusOK
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				resp.Dependencies[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Dependencies[name] = "ok"
		}
		api.WriteJSON(w, status, resp)
	}
}
