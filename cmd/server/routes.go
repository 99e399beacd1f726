package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/middleware/auth"
)

// mountAPIRoutes registers the demo resource surface the limiter fronts.
// Real controllers live in the services that import this subsystem; these
// handlers exist so the binary exercises every limiter class end to end.
func mountAPIRoutes(r chi.Router) {
	r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
		// No credential store in this binary: every attempt fails, which
		// also feeds the brute-force counter via the response path.
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "INVALID_CREDENTIALS",
			"message": "Invalid email or password.",
		})
	})

	r.Get("/public/status", func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "status": "operational"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/tickets", okHandler)
		r.Post("/tickets", okHandler)
		r.Get("/forms", okHandler)
		r.Post("/uploads", okHandler)
		r.Post("/campaigns/send", okHandler)
		r.Post("/campaigns/broadcast", okHandler)

		r.Get("/me", func(w http.ResponseWriter, req *http.Request) {
			p, ok := auth.GetPrincipal(req.Context())
			if !ok {
				httputil.WriteJSON(w, http.StatusUnauthorized, map[string]any{
					"success": false,
					"error":   "UNAUTHENTICATED",
					"message": "Authentication required.",
				})
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"id":      p.ID,
				"tier":    string(p.Tier),
			})
		})
	})
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
