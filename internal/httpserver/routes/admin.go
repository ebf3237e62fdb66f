package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/marks/internal/httpserver/mw"
)

func init() { Register(registerAdmin) }

func registerAdmin(r chi.Router, d deps.Deps) {
	admin := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger), mw.EnforceHost(d.AllowedHosts, d.Logger))
	admin.Get("/api/infra", handlers.Infra(d))
	admin.Post("/api/resync", handlers.Resync(d))

	// Only a trusted caller may choose whose bookmarks the view holds.
	session := admin.With(middleware.Timeout(requestTimeout))
	session.Put("/api/session", handlers.PutSession(d))
	session.Delete("/api/session", handlers.DeleteSession(d))
}
