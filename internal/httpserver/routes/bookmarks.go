package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/handlers"
)

// requestTimeout bounds every API call except the event stream.
const requestTimeout = 5 * time.Second

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	r.Get("/api/bookmarks/events", handlers.Events(d))

	api := r.With(middleware.Timeout(requestTimeout))
	api.Get("/api/bookmarks", handlers.ListBookmarks(d))
	api.Post("/api/bookmarks", handlers.CreateBookmark(d))
	api.Delete("/api/bookmarks/{id}", handlers.DeleteBookmark(d))
	api.Patch("/api/bookmarks/{id}", handlers.RenameBookmark(d))

	api.Get("/api/session", handlers.GetSession(d))
}
