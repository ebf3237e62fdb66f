package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

type viewResponse struct {
	Principal  domain.Principal `json:"principal"`
	Generation uint64           `json:"generation"`
	Entries    []domain.Entry   `json:"entries"`
}

type createRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type renameRequest struct {
	Title string `json:"title"`
}

type recordResponse struct {
	Record domain.Record `json:"record"`
	Status domain.Status `json:"status"`
}

type deleteResponse struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
}

func snapshot(v deps.View) viewResponse {
	return viewResponse{
		Principal:  v.Principal(),
		Generation: v.Generation(),
		Entries:    v.Snapshot(),
	}
}

// ListBookmarks returns the view in display order. With ?q= only matching
// entries are returned, best match first.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := snapshot(d.View)
		if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
			resp.Entries = domain.Search(q, resp.Entries)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// CreateBookmark creates a record optimistically. With ?wait=true the
// response is delayed until the store has accepted or refused it.
func CreateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}

		rec, receipt, err := d.View.RequestCreate(r.Context(), req.Title, req.URL)
		if err != nil {
			writeError(w, err, http.StatusInternalServerError)
			return
		}

		if !waitRequested(r) {
			writeJSON(w, http.StatusAccepted, recordResponse{Record: rec, Status: domain.StatusPending})
			return
		}

		if err := receipt.Wait(r.Context()); err != nil {
			d.Logger.Warn("create rejected",
				logger.String("record_id", rec.ID),
				logger.Error(err))
			writeError(w, err, http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusCreated, recordResponse{Record: rec, Status: receipt.Status()})
	}
}

// DeleteBookmark removes a record optimistically. With ?wait=true the
// response is delayed until the store has answered.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		receipt, err := d.View.RequestDelete(r.Context(), id)
		if err != nil {
			writeError(w, err, http.StatusInternalServerError)
			return
		}

		if !waitRequested(r) {
			writeJSON(w, http.StatusAccepted, deleteResponse{ID: id, Status: domain.StatusPending})
			return
		}

		if err := receipt.Wait(r.Context()); err != nil {
			d.Logger.Warn("delete rejected",
				logger.String("record_id", id),
				logger.Error(err))
			writeError(w, err, http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RenameBookmark changes a record's title.
func RenameBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req renameRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}

		rec, err := d.View.RequestRename(r.Context(), chi.URLParam(r, "id"), req.Title)
		if err != nil {
			writeError(w, err, http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, recordResponse{Record: rec, Status: domain.StatusConfirmed})
	}
}
