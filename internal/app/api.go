package app

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/specialistvlad/healthmesh/internal/ctxlog"
	"github.com/specialistvlad/healthmesh/internal/flash"
	"github.com/specialistvlad/healthmesh/internal/pollnow"
	"github.com/specialistvlad/healthmesh/internal/view"
)

// Handler returns the HTTP surface: health, metrics, the read API, widget
// commands and the socket.io endpoint.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.healthHandler)
	mux.Handle("GET /metrics", a.metrics.Handler())
	mux.HandleFunc("GET /api/status", a.statusHandler)
	mux.HandleFunc("GET /api/nodes", a.listHandler)
	mux.HandleFunc("GET /api/nodes/{id...}", a.detailHandler)
	mux.HandleFunc("GET /api/selection", a.selectionHandler)
	mux.HandleFunc("POST /api/pollNow/{id...}", a.pollNowHandler)
	mux.HandleFunc("POST /api/focus/{id...}", a.focusHandler)
	mux.HandleFunc("POST /api/fit", a.fitHandler)
	mux.Handle("/socket.io/", a.sockets.Handler())
	return mux
}

func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, a.Status())
}

// modeParam reads ?view=, defaulting to the drawn projection.
func (a *App) modeParam(r *http.Request) (view.Mode, error) {
	raw := r.URL.Query().Get("view")
	if raw == "" {
		return a.engine.Mode(), nil
	}
	return view.ParseMode(raw)
}

func (a *App) listHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := a.modeParam(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	window := cmp.Or(a.config.View.FlashDuration, flash.DefaultDuration)
	now := a.clock.Now()
	snap := a.engine.Snapshot()
	items := view.List(snap, view.Query{
		Mode:   mode,
		Filter: r.URL.Query().Get("filter"),
		Recent: func(id string) bool {
			at, ok := view.Project(snap, mode).LastUpdated(id)
			return ok && now.Sub(at) < window
		},
	})
	writeJSON(r.Context(), w, http.StatusOK, items)
}

func (a *App) detailHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := a.modeParam(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	d, ok := view.Describe(a.engine.Snapshot(), mode, r.PathValue("id"))
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, errors.New("not found"))
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, d)
}

// selectionHandler describes what the widgets have selected, for the detail
// pane.
func (a *App) selectionHandler(w http.ResponseWriter, r *http.Request) {
	mode := a.engine.Mode()
	snap := a.engine.Snapshot()
	details := []view.Detail{}
	for _, id := range a.engine.Selected() {
		if d, ok := view.Describe(snap, mode, id); ok {
			details = append(details, d)
		}
	}
	writeJSON(r.Context(), w, http.StatusOK, details)
}

// pollNowHandler forwards the request in the background and answers at once.
// Fresh state arrives later on the stream.
func (a *App) pollNowHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	logger := ctxlog.FromContext(r.Context()).With("id", id)
	go func() {
		ctx, cancel := context.WithTimeout(ctxlog.WithLogger(context.Background(), logger), a.config.Agents.Timeout+time.Second)
		defer cancel()
		err := a.poller.PollNow(ctx, id)
		switch {
		case errors.Is(err, pollnow.ErrUnknownNode):
			a.metrics.PollRequests.WithLabelValues("unknown").Inc()
			logger.Warn("Agents do not know the node.")
		case err != nil:
			a.metrics.PollRequests.WithLabelValues("failed").Inc()
			logger.Warn("Poll request failed.", "error", err)
		default:
			a.metrics.PollRequests.WithLabelValues("sent").Inc()
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) focusHandler(w http.ResponseWriter, r *http.Request) {
	if !a.engine.Focus(r.PathValue("id")) {
		writeError(r.Context(), w, http.StatusNotFound, errors.New("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) fitHandler(w http.ResponseWriter, _ *http.Request) {
	a.engine.Fit()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ctxlog.FromContext(ctx).Debug("Failed to write response.", "error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	writeJSON(ctx, w, status, map[string]string{"error": err.Error()})
}
