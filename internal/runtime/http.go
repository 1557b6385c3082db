package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/eventstore"
	"github.com/loqalabs/loqa-dictate/internal/session"
)

type historySource interface {
	RecentSessions(ctx context.Context, limit int) ([]eventstore.SessionRecord, error)
}

type api struct {
	ctrl    session.Controller
	history historySource
	ready   func() bool
	logger  *slog.Logger
}

func (a *api) routes(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/readyz", a.handleReady)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	mux.HandleFunc("GET /v1/status", a.handleStatus)
	mux.HandleFunc("GET /v1/history", a.handleHistory)
	mux.HandleFunc("POST /v1/toggle", a.action(a.ctrl.Toggle))
	mux.HandleFunc("POST /v1/start", a.action(a.ctrl.StartRecording))
	mux.HandleFunc("POST /v1/stop", a.action(a.ctrl.StopRecording))
	mux.HandleFunc("POST /v1/recover", a.action(a.ctrl.Recover))
	return mux
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *api) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.ctrl.Snapshot())
}

func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := a.history.RecentSessions(r.Context(), limit)
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []eventstore.SessionRecord{}
	}
	a.writeJSON(w, http.StatusOK, sessions)
}

func (a *api) action(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		a.writeJSON(w, http.StatusOK, a.ctrl.Snapshot())
	}
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", slog.String("error", err.Error()))
	}
}
