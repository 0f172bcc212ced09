// Package api exposes read-only HTTP endpoints over tracked usage data.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rossturk/github-traffic-grabber/internal/report"
)

// Handler handles HTTP interactions.
type Handler struct {
	queries report.Querier
}

// NewHandler constructs Handler.
func NewHandler(queries report.Querier) *Handler {
	return &Handler{queries: queries}
}

// RegisterRoutes sets up routes. Action names contain slashes, so endpoints
// take the action as a query parameter rather than a path segment.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/actions", h.actions)
	mux.HandleFunc("/v1/summary", h.summary)
	mux.HandleFunc("/v1/timeline", h.timeline)
	mux.HandleFunc("/v1/activity", h.activity)
	mux.HandleFunc("/healthz", healthz)
}

// healthz returns an OK response for readiness probes.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) actions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	actions, err := h.queries.TrackedActions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": actions})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	action, ok := requireAction(w, r)
	if !ok {
		return
	}

	summary, err := h.queries.Summarize(r.Context(), action)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	action, ok := requireAction(w, r)
	if !ok {
		return
	}
	days := daysParam(r, 30)

	until := time.Now().UTC()
	since := until.AddDate(0, 0, -days)
	points, err := h.queries.Timeline(r.Context(), action, since, until)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]timelinePoint, 0, len(points))
	for _, p := range points {
		items = append(items, timelinePoint{
			Date:         p.Date.Format("2006-01-02"),
			TotalRepos:   p.TotalRepos,
			NewRepos:     p.NewRepos,
			RemovedRepos: p.RemovedRepos,
			ActiveRepos:  p.ActiveRepos,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": action, "days": days, "items": items})
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	action, ok := requireAction(w, r)
	if !ok {
		return
	}
	days := daysParam(r, 7)

	since := time.Now().UTC().AddDate(0, 0, -days)
	activity, err := h.queries.RecentActivity(r.Context(), action, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

// timelinePoint is the wire form of one history row.
type timelinePoint struct {
	Date         string `json:"date"`
	TotalRepos   int    `json:"total_repos"`
	NewRepos     int    `json:"new_repos"`
	RemovedRepos int    `json:"removed_repos"`
	ActiveRepos  int    `json:"active_repos"`
}

func requireAction(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return "", false
	}
	action := r.URL.Query().Get("action")
	if action == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing action parameter")
		return "", false
	}
	return action, true
}

func daysParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
		return parsed
	}
	return fallback
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"type": code, "detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
