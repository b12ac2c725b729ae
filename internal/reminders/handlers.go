package reminders

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"flowtask-backend/internal/analytics"
	"flowtask-backend/internal/auth"
	"flowtask-backend/internal/tasks"
)

// PendingHandler serves the client's polling tick.
func PendingHandler(s *Scheduler, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		events, err := s.Pending(r.Context(), uid, now())
		if err != nil {
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reminders": events,
		})
	}
}

// MarkSentHandler flags a reminder as delivered. Idempotent: repeating
// the call succeeds without changing anything.
func MarkSentHandler(s *Scheduler, events *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		id := r.PathValue("id")

		if err := s.MarkSent(r.Context(), uid, id); err != nil {
			if errors.Is(err, tasks.ErrNotFound) {
				http.Error(w, "task not found", http.StatusNotFound)
				return
			}
			http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
			return
		}

		env := analytics.FromRequest(r)
		env.UserID = uid
		_ = analytics.Log(r.Context(), events, env, "reminder_fired",
			map[string]any{"task_id": id}, analytics.SourceEventKeyFromRequest(r))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
