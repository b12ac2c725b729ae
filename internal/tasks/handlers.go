package tasks

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"flowtask-backend/internal/analytics"
	"flowtask-backend/internal/auth"
)

// Handlers exposes the task store over HTTP. Events is the analytics
// sink; nil disables event logging.
type Handlers struct {
	Store  Store
	Events *sql.DB
}

func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		Text        string          `json:"text"`
		Priority    Priority        `json:"priority"`
		Date        string          `json:"date"`
		Time        string          `json:"time"`
		Reminder    ReminderSetting `json:"reminder"`
		AudioBase64 string          `json:"audio_base64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	task, err := h.Store.Create(r.Context(), Task{
		UserID:      uid,
		Text:        body.Text,
		Priority:    body.Priority,
		Date:        body.Date,
		Time:        body.Time,
		Reminder:    body.Reminder,
		AudioBase64: body.AudioBase64,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.logEvent(r, uid, "task_created", map[string]any{
		"task_id":      task.ID,
		"date":         task.Date,
		"priority":     task.Priority,
		"has_time":     task.Time != "",
		"has_audio":    task.AudioBase64 != "",
		"reminder":     task.Reminder,
		"text_len":     len(task.Text),
		"input_method": inputMethod(task),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(task)
}

func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	f := ListFilter{
		Date:     r.URL.Query().Get("date"),
		Priority: Priority(r.URL.Query().Get("priority")),
	}
	if f.Priority != "" && !f.Priority.IsValid() {
		http.Error(w, "invalid priority filter", http.StatusBadRequest)
		return
	}

	list, err := h.Store.List(r.Context(), uid, f)
	if err != nil {
		writeError(w, err)
		return
	}
	SortForDisplay(list)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	task, err := h.Store.Get(r.Context(), uid, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(task)
}

func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")

	var patch Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var prevCompleted bool
	if patch.Completed != nil {
		if prev, err := h.Store.Get(r.Context(), uid, id); err == nil {
			prevCompleted = prev.Completed
		}
	}

	task, err := h.Store.Update(r.Context(), uid, id, patch)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logEvent(r, uid, "task_updated", map[string]any{
		"task_id": task.ID,
	})
	if patch.Completed != nil && prevCompleted != task.Completed {
		event := "task_completed"
		if !task.Completed {
			event = "task_uncompleted"
		}
		h.logEvent(r, uid, event, map[string]any{
			"task_id":  task.ID,
			"date":     task.Date,
			"priority": task.Priority,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(task)
}

func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")

	if err := h.Store.Delete(r.Context(), uid, id); err != nil {
		writeError(w, err)
		return
	}

	h.logEvent(r, uid, "task_deleted", map[string]any{"task_id": id})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "Task deleted successfully",
	})
}

func (h *Handlers) ClearDate(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	date := r.PathValue("date")
	if err := ValidateDate(date); err != nil {
		writeError(w, err)
		return
	}

	n, err := h.Store.ClearDate(r.Context(), uid, date)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "Deleted tasks",
		"count":   n,
	})
}

// Reorder accepts the wire format [{id, order}], sorts items by their
// requested order, and persists order = index over that sequence.
func (h *Handlers) Reorder(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var items []struct {
		ID    string `json:"id"`
		Order int    `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	if err := h.Store.Reorder(r.Context(), uid, ids); err != nil {
		writeError(w, err)
		return
	}

	h.logEvent(r, uid, "tasks_reordered", map[string]any{"count": len(ids)})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "Tasks reordered",
	})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	stats, err := h.Store.Stats(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

func (h *Handlers) logEvent(r *http.Request, uid int, name string, props map[string]any) {
	env := analytics.FromRequest(r)
	env.UserID = uid
	_ = analytics.Log(r.Context(), h.Events, env, name, props, analytics.SourceEventKeyFromRequest(r))
}

func inputMethod(t Task) string {
	if t.AudioBase64 != "" {
		return "voice"
	}
	return "text"
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "task not found", http.StatusNotFound)
	default:
		http.Error(w, "db error: "+err.Error(), http.StatusInternalServerError)
	}
}
