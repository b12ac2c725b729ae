package reminders

import (
	"context"
	"time"

	"flowtask-backend/internal/tasks"
)

// Event is a transient reminder, recomputed on every pass. It is never
// stored; the task's reminder_sent flag is what suppresses repeats.
type Event struct {
	TaskID string `json:"task_id"`
	Text   string `json:"text"`
	IsDue  bool   `json:"is_due"`
}

// Store is the slice of the task store the scheduler needs.
type Store interface {
	ReminderCandidates(ctx context.Context, userID int) ([]tasks.Task, error)
	MarkReminderSent(ctx context.Context, userID int, id string) error
}

type Scheduler struct {
	store Store
	loc   *time.Location
}

func NewScheduler(store Store, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{store: store, loc: loc}
}

// Pending returns every reminder that is upcoming or due at now.
// Tasks already marked sent never reach this point: the store filters
// them out of the candidate set.
func (s *Scheduler) Pending(ctx context.Context, userID int, now time.Time) ([]Event, error) {
	candidates, err := s.store.ReminderCandidates(ctx, userID)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(candidates))
	for _, t := range candidates {
		if ev, ok := s.evaluate(t, now); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// MarkSent flags the task so later passes skip it. Marking twice is a
// no-op by design.
func (s *Scheduler) MarkSent(ctx context.Context, userID int, id string) error {
	return s.store.MarkReminderSent(ctx, userID, id)
}

// evaluate decides whether one task fires at now. Tasks without a
// time-of-day never fire: a reminder setting on a timeless task stays
// inert until the task gets a time.
func (s *Scheduler) evaluate(t tasks.Task, now time.Time) (Event, bool) {
	if t.Time == "" {
		return Event{}, false
	}
	lead, ok := t.Reminder.Lead()
	if !ok {
		return Event{}, false
	}

	dueAt, err := time.ParseInLocation(
		tasks.DateLayout+" "+tasks.TimeLayout, t.Date+" "+t.Time, s.loc)
	if err != nil {
		return Event{}, false
	}
	fireAt := dueAt.Add(-lead)

	switch {
	case !now.Before(dueAt): // due wins over upcoming
		return Event{TaskID: t.ID, Text: t.Text, IsDue: true}, true
	case !fireAt.After(now):
		return Event{TaskID: t.ID, Text: t.Text, IsDue: false}, true
	default:
		return Event{}, false
	}
}
