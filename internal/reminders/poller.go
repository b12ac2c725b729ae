package reminders

import (
	"context"
	"log"
	"time"
)

// DefaultInterval is the design-target polling cadence.
const DefaultInterval = 60 * time.Second

// Notification mirrors the native notification surface: the tag lets the
// OS de-duplicate, RequiresInteraction keeps due reminders on screen.
type Notification struct {
	Title               string
	Body                string
	Icon                string
	Tag                 string
	RequiresInteraction bool
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the process log. Embedders replace
// it with a real delivery surface.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	log.Printf("notify tag=%s title=%q body=%q", n.Tag, n.Title, n.Body)
	return nil
}

// Poller drives the scheduler on a fixed interval for one user. Run
// serializes passes: the next tick is not evaluated until the previous
// one has delivered and marked everything it returned.
type Poller struct {
	Scheduler *Scheduler
	Notifier  Notifier
	UserID    int
	Interval  time.Duration
	Now       func() time.Time
}

// Run polls until ctx is cancelled. A failed read is logged and retried
// on the next tick; the sent flag persists, so a missed tick delays a
// reminder but never loses it.
func (p *Poller) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, now())
		}
	}
}

func (p *Poller) tick(ctx context.Context, now time.Time) {
	events, err := p.Scheduler.Pending(ctx, p.UserID, now)
	if err != nil {
		log.Printf("[WARN] reminder poll failed user=%d: %v", p.UserID, err)
		return
	}

	for _, ev := range events {
		// Mark before delivering the next one so a crash mid-pass
		// cannot replay an already-delivered reminder.
		if err := p.Scheduler.MarkSent(ctx, p.UserID, ev.TaskID); err != nil {
			log.Printf("[WARN] mark sent failed task=%s: %v", ev.TaskID, err)
			continue
		}
		if err := p.Notifier.Notify(ctx, notificationFor(ev)); err != nil {
			log.Printf("[WARN] notify failed task=%s: %v", ev.TaskID, err)
		}
	}
}

func notificationFor(ev Event) Notification {
	title := "Upcoming task"
	if ev.IsDue {
		title = "Task due now"
	}
	return Notification{
		Title:               title,
		Body:                ev.Text,
		Icon:                "/icons/icon-192.png",
		Tag:                 "task-" + ev.TaskID,
		RequiresInteraction: ev.IsDue,
	}
}
