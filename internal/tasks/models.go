package tasks

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("tasks: not found")
	ErrValidation = errors.New("tasks: validation")
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// Rank orders priorities for display tie-breaks: high > medium > low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

type ReminderSetting string

const (
	ReminderNone   ReminderSetting = "none"
	Reminder15Min  ReminderSetting = "15min"
	Reminder30Min  ReminderSetting = "30min"
	Reminder1Hour  ReminderSetting = "1hour"
	ReminderAtTime ReminderSetting = "attime"
)

func (r ReminderSetting) IsValid() bool {
	switch r {
	case ReminderNone, Reminder15Min, Reminder30Min, Reminder1Hour, ReminderAtTime:
		return true
	default:
		return false
	}
}

// Lead reports the duration before the task's due time at which the
// reminder first becomes upcoming. ok is false for ReminderNone.
func (r ReminderSetting) Lead() (lead time.Duration, ok bool) {
	switch r {
	case Reminder15Min:
		return 15 * time.Minute, true
	case Reminder30Min:
		return 30 * time.Minute, true
	case Reminder1Hour:
		return time.Hour, true
	case ReminderAtTime:
		return 0, true
	default:
		return 0, false
	}
}

type Task struct {
	ID           string          `json:"id"`
	UserID       int             `json:"-"`
	Text         string          `json:"text"`
	Completed    bool            `json:"completed"`
	Priority     Priority        `json:"priority"`
	Date         string          `json:"date"`
	Time         string          `json:"time,omitempty"`
	Reminder     ReminderSetting `json:"reminder"`
	ReminderSent bool            `json:"reminder_sent"`
	Order        int             `json:"order"`
	AudioBase64  string          `json:"audio_base64,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Patch is a partial task update. Nil fields are left untouched.
type Patch struct {
	Text        *string          `json:"text"`
	Completed   *bool            `json:"completed"`
	Priority    *Priority        `json:"priority"`
	Date        *string          `json:"date"`
	Time        *string          `json:"time"`
	Reminder    *ReminderSetting `json:"reminder"`
	Order       *int             `json:"order"`
	AudioBase64 *string          `json:"audio_base64"`
}

func (p Patch) IsEmpty() bool {
	return p.Text == nil && p.Completed == nil && p.Priority == nil &&
		p.Date == nil && p.Time == nil && p.Reminder == nil &&
		p.Order == nil && p.AudioBase64 == nil
}

func (p Patch) Validate() error {
	if p.Text != nil && *p.Text == "" {
		return fmt.Errorf("%w: text must not be empty", ErrValidation)
	}
	if p.Priority != nil && !p.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, *p.Priority)
	}
	if p.Date != nil {
		if err := ValidateDate(*p.Date); err != nil {
			return err
		}
	}
	if p.Time != nil && *p.Time != "" {
		if err := ValidateTime(*p.Time); err != nil {
			return err
		}
	}
	if p.Reminder != nil && !p.Reminder.IsValid() {
		return fmt.Errorf("%w: invalid reminder %q", ErrValidation, *p.Reminder)
	}
	if p.Order != nil && *p.Order < 0 {
		return fmt.Errorf("%w: order must be non-negative", ErrValidation)
	}
	return nil
}

func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}
	return nil
}

func ValidateTime(t string) error {
	if _, err := time.Parse(TimeLayout, t); err != nil {
		return fmt.Errorf("%w: invalid time %q", ErrValidation, t)
	}
	return nil
}

// ValidateNew checks a task about to be created. Time-of-day stays
// optional even when a reminder is set; a timeless reminder is inert
// until a time is assigned.
func (t Task) ValidateNew() error {
	if t.Text == "" {
		return fmt.Errorf("%w: text is required", ErrValidation)
	}
	if err := ValidateDate(t.Date); err != nil {
		return err
	}
	if t.Time != "" {
		if err := ValidateTime(t.Time); err != nil {
			return err
		}
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, t.Priority)
	}
	if !t.Reminder.IsValid() {
		return fmt.Errorf("%w: invalid reminder %q", ErrValidation, t.Reminder)
	}
	return nil
}
