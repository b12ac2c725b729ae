package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ListFilter struct {
	Date     string
	Priority Priority
}

type DateStats struct {
	Date         string `json:"date"`
	Total        int    `json:"total"`
	Completed    int    `json:"completed"`
	HighPriority int    `json:"high_priority"`
}

type Stats struct {
	ByDate         []DateStats `json:"by_date"`
	Total          int         `json:"total"`
	Completed      int         `json:"completed"`
	Pending        int         `json:"pending"`
	CompletionRate float64     `json:"completion_rate"`
}

type Store interface {
	Create(ctx context.Context, t Task) (Task, error)
	Get(ctx context.Context, userID int, id string) (Task, error)
	List(ctx context.Context, userID int, f ListFilter) ([]Task, error)
	Update(ctx context.Context, userID int, id string, p Patch) (Task, error)
	Delete(ctx context.Context, userID int, id string) error
	ClearDate(ctx context.Context, userID int, date string) (int, error)
	Reorder(ctx context.Context, userID int, ids []string) error
	Stats(ctx context.Context, userID int) (Stats, error)
	ReminderCandidates(ctx context.Context, userID int) ([]Task, error)
	MarkReminderSent(ctx context.Context, userID int, id string) error
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const taskColumns = `id, user_id, text, date, time_of_day, priority, completed, reminder, reminder_sent, sort_order, audio_base64, created_at`

// Create inserts a task, assigning it the next order slot within the
// owner's date. The max+1 read and the insert share one transaction.
func (s *PostgresStore) Create(ctx context.Context, t Task) (Task, error) {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Reminder == "" {
		t.Reminder = ReminderNone
	}
	if err := t.ValidateNew(); err != nil {
		return Task{}, err
	}

	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	t.Completed = false
	t.ReminderSent = false

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sort_order)+1, 0)
		FROM tasks
		WHERE user_id=$1 AND date=$2
	`, t.UserID, t.Date).Scan(&t.Order)
	if err != nil {
		return Task{}, fmt.Errorf("next order slot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, t.ID, t.UserID, t.Text, t.Date, t.Time, t.Priority, t.Completed,
		t.Reminder, t.ReminderSent, t.Order, t.AudioBase64, t.CreatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit create: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID int, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE user_id=$1 AND id=$2
	`, userID, id)
	return scanTask(row)
}

func (s *PostgresStore) List(ctx context.Context, userID int, f ListFilter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id=$1`
	args := []any{userID}
	if f.Date != "" {
		args = append(args, f.Date)
		query += fmt.Sprintf(" AND date=$%d", len(args))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		query += fmt.Sprintf(" AND priority=$%d", len(args))
	}
	query += " ORDER BY date, sort_order"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, userID int, id string, p Patch) (Task, error) {
	if p.IsEmpty() {
		return Task{}, fmt.Errorf("%w: no update data provided", ErrValidation)
	}
	if err := p.Validate(); err != nil {
		return Task{}, err
	}

	sets := make([]string, 0, 8)
	args := []any{userID, id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if p.Text != nil {
		add("text", *p.Text)
	}
	if p.Completed != nil {
		add("completed", *p.Completed)
	}
	if p.Priority != nil {
		add("priority", *p.Priority)
	}
	if p.Date != nil {
		add("date", *p.Date)
	}
	if p.Time != nil {
		add("time_of_day", *p.Time)
	}
	if p.Reminder != nil {
		add("reminder", *p.Reminder)
	}
	if p.Order != nil {
		add("sort_order", *p.Order)
	}
	if p.AudioBase64 != nil {
		add("audio_base64", *p.AudioBase64)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET `+strings.Join(sets, ", ")+`
		WHERE user_id=$1 AND id=$2
	`, args...)
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return Task{}, err
	}

	return s.Get(ctx, userID, id)
}

// Delete removes the task without renumbering its date's remaining
// tasks; order gaps are tolerated.
func (s *PostgresStore) Delete(ctx context.Context, userID int, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE user_id=$1 AND id=$2`, userID, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *PostgresStore) ClearDate(ctx context.Context, userID int, date string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE user_id=$1 AND date=$2`, userID, date)
	if err != nil {
		return 0, fmt.Errorf("clear date: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Reorder assigns order = index over the given sequence in a single
// transaction. Any id not owned by userID rolls the whole operation back.
// Tasks outside the sequence keep their order values.
func (s *PostgresStore) Reorder(ctx context.Context, userID int, ids []string) error {
	if err := ValidateSequence(ids); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	for idx, id := range ids {
		res, execErr := tx.ExecContext(ctx, `
			UPDATE tasks SET sort_order=$1
			WHERE user_id=$2 AND id=$3
		`, idx, userID, id)
		if execErr != nil {
			return fmt.Errorf("reorder %s: %w", id, execErr)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: task %s", ErrNotFound, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context, userID int) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE completed),
		       COUNT(*) FILTER (WHERE priority='high')
		FROM tasks
		WHERE user_id=$1
		GROUP BY date
		ORDER BY date
	`, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByDate: make([]DateStats, 0)}
	for rows.Next() {
		var d DateStats
		if err := rows.Scan(&d.Date, &d.Total, &d.Completed, &d.HighPriority); err != nil {
			return Stats{}, err
		}
		stats.ByDate = append(stats.ByDate, d)
		stats.Total += d.Total
		stats.Completed += d.Completed
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	stats.Pending = stats.Total - stats.Completed
	stats.CompletionRate = CompletionRate(stats.Completed, stats.Total)
	return stats, nil
}

// CompletionRate is a percentage rounded to one decimal place.
func CompletionRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*1000) / 10
}

// ReminderCandidates returns incomplete tasks with an unsent, non-none
// reminder. The scheduler decides which of them are actually due.
func (s *PostgresStore) ReminderCandidates(ctx context.Context, userID int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE user_id=$1
		  AND completed=FALSE
		  AND reminder_sent=FALSE
		  AND reminder <> 'none'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("reminder candidates: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkReminderSent is idempotent: marking an already-sent task is a no-op,
// not an error. Unknown ids still report ErrNotFound.
func (s *PostgresStore) MarkReminderSent(ctx context.Context, userID int, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET reminder_sent=TRUE
		WHERE user_id=$1 AND id=$2
	`, userID, id)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return checkRowsAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.UserID, &t.Text, &t.Date, &t.Time, &t.Priority,
		&t.Completed, &t.Reminder, &t.ReminderSent, &t.Order,
		&t.AudioBase64, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	return t, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
