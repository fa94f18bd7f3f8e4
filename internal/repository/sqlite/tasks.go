package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

const taskColumns = `id, title, description, assignee_id, assigner_id, org_id, deadline,
	status, priority, created_at, reminder_sent, deadline_notified, completed_at`

// ─── Tasks ──────────────────────────────────────────────────────────────────

// CreateTask inserts the task and its initial update in one transaction.
func (s *Store) CreateTask(ctx context.Context, t *model.Task, initial model.TaskUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (title, description, assignee_id, assigner_id, org_id, deadline,
			status, priority, created_at, reminder_sent, deadline_notified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, t.AssigneeID, t.AssignerID, t.OrgID, unix(t.Deadline),
		string(t.Status), string(t.Priority), unix(t.CreatedAt),
		boolInt(t.ReminderSent), boolInt(t.DeadlineNotified),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("task id: %w", err)
	}

	initial.TaskID = id
	if _, err := insertUpdate(ctx, tx, &initial); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.ID = id
	return nil
}

// GetTask returns model.ErrTaskNotFound for unknown ids.
func (s *Store) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, model.ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// ListTasks returns tasks matching f ordered by deadline, then id.
func (s *Store) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	where, args := buildFilter(f)
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY deadline ASC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func buildFilter(f model.TaskFilter) ([]string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}

	if f.OrgID != 0 {
		add("org_id = ?", f.OrgID)
	}
	if f.AssigneeID != 0 {
		add("assignee_id = ?", f.AssigneeID)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.ExcludeTerminal {
		where = append(where, "status NOT IN ('completed', 'cancelled')")
	}
	if f.ReminderSent != nil {
		add("reminder_sent = ?", boolInt(*f.ReminderSent))
	}
	if f.DeadlineNotified != nil {
		add("deadline_notified = ?", boolInt(*f.DeadlineNotified))
	}
	if !f.CreatedFrom.IsZero() {
		add("created_at >= ?", unix(f.CreatedFrom))
	}
	if !f.CreatedTo.IsZero() {
		add("created_at < ?", unix(f.CreatedTo))
	}
	if !f.CreatedBefore.IsZero() {
		add("created_at <= ?", unix(f.CreatedBefore))
	}
	if !f.DeadlineFrom.IsZero() {
		add("deadline >= ?", unix(f.DeadlineFrom))
	}
	if !f.DeadlineTo.IsZero() {
		add("deadline < ?", unix(f.DeadlineTo))
	}
	if !f.DueBy.IsZero() {
		add("deadline <= ?", unix(f.DueBy))
	}
	if !f.DueBefore.IsZero() {
		add("deadline < ?", unix(f.DueBefore))
	}
	return where, args
}

func scanTask(sc scanner) (*model.Task, error) {
	var (
		t                          model.Task
		status, priority           string
		deadline, createdAt        int64
		reminderSent, deadlineSent bool
		completedAt                sql.NullInt64
	)
	err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.AssigneeID, &t.AssignerID, &t.OrgID,
		&deadline, &status, &priority, &createdAt, &reminderSent, &deadlineSent, &completedAt)
	if err != nil {
		return nil, err
	}
	t.Status = model.Status(status)
	t.Priority = model.Priority(priority)
	t.Deadline = fromUnix(deadline)
	t.CreatedAt = fromUnix(createdAt)
	t.ReminderSent = reminderSent
	t.DeadlineNotified = deadlineSent
	t.CompletedAt = nullableUnix(completedAt)
	return &t, nil
}

// ─── Flags ──────────────────────────────────────────────────────────────────

// CompareAndSetFlag flips flag from expected to new only if it currently
// equals expected. Reports whether this call performed the transition.
func (s *Store) CompareAndSetFlag(ctx context.Context, taskID int64, flag model.Flag, expected, desired bool) (bool, error) {
	if !flag.Valid() {
		return false, fmt.Errorf("unknown flag %q", flag)
	}
	col := string(flag)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE tasks SET %s = ? WHERE id = ? AND %s = ?`, col, col),
		boolInt(desired), taskID, boolInt(expected),
	)
	if err != nil {
		return false, fmt.Errorf("set %s: %w", col, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, taskID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("task %d: %w", taskID, model.ErrTaskNotFound)
	}
	return false, err
}

// ListOrganizations returns every organization that owns at least one task.
func (s *Store) ListOrganizations(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT org_id FROM tasks ORDER BY org_id`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
