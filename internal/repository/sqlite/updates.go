package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

// ─── Update log ─────────────────────────────────────────────────────────────

// UpdateStatus sets the task status and appends the log entry atomically.
// completed_at is only ever set once, by the first transition into completed.
// The returned task is read inside the same transaction.
func (s *Store) UpdateStatus(ctx context.Context, ch model.StatusChange) (*model.StatusResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(ch.Status), ch.TaskID)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("task %d: %w", ch.TaskID, model.ErrTaskNotFound)
	}

	out := &model.StatusResult{}
	if ch.Status == model.StatusCompleted {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET completed_at = ? WHERE id = ? AND completed_at IS NULL`,
			unix(ch.At), ch.TaskID,
		)
		if err != nil {
			return nil, fmt.Errorf("set completed_at: %w", err)
		}
		n, _ := res.RowsAffected()
		out.FirstCompletion = n == 1
	}

	task, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, ch.TaskID))
	if err != nil {
		return nil, fmt.Errorf("reload task %d: %w", ch.TaskID, err)
	}
	out.Task = *task

	out.Update = model.TaskUpdate{
		TaskID:    ch.TaskID,
		ActorID:   ch.ActorID,
		Status:    ch.Status,
		Note:      ch.Note,
		CreatedAt: fromUnix(unix(ch.At)),
	}
	if _, err := insertUpdate(ctx, tx, &out.Update); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func insertUpdate(ctx context.Context, tx *sql.Tx, u *model.TaskUpdate) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO task_updates (task_id, actor_id, status, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.TaskID, u.ActorID, string(u.Status), u.Note, unix(u.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert task update: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	u.ID = id
	return id, nil
}

// ListUpdates returns the full log for a task in insertion order.
func (s *Store) ListUpdates(ctx context.Context, taskID int64) ([]model.TaskUpdate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, actor_id, status, note, created_at
		FROM task_updates WHERE task_id = ? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	updates := []model.TaskUpdate{}
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, *u)
	}
	return updates, rows.Err()
}

// ListActivity returns an organization's updates in [from, to], newest first.
func (s *Store) ListActivity(ctx context.Context, orgID int64, from, to time.Time, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.task_id, u.actor_id, u.status, u.note, u.created_at, t.title
		FROM task_updates u
		JOIN tasks t ON t.id = u.task_id
		WHERE t.org_id = ? AND u.created_at >= ? AND u.created_at <= ?
		ORDER BY u.created_at DESC, u.id DESC
		LIMIT ?`,
		orgID, unix(from), unix(to), limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := []model.Activity{}
	for rows.Next() {
		var (
			a         model.Activity
			status    string
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.TaskID, &a.ActorID, &status, &a.Note, &createdAt, &a.TaskTitle); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Status = model.Status(status)
		a.CreatedAt = fromUnix(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanUpdate(sc scanner) (*model.TaskUpdate, error) {
	var (
		u         model.TaskUpdate
		status    string
		createdAt int64
	)
	if err := sc.Scan(&u.ID, &u.TaskID, &u.ActorID, &status, &u.Note, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan update: %w", err)
	}
	u.Status = model.Status(status)
	u.CreatedAt = fromUnix(createdAt)
	return &u, nil
}
