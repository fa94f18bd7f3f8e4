package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

type UpdateRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUpdateRepository(db *pgxpool.Pool, logger *zap.Logger) *UpdateRepository {
	return &UpdateRepository{db: db, logger: logger}
}

// UpdateStatus 行锁内更新状态，completed_at 只在首次完成时写入，并追加日志
func (r *UpdateRepository) UpdateStatus(ctx context.Context, ch model.StatusChange) (*model.StatusResult, error) {
	r.logger.Debug("Updating task status",
		zap.Int64("task_id", ch.TaskID),
		zap.String("status", string(ch.Status)),
	)

	res := &model.StatusResult{Update: model.TaskUpdate{
		TaskID:    ch.TaskID,
		ActorID:   ch.ActorID,
		Status:    ch.Status,
		Note:      ch.Note,
		CreatedAt: ch.At,
	}}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var hadCompletion bool
		err := tx.QueryRow(ctx,
			`SELECT completed_at IS NOT NULL FROM tasks WHERE id = $1 FOR UPDATE`, ch.TaskID,
		).Scan(&hadCompletion)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("task %d: %w", ch.TaskID, model.ErrTaskNotFound)
		}
		if err != nil {
			return err
		}

		res.FirstCompletion = ch.Status == model.StatusCompleted && !hadCompletion
		var row pgx.Row
		if res.FirstCompletion {
			row = tx.QueryRow(ctx, `UPDATE tasks SET status = $1, completed_at = $2 WHERE id = $3 RETURNING `+taskColumns,
				string(ch.Status), ch.At, ch.TaskID)
		} else {
			row = tx.QueryRow(ctx, `UPDATE tasks SET status = $1 WHERE id = $2 RETURNING `+taskColumns,
				string(ch.Status), ch.TaskID)
		}
		task, err := scanTask(row)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		res.Task = *task
		return insertUpdate(ctx, tx, &res.Update)
	})
	if err != nil {
		if !errors.Is(err, model.ErrTaskNotFound) {
			r.logger.Error("Failed to update task status", zap.Int64("task_id", ch.TaskID), zap.Error(err))
		}
		return nil, err
	}

	r.logger.Info("Task status updated",
		zap.Int64("task_id", ch.TaskID),
		zap.Int64("update_id", res.Update.ID),
		zap.String("status", string(ch.Status)),
		zap.Bool("first_completion", res.FirstCompletion),
	)
	return res, nil
}

func insertUpdate(ctx context.Context, tx pgx.Tx, u *model.TaskUpdate) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO task_updates (task_id, actor_id, status, note, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		u.TaskID, u.ActorID, string(u.Status), u.Note, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("insert task update: %w", err)
	}
	return nil
}

func (r *UpdateRepository) ListUpdates(ctx context.Context, taskID int64) ([]model.TaskUpdate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, task_id, actor_id, status, note, created_at
		FROM task_updates
		WHERE task_id = $1
		ORDER BY id ASC`, taskID)
	if err != nil {
		r.logger.Error("Failed to list task updates", zap.Int64("task_id", taskID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	updates := []model.TaskUpdate{}
	for rows.Next() {
		var (
			u      model.TaskUpdate
			status string
		)
		if err := rows.Scan(&u.ID, &u.TaskID, &u.ActorID, &status, &u.Note, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Status = model.Status(status)
		u.CreatedAt = u.CreatedAt.UTC()
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

func (r *UpdateRepository) ListActivity(ctx context.Context, orgID int64, from, to time.Time, limit int) ([]model.Activity, error) {
	query := `
		SELECT u.id, u.task_id, u.actor_id, u.status, u.note, u.created_at, t.title
		FROM task_updates u
		JOIN tasks t ON t.id = u.task_id
		WHERE t.org_id = $1 AND u.created_at >= $2 AND u.created_at <= $3
		ORDER BY u.created_at DESC, u.id DESC`
	args := []any{orgID, from, to}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list activity", zap.Int64("org_id", orgID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	out := []model.Activity{}
	for rows.Next() {
		var (
			a      model.Activity
			status string
		)
		if err := rows.Scan(&a.ID, &a.TaskID, &a.ActorID, &status, &a.Note, &a.CreatedAt, &a.TaskTitle); err != nil {
			return nil, err
		}
		a.Status = model.Status(status)
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
