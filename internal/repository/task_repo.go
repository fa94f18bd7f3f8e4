package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

const taskColumns = `id, title, description, assignee_id, assigner_id, org_id, deadline,
	status, priority, created_at, reminder_sent, deadline_notified, completed_at`

type TaskRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTaskRepository(db *pgxpool.Pool, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

// CreateTask 插入任务并写入初始日志（同一事务）
func (r *TaskRepository) CreateTask(ctx context.Context, t *model.Task, initial model.TaskUpdate) error {
	r.logger.Debug("Inserting task",
		zap.Int64("org_id", t.OrgID),
		zap.Int64("assignee_id", t.AssigneeID),
		zap.String("title", t.Title),
	)

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO tasks (title, description, assignee_id, assigner_id, org_id, deadline,
				status, priority, created_at, reminder_sent, deadline_notified)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			t.Title, t.Description, t.AssigneeID, t.AssignerID, t.OrgID, t.Deadline,
			string(t.Status), string(t.Priority), t.CreatedAt, t.ReminderSent, t.DeadlineNotified,
		).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		initial.TaskID = t.ID
		return insertUpdate(ctx, tx, &initial)
	})
	if err != nil {
		r.logger.Error("Failed to insert task", zap.Int64("org_id", t.OrgID), zap.Error(err))
		t.ID = 0
		return err
	}

	r.logger.Info("Task inserted successfully",
		zap.Int64("task_id", t.ID),
		zap.Int64("assignee_id", t.AssigneeID),
	)
	return nil
}

func (r *TaskRepository) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, model.ErrTaskNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get task", zap.Int64("task_id", id), zap.Error(err))
		return nil, err
	}
	return t, nil
}

func (r *TaskRepository) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	where, args := buildFilter(f)
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY deadline ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query tasks", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			r.logger.Error("Failed to scan task row", zap.Error(err))
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.logger.Debug("Tasks listed", zap.Int("count", len(tasks)))
	return tasks, nil
}

// buildFilter 生成 WHERE 条件，占位符从 $1 开始
func buildFilter(f model.TaskFilter) ([]string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.OrgID != 0 {
		add("org_id = $%d", f.OrgID)
	}
	if f.AssigneeID != 0 {
		add("assignee_id = $%d", f.AssigneeID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ExcludeTerminal {
		where = append(where, "status NOT IN ('completed', 'cancelled')")
	}
	if f.ReminderSent != nil {
		add("reminder_sent = $%d", *f.ReminderSent)
	}
	if f.DeadlineNotified != nil {
		add("deadline_notified = $%d", *f.DeadlineNotified)
	}
	if !f.CreatedFrom.IsZero() {
		add("created_at >= $%d", f.CreatedFrom)
	}
	if !f.CreatedTo.IsZero() {
		add("created_at < $%d", f.CreatedTo)
	}
	if !f.CreatedBefore.IsZero() {
		add("created_at <= $%d", f.CreatedBefore)
	}
	if !f.DeadlineFrom.IsZero() {
		add("deadline >= $%d", f.DeadlineFrom)
	}
	if !f.DeadlineTo.IsZero() {
		add("deadline < $%d", f.DeadlineTo)
	}
	if !f.DueBy.IsZero() {
		add("deadline <= $%d", f.DueBy)
	}
	if !f.DueBefore.IsZero() {
		add("deadline < $%d", f.DueBefore)
	}
	return where, args
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t                model.Task
		status, priority string
	)
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.AssigneeID,
		&t.AssignerID,
		&t.OrgID,
		&t.Deadline,
		&status,
		&priority,
		&t.CreatedAt,
		&t.ReminderSent,
		&t.DeadlineNotified,
		&t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = model.Status(status)
	t.Priority = model.Priority(priority)
	t.Deadline = t.Deadline.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	if t.CompletedAt != nil {
		c := t.CompletedAt.UTC()
		t.CompletedAt = &c
	}
	return &t, nil
}

// CompareAndSetFlag 条件更新标记，返回本次是否完成转换
func (r *TaskRepository) CompareAndSetFlag(ctx context.Context, taskID int64, flag model.Flag, expected, desired bool) (bool, error) {
	if !flag.Valid() {
		return false, fmt.Errorf("unknown flag %q", flag)
	}
	col := pgx.Identifier{string(flag)}.Sanitize()
	tag, err := r.db.Exec(ctx,
		fmt.Sprintf(`UPDATE tasks SET %s = $1 WHERE id = $2 AND %s = $3`, col, col),
		desired, taskID, expected,
	)
	if err != nil {
		r.logger.Error("Failed to set flag",
			zap.Int64("task_id", taskID),
			zap.String("flag", string(flag)),
			zap.Error(err),
		)
		return false, err
	}
	if tag.RowsAffected() == 1 {
		r.logger.Info("Flag set",
			zap.Int64("task_id", taskID),
			zap.String("flag", string(flag)),
			zap.Bool("value", desired),
		)
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, taskID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("task %d: %w", taskID, model.ErrTaskNotFound)
	}
	return false, nil
}

// ListOrganizations 所有拥有任务的组织
func (r *TaskRepository) ListOrganizations(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT org_id FROM tasks ORDER BY org_id`)
	if err != nil {
		r.logger.Error("Failed to list organizations", zap.Error(err))
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
