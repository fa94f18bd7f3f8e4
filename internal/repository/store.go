package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store PostgreSQL 实现，组合任务、日志和统计三个仓库
type Store struct {
	*TaskRepository
	*UpdateRepository
	*StatsRepository

	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewStore(db *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{
		TaskRepository:   NewTaskRepository(db, logger),
		UpdateRepository: NewUpdateRepository(db, logger),
		StatsRepository:  NewStatsRepository(db, logger),
		db:               db,
		logger:           logger,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close 关闭连接池
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// Migrate 幂等建表
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			s.logger.Error("Migration failed", zap.String("sql", stmt), zap.Error(err))
			return err
		}
	}
	s.logger.Info("Database schema is up to date", zap.Int("statements", len(schema)))
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id                BIGSERIAL PRIMARY KEY,
		title             TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		assignee_id       BIGINT NOT NULL,
		assigner_id       BIGINT NOT NULL,
		org_id            BIGINT NOT NULL,
		deadline          TIMESTAMPTZ NOT NULL,
		status            TEXT NOT NULL DEFAULT 'assigned'
			CHECK (status IN ('assigned','in_progress','stuck','completed','cancelled')),
		priority          TEXT NOT NULL DEFAULT 'medium'
			CHECK (priority IN ('low','medium','high','urgent')),
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		reminder_sent     BOOLEAN NOT NULL DEFAULT FALSE,
		deadline_notified BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks (assignee_id, org_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_org_deadline ON tasks (org_id, deadline)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_pending_reminder ON tasks (created_at) WHERE NOT reminder_sent`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_pending_escalation ON tasks (deadline) WHERE NOT deadline_notified`,
	`CREATE TABLE IF NOT EXISTS task_updates (
		id         BIGSERIAL PRIMARY KEY,
		task_id    BIGINT NOT NULL REFERENCES tasks(id),
		actor_id   BIGINT NOT NULL,
		status     TEXT NOT NULL,
		note       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_updates_task ON task_updates (task_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_task_updates_created ON task_updates (created_at)`,
	`CREATE TABLE IF NOT EXISTS user_stats (
		user_id         BIGINT NOT NULL,
		org_id          BIGINT NOT NULL,
		tasks_completed BIGINT NOT NULL DEFAULT 0,
		tasks_overdue   BIGINT NOT NULL DEFAULT 0,
		karma_points    BIGINT NOT NULL DEFAULT 0,
		last_updated    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, org_id)
	)`,
}
