package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

type StatsRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewStatsRepository(db *pgxpool.Pool, logger *zap.Logger) *StatsRepository {
	return &StatsRepository{db: db, logger: logger}
}

// UpsertStats 首次写入时以全零为基线，之后原子累加
func (r *StatsRepository) UpsertStats(ctx context.Context, userID, orgID int64, delta model.StatsDelta, at time.Time) (*model.UserStats, error) {
	st := model.UserStats{UserID: userID, OrgID: orgID}
	err := r.db.QueryRow(ctx, `
		INSERT INTO user_stats (user_id, org_id, tasks_completed, tasks_overdue, karma_points, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, org_id) DO UPDATE SET
			tasks_completed = user_stats.tasks_completed + EXCLUDED.tasks_completed,
			tasks_overdue   = user_stats.tasks_overdue + EXCLUDED.tasks_overdue,
			karma_points    = user_stats.karma_points + EXCLUDED.karma_points,
			last_updated    = EXCLUDED.last_updated
		RETURNING tasks_completed, tasks_overdue, karma_points, last_updated`,
		userID, orgID, delta.Completed, delta.Overdue, delta.Karma, at,
	).Scan(&st.TasksCompleted, &st.TasksOverdue, &st.Karma, &st.LastUpdated)
	if err != nil {
		r.logger.Error("Failed to upsert user stats",
			zap.Int64("user_id", userID),
			zap.Int64("org_id", orgID),
			zap.Error(err),
		)
		return nil, err
	}
	st.LastUpdated = st.LastUpdated.UTC()
	return &st, nil
}

// GetStats 不存在时返回全零
func (r *StatsRepository) GetStats(ctx context.Context, userID, orgID int64) (*model.UserStats, error) {
	st := model.UserStats{UserID: userID, OrgID: orgID}
	err := r.db.QueryRow(ctx, `
		SELECT tasks_completed, tasks_overdue, karma_points, last_updated
		FROM user_stats
		WHERE user_id = $1 AND org_id = $2`, userID, orgID,
	).Scan(&st.TasksCompleted, &st.TasksOverdue, &st.Karma, &st.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return &st, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user stats", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	st.LastUpdated = st.LastUpdated.UTC()
	return &st, nil
}
