package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

// ─── User stats ─────────────────────────────────────────────────────────────

// UpsertStats creates the row on first use and applies delta atomically.
func (s *Store) UpsertStats(ctx context.Context, userID, orgID int64, delta model.StatsDelta, at time.Time) (*model.UserStats, error) {
	st := model.UserStats{UserID: userID, OrgID: orgID}
	var lastUpdated int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_stats (user_id, org_id, tasks_completed, tasks_overdue, karma_points, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, org_id) DO UPDATE SET
			tasks_completed = tasks_completed + excluded.tasks_completed,
			tasks_overdue   = tasks_overdue + excluded.tasks_overdue,
			karma_points    = karma_points + excluded.karma_points,
			last_updated    = excluded.last_updated
		RETURNING tasks_completed, tasks_overdue, karma_points, last_updated`,
		userID, orgID, delta.Completed, delta.Overdue, delta.Karma, unix(at),
	).Scan(&st.TasksCompleted, &st.TasksOverdue, &st.Karma, &lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("upsert stats: %w", err)
	}
	st.LastUpdated = fromUnix(lastUpdated)
	return &st, nil
}

// GetStats returns all-zero stats when no row exists yet.
func (s *Store) GetStats(ctx context.Context, userID, orgID int64) (*model.UserStats, error) {
	st := model.UserStats{UserID: userID, OrgID: orgID}
	var lastUpdated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT tasks_completed, tasks_overdue, karma_points, last_updated
		FROM user_stats WHERE user_id = ? AND org_id = ?`, userID, orgID,
	).Scan(&st.TasksCompleted, &st.TasksOverdue, &st.Karma, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return &st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	st.LastUpdated = fromUnix(lastUpdated)
	return &st, nil
}
