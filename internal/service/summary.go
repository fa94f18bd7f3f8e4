package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/pkg/logger"
	"github.com/Malixamran-01/MissMinutes/pkg/metrics"
	"github.com/Malixamran-01/MissMinutes/pkg/trace"
)

// TimeOfDay 本地时刻，例如 21:00
type TimeOfDay struct {
	Hour, Minute int
}

// ParseTimeOfDay 解析 "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On 本地日 day 上的这一时刻
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// OrgSettings 组织级日报设置，零值字段使用全局默认
type OrgSettings struct {
	ID           int64
	Name         string
	SupervisorID int64
	SummaryTime  *TimeOfDay
}

// SummaryConfig 日报参数
type SummaryConfig struct {
	Time        TimeOfDay     // 默认触发时刻
	Grace       time.Duration // 触发时刻之后多久内仍可补发，0 表示当天剩余时间
	RecentLimit int           // 最近动态条数上限
	Shown       int           // 每个列表展示条数
	Concurrency int           // 同时处理的组织数
	ClaimTTL    time.Duration // 每日租约有效期
	Timeout     time.Duration // 单次投递超时
}

func DefaultSummaryConfig() SummaryConfig {
	return SummaryConfig{
		Time:        TimeOfDay{Hour: 21},
		Grace:       time.Hour,
		RecentLimit: 10,
		Shown:       5,
		Concurrency: 4,
		ClaimTTL:    48 * time.Hour,
		Timeout:     10 * time.Second,
	}
}

// DailySummary 某组织某本地日的汇总
type DailySummary struct {
	OrgID          int64
	DayStart       time.Time
	DayEnd         time.Time
	GeneratedAt    time.Time
	AssignedToday  []model.Task
	DueTomorrow    []model.Task
	Overdue        []model.Task
	RecentActivity []model.Activity
}

// DailySummaryGenerator 每个组织每个本地日发送一次日报
type DailySummaryGenerator struct {
	store    TaskStore
	notifier Notifier
	clock    Clock
	claims   Claimer
	orgs     map[int64]OrgSettings
	cfg      SummaryConfig
	logger   *zap.Logger
}

func NewDailySummaryGenerator(
	store TaskStore,
	notifier Notifier,
	clock Clock,
	claims Claimer,
	orgs []OrgSettings,
	cfg SummaryConfig,
	logger *zap.Logger,
) *DailySummaryGenerator {
	m := make(map[int64]OrgSettings, len(orgs))
	for _, o := range orgs {
		m[o.ID] = o
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 10
	}
	if cfg.Shown <= 0 {
		cfg.Shown = 5
	}
	return &DailySummaryGenerator{
		store:    store,
		notifier: notifier,
		clock:    clock,
		claims:   claims,
		orgs:     m,
		cfg:      cfg,
		logger:   logger,
	}
}

func (g *DailySummaryGenerator) Name() string { return "daily_summary" }

func (g *DailySummaryGenerator) settings(orgID int64) OrgSettings {
	if s, ok := g.orgs[orgID]; ok {
		return s
	}
	return OrgSettings{ID: orgID}
}

// due 当前是否处于该组织的触发窗口，返回本地日期 YYYY-MM-DD
func (g *DailySummaryGenerator) due(orgID int64, now time.Time) (string, bool) {
	start, end := g.clock.LocalDayBounds(orgID)
	at := g.cfg.Time
	if s := g.settings(orgID); s.SummaryTime != nil {
		at = *s.SummaryTime
	}
	trigger := at.On(start)
	until := end
	if g.cfg.Grace > 0 && trigger.Add(g.cfg.Grace).Before(end) {
		until = trigger.Add(g.cfg.Grace)
	}
	local := now.In(start.Location())
	return start.Format("2006-01-02"), !local.Before(trigger) && local.Before(until)
}

// organizations 配置中的组织加上存储里出现过的组织
func (g *DailySummaryGenerator) organizations(ctx context.Context) []int64 {
	seen := make(map[int64]bool, len(g.orgs))
	var ids []int64
	for id := range g.orgs {
		seen[id] = true
		ids = append(ids, id)
	}
	stored, err := g.store.ListOrganizations(ctx)
	if err != nil {
		logger.WithTrace(ctx, g.logger).Warn("Failed to list organizations from store, using configured ones", zap.Error(err))
	}
	for _, id := range stored {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RunOnce 检查所有组织，到点的生成并发送日报。单个组织失败不影响其他组织。
func (g *DailySummaryGenerator) RunOnce(ctx context.Context) error {
	log := logger.WithTrace(ctx, g.logger)
	now := g.clock.Now()

	var eg errgroup.Group
	eg.SetLimit(g.cfg.Concurrency)
	for _, orgID := range g.organizations(ctx) {
		date, ok := g.due(orgID, now)
		if !ok {
			continue
		}
		orgID := orgID
		eg.Go(func() error {
			orgCtx := trace.WithContext(ctx, trace.GenerateTraceID())
			if err := g.runOrg(orgCtx, orgID, date); err != nil {
				metrics.IncrementDailySummary("failed")
				log.Error("Daily summary failed",
					zap.Int64("org_id", orgID),
					zap.String("date", date),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return ctx.Err()
}

func (g *DailySummaryGenerator) runOrg(ctx context.Context, orgID int64, date string) error {
	key := fmt.Sprintf("summary:%d:%s", orgID, date)
	claimed, err := g.claims.Acquire(ctx, key, g.cfg.ClaimTTL)
	if err != nil {
		return fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		return nil
	}

	if err := g.SendNow(ctx, orgID); err != nil {
		if rerr := g.claims.Release(ctx, key); rerr != nil {
			logger.WithTrace(ctx, g.logger).Warn("Failed to release summary claim", zap.String("key", key), zap.Error(rerr))
		}
		return err
	}
	return nil
}

// SendNow 立即生成并发送某组织的日报，不检查触发时刻
func (g *DailySummaryGenerator) SendNow(ctx context.Context, orgID int64) error {
	summary, err := g.Build(ctx, orgID)
	if err != nil {
		return err
	}
	msg := SummaryMessage(summary, g.cfg.Shown)

	sendCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	settings := g.settings(orgID)
	if settings.SupervisorID != 0 {
		err = g.notifier.SendDirect(sendCtx, settings.SupervisorID, msg)
	} else {
		err = g.notifier.SendToChannel(sendCtx, orgID, msg)
	}
	if err != nil {
		return fmt.Errorf("deliver summary for org %d: %w", orgID, err)
	}

	metrics.IncrementDailySummary("sent")
	logger.WithTrace(ctx, g.logger).Info("Daily summary sent",
		zap.Int64("org_id", orgID),
		zap.Int64("supervisor_id", settings.SupervisorID),
		zap.Int("assigned_today", len(summary.AssignedToday)),
		zap.Int("due_tomorrow", len(summary.DueTomorrow)),
		zap.Int("overdue", len(summary.Overdue)),
		zap.Int("recent_activity", len(summary.RecentActivity)),
	)
	return nil
}

// Build 按组织时区汇总当前状态
func (g *DailySummaryGenerator) Build(ctx context.Context, orgID int64) (*DailySummary, error) {
	now := g.clock.Now()
	start, end := g.clock.LocalDayBounds(orgID)
	s := &DailySummary{OrgID: orgID, DayStart: start, DayEnd: end, GeneratedAt: now}

	var err error
	if s.AssignedToday, err = g.store.ListTasks(ctx, model.TaskFilter{
		OrgID:       orgID,
		CreatedFrom: start,
		CreatedTo:   end,
	}); err != nil {
		return nil, fmt.Errorf("assigned today: %w", err)
	}
	if s.DueTomorrow, err = g.store.ListTasks(ctx, model.TaskFilter{
		OrgID:           orgID,
		DeadlineFrom:    end,
		DeadlineTo:      end.AddDate(0, 0, 1),
		ExcludeTerminal: true,
	}); err != nil {
		return nil, fmt.Errorf("due tomorrow: %w", err)
	}
	if s.Overdue, err = g.store.ListTasks(ctx, model.TaskFilter{
		OrgID:           orgID,
		DueBefore:       now,
		ExcludeTerminal: true,
	}); err != nil {
		return nil, fmt.Errorf("overdue: %w", err)
	}
	if s.RecentActivity, err = g.store.ListActivity(ctx, orgID, now.Add(-24*time.Hour), now, g.cfg.RecentLimit); err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	return s, nil
}
