package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"21:00", TimeOfDay{Hour: 21}, false},
		{" 07:05 ", TimeOfDay{Hour: 7, Minute: 5}, false},
		{"0:0", TimeOfDay{}, false},
		{"24:00", TimeOfDay{}, true},
		{"12:60", TimeOfDay{}, true},
		{"noon", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if s := (TimeOfDay{Hour: 9, Minute: 5}).String(); s != "09:05" {
		t.Errorf("String() = %q", s)
	}
}

func (h *harness) summary(orgs []OrgSettings, cfg SummaryConfig) *DailySummaryGenerator {
	return NewDailySummaryGenerator(h.store, h.notifier, h.orgClock, h.claims, orgs, cfg, zap.NewNop())
}

func fieldValue(msg model.Message, name string) string {
	for _, f := range msg.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// UTC+9 的组织：本地 23:50 创建的任务属于第 N 天，次日 00:10 创建的属于第 N+1 天
func TestSummaryUsesOrganizationLocalDay(t *testing.T) {
	tokyo := time.FixedZone("UTC+9", 9*3600)
	const org = int64(7)

	first := time.Date(2025, 7, 5, 23, 50, 0, 0, tokyo)
	h := newHarness(t, first.UTC())
	h.orgClock.SetLocation(org, tokyo)
	ctx := context.Background()

	a := h.createTask(t, org, 2, first.Add(72*time.Hour))
	h.clock.Set(time.Date(2025, 7, 6, 0, 10, 0, 0, tokyo).UTC())
	b := h.createTask(t, org, 3, first.Add(72*time.Hour))
	// 其他组织的任务不应出现
	h.createTask(t, 99, 4, first.Add(72*time.Hour))

	cutoff := TimeOfDay{Hour: 23, Minute: 55}
	cfg := DefaultSummaryConfig()
	gen := h.summary([]OrgSettings{{ID: org, Name: "tokyo", SummaryTime: &cutoff}}, cfg)

	tests := []struct {
		name string
		at   time.Time
		want int64
	}{
		{"day N", time.Date(2025, 7, 5, 23, 55, 0, 0, tokyo), a.ID},
		{"day N+1", time.Date(2025, 7, 6, 23, 55, 0, 0, tokyo), b.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.clock.Set(tt.at.UTC())
			s, err := gen.Build(ctx, org)
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			if len(s.AssignedToday) != 1 || s.AssignedToday[0].ID != tt.want {
				t.Errorf("assigned today = %+v, want only task %d", s.AssignedToday, tt.want)
			}
			if s.DayStart.Location() != tokyo {
				t.Errorf("day start location = %v", s.DayStart.Location())
			}
		})
	}
}

func TestSummaryBuckets(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	const org = int64(1)

	// t0 = 09:00 UTC；今天结束于 7-6 00:00
	dueTomorrow := h.createTask(t, org, 2, time.Date(2025, 7, 6, 15, 0, 0, 0, time.UTC))
	overdue := h.createTask(t, org, 3, t0.Add(2*time.Hour))
	later := h.createTask(t, org, 4, time.Date(2025, 7, 8, 9, 0, 0, 0, time.UTC))
	doneTomorrow := h.createTask(t, org, 5, time.Date(2025, 7, 6, 10, 0, 0, 0, time.UTC))

	h.clock.Set(t0.Add(3 * time.Hour))
	if _, err := h.engine.ApplyUpdate(ctx, doneTomorrow.ID, 5, "completed", "shipped"); err != nil {
		t.Fatal(err)
	}

	s, err := h.summary(nil, DefaultSummaryConfig()).Build(ctx, org)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(s.AssignedToday) != 4 {
		t.Errorf("assigned today = %d, want 4", len(s.AssignedToday))
	}
	if len(s.DueTomorrow) != 1 || s.DueTomorrow[0].ID != dueTomorrow.ID {
		t.Errorf("due tomorrow = %+v, want task %d", s.DueTomorrow, dueTomorrow.ID)
	}
	if len(s.Overdue) != 1 || s.Overdue[0].ID != overdue.ID {
		t.Errorf("overdue = %+v, want task %d", s.Overdue, overdue.ID)
	}
	for _, task := range append(s.DueTomorrow, s.Overdue...) {
		if task.ID == later.ID {
			t.Errorf("task %d due in two days listed", later.ID)
		}
	}
	// 4 条创建日志 + 1 条完成
	if len(s.RecentActivity) != 5 || s.RecentActivity[0].TaskID != doneTomorrow.ID {
		t.Errorf("recent activity = %+v", s.RecentActivity)
	}

	msg := SummaryMessage(s, 5)
	if got := fieldValue(msg, "📝 Assigned Today"); got != "4" {
		t.Errorf("assigned today field = %q", got)
	}
	if got := fieldValue(msg, "🚨 Overdue"); got != "1" {
		t.Errorf("overdue field = %q", got)
	}
	if !strings.Contains(fieldValue(msg, "📈 Recent Activity"), "Completed") {
		t.Errorf("recent activity should mention the completion: %q", fieldValue(msg, "📈 Recent Activity"))
	}
}

func TestSummarySentOncePerLocalDay(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	h.createTask(t, 1, 2, t0.Add(72*time.Hour))
	h.createTask(t, 2, 3, t0.Add(72*time.Hour))

	orgs := []OrgSettings{{ID: 1, SupervisorID: 50}, {ID: 3}}
	gen := h.summary(orgs, DefaultSummaryConfig())

	steps := []struct {
		at   time.Time
		want int
	}{
		{time.Date(2025, 7, 5, 20, 59, 0, 0, time.UTC), 0},
		{time.Date(2025, 7, 5, 21, 0, 0, 0, time.UTC), 3},
		{time.Date(2025, 7, 5, 21, 30, 0, 0, time.UTC), 3},
		{time.Date(2025, 7, 5, 23, 0, 0, 0, time.UTC), 3},
		{time.Date(2025, 7, 6, 21, 1, 0, 0, time.UTC), 6},
	}
	for _, st := range steps {
		h.clock.Set(st.at)
		if err := gen.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce() error: %v", err)
		}
		if n := len(h.notifier.ofKind(model.KindDailySummary)); n != st.want {
			t.Fatalf("summaries at %v = %d, want %d", st.at, n, st.want)
		}
	}

	var direct, channel int
	for _, s := range h.notifier.ofKind(model.KindDailySummary)[:3] {
		switch {
		case s.channel:
			channel++
		case s.userID == 50:
			direct++
		}
	}
	if direct != 1 || channel != 2 {
		t.Errorf("direct/channel = %d/%d, want supervisor DM for org 1 and channel posts for orgs 2 and 3", direct, channel)
	}
}

func TestSummaryFailureReleasesClaim(t *testing.T) {
	h := newHarness(t, time.Date(2025, 7, 5, 21, 5, 0, 0, time.UTC))
	ctx := context.Background()
	gen := h.summary([]OrgSettings{{ID: 1, SupervisorID: 50}}, DefaultSummaryConfig())

	h.notifier.setFail(1)
	if err := gen.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if n := len(h.notifier.ofKind(model.KindDailySummary)); n != 0 {
		t.Fatalf("summaries after failure = %d", n)
	}

	h.clock.Advance(time.Minute)
	if err := gen.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(h.notifier.ofKind(model.KindDailySummary)); n != 1 {
		t.Errorf("summaries after retry = %d, want 1", n)
	}
}

// 截止时间恰好等于当前时刻还不算逾期
func TestSummaryOverdueIsStrictlyPastDeadline(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()
	deadline := t0.Add(2 * time.Hour)
	task := h.createTask(t, 1, 2, deadline)
	gen := h.summary(nil, DefaultSummaryConfig())

	h.clock.Set(deadline)
	s, err := gen.Build(ctx, 1)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(s.Overdue) != 0 {
		t.Fatalf("overdue at the deadline = %+v, want none", s.Overdue)
	}

	h.clock.Set(deadline.Add(time.Microsecond))
	if s, err = gen.Build(ctx, 1); err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(s.Overdue) != 1 || s.Overdue[0].ID != task.ID {
		t.Errorf("overdue just after the deadline = %+v, want task %d", s.Overdue, task.ID)
	}
}

// 一个组织汇总失败不影响其他组织，恢复后失败的组织在窗口内补发
func TestSummaryOrgFailureIsIsolated(t *testing.T) {
	h := newHarness(t, time.Date(2025, 7, 5, 21, 5, 0, 0, time.UTC))
	ctx := context.Background()
	for org := int64(1); org <= 3; org++ {
		h.createTask(t, org, 10+org, t0.Add(72*time.Hour))
	}

	store := newFaultyStore(h.store)
	store.set(func(f *faultyStore) { f.listOrgErr[2] = errStoreDown })
	cfg := DefaultSummaryConfig()
	cfg.Concurrency = 3
	gen := NewDailySummaryGenerator(store, h.notifier, h.orgClock, h.claims, nil, cfg, zap.NewNop())

	if err := gen.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	got := map[int64]int{}
	for _, s := range h.notifier.ofKind(model.KindDailySummary) {
		got[s.orgID]++
	}
	if got[1] != 1 || got[3] != 1 || got[2] != 0 {
		t.Fatalf("summaries per org = %v, want orgs 1 and 3 only", got)
	}

	store.set(func(f *faultyStore) { delete(f.listOrgErr, 2) })
	h.clock.Advance(5 * time.Minute)
	if err := gen.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	got = map[int64]int{}
	for _, s := range h.notifier.ofKind(model.KindDailySummary) {
		got[s.orgID]++
	}
	if got[1] != 1 || got[2] != 1 || got[3] != 1 {
		t.Errorf("summaries per org after recovery = %v, want one each", got)
	}
}
