package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/Malixamran-01/MissMinutes/internal/model"
)

const timeLayout = "2006-01-02 15:04 MST"

func reminderKey(taskID int64) string { return fmt.Sprintf("reminder:%d", taskID) }
func overdueKey(taskID int64) string  { return fmt.Sprintf("overdue:%d", taskID) }

func taskFields(t *model.Task, deadlineLabel string) []model.Field {
	fields := []model.Field{
		{Name: deadlineLabel, Value: t.Deadline.UTC().Format(timeLayout), Inline: true},
		{Name: "Priority", Value: t.Priority.Label(), Inline: true},
		{Name: "Task ID", Value: fmt.Sprintf("%d", t.ID), Inline: true},
	}
	if t.Description != "" {
		fields = append(fields, model.Field{Name: "Description", Value: t.Description})
	}
	return fields
}

// ReminderMessage 创建后经过提醒窗口仍未结束的任务
func ReminderMessage(t *model.Task, window time.Duration) model.Message {
	return model.Message{
		Kind:           model.KindReminder,
		Title:          "⏰ Task Reminder",
		Body:           fmt.Sprintf("It's been %s since you were assigned: **%s**", humanDuration(window), t.Title),
		Fields:         taskFields(t, "Deadline"),
		Footer:         fmt.Sprintf("Update task %d to provide an update", t.ID),
		TaskID:         t.ID,
		IdempotencyKey: reminderKey(t.ID),
	}
}

// OverdueMessage 截止时间已过
func OverdueMessage(t *model.Task) model.Message {
	return model.Message{
		Kind:           model.KindOverdue,
		Title:          "🚨 Task Deadline Reached",
		Body:           fmt.Sprintf("The deadline for **%s** has passed!", t.Title),
		Fields:         taskFields(t, "Deadline was"),
		Footer:         fmt.Sprintf("Update task %d as soon as possible", t.ID),
		Urgent:         true,
		TaskID:         t.ID,
		IdempotencyKey: overdueKey(t.ID),
	}
}

// AssignedMessage 新任务频道公告
func AssignedMessage(t *model.Task) model.Message {
	fields := taskFields(t, "Deadline")
	fields = append(fields,
		model.Field{Name: "Assigned to", Value: userRef(t.AssigneeID), Inline: true},
		model.Field{Name: "Assigned by", Value: userRef(t.AssignerID), Inline: true},
	)
	return model.Message{
		Kind:   model.KindTaskAssigned,
		Title:  "📋 New Task Assigned",
		Body:   fmt.Sprintf("%s has been assigned a new task: **%s**", userRef(t.AssigneeID), t.Title),
		Fields: fields,
		Footer: fmt.Sprintf("Update task %d to change its status", t.ID),
		TaskID: t.ID,
	}
}

// StatusChangedMessage 状态变更频道公告
func StatusChangedMessage(t *model.Task, u *model.TaskUpdate) model.Message {
	fields := []model.Field{
		{Name: "Task ID", Value: fmt.Sprintf("%d", t.ID), Inline: true},
		{Name: "New Status", Value: u.Status.Label(), Inline: true},
		{Name: "Updated by", Value: userRef(u.ActorID), Inline: true},
	}
	if u.Note != "" {
		fields = append(fields, model.Field{Name: "Note", Value: u.Note})
	}
	return model.Message{
		Kind:   model.KindStatusChanged,
		Title:  "📝 Task Status Updated",
		Body:   fmt.Sprintf("**%s**", t.Title),
		Fields: fields,
		TaskID: t.ID,
	}
}

// SummaryMessage 日报
func SummaryMessage(s *DailySummary, shown int) model.Message {
	loc := s.DayStart.Location()
	fields := []model.Field{
		{Name: "📝 Assigned Today", Value: fmt.Sprintf("%d", len(s.AssignedToday)), Inline: true},
		{Name: "⏳ Due Tomorrow", Value: fmt.Sprintf("%d", len(s.DueTomorrow)), Inline: true},
		{Name: "🚨 Overdue", Value: fmt.Sprintf("%d", len(s.Overdue)), Inline: true},
	}
	if len(s.DueTomorrow) > 0 {
		fields = append(fields, model.Field{Name: "Due Tomorrow", Value: taskLines(s.DueTomorrow, shown, loc)})
	}
	if len(s.Overdue) > 0 {
		fields = append(fields, model.Field{Name: "Overdue Tasks", Value: taskLines(s.Overdue, shown, loc)})
	}
	if len(s.RecentActivity) > 0 {
		var b strings.Builder
		for i, a := range s.RecentActivity {
			if i == shown {
				break
			}
			fmt.Fprintf(&b, "• **%s** → %s by %s\n", a.TaskTitle, a.Status.Label(), userRef(a.ActorID))
		}
		fields = append(fields, model.Field{Name: "📈 Recent Activity", Value: strings.TrimRight(b.String(), "\n")})
	}
	return model.Message{
		Kind:           model.KindDailySummary,
		Title:          fmt.Sprintf("📊 Daily Summary - %s", s.DayStart.Format("January 2, 2006")),
		Body:           "Here's today's task overview:",
		Fields:         fields,
		Footer:         s.GeneratedAt.In(loc).Format(timeLayout),
		IdempotencyKey: fmt.Sprintf("summary:%d:%s", s.OrgID, s.DayStart.Format("2006-01-02")),
	}
}

func taskLines(tasks []model.Task, shown int, loc *time.Location) string {
	var b strings.Builder
	for i, t := range tasks {
		if i == shown {
			fmt.Fprintf(&b, "…and %d more", len(tasks)-shown)
			break
		}
		fmt.Fprintf(&b, "%s **%s** (%d) for %s, due %s\n",
			t.Status.Emoji(), t.Title, t.ID, userRef(t.AssigneeID), t.Deadline.In(loc).Format(timeLayout))
	}
	return strings.TrimRight(b.String(), "\n")
}

func userRef(id int64) string {
	return fmt.Sprintf("<@%d>", id)
}

// humanDuration 17h0m0s -> "17 hours"
func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return d.String()
}
