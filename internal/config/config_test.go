package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAppliesDefaultsFilesAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
timezone: UTC
scheduler:
  reminder_interval: 5m
summary:
  time: "20:30"
organizations:
  - id: 7
    name: tokyo
    timezone: Asia/Tokyo
    summary_time: "22:15"
    supervisor_id: 99
`)
	writeConfig(t, dir, "staging.yaml", `
store:
  sqlite_path: ${DATA_DIR}/tasks.db
`)
	writeConfig(t, dir, "secrets.env", "DATA_DIR=/var/lib/missminutes\n")
	t.Setenv("REMINDER_WINDOW", "2h")

	cfg, err := Load("staging", dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Scheduler.ReminderInterval != 5*time.Minute {
		t.Errorf("reminder_interval = %s", cfg.Scheduler.ReminderInterval)
	}
	if cfg.Scheduler.ReminderWindow != 2*time.Hour {
		t.Errorf("reminder_window = %s, want env override", cfg.Scheduler.ReminderWindow)
	}
	if cfg.Scheduler.EscalationInterval != 15*time.Minute {
		t.Errorf("escalation_interval = %s, want default", cfg.Scheduler.EscalationInterval)
	}
	if cfg.Store.SQLitePath != "/var/lib/missminutes/tasks.db" {
		t.Errorf("sqlite_path = %q", cfg.Store.SQLitePath)
	}
	if cfg.Karma.Completed != 10 || cfg.Karma.Overdue != -5 {
		t.Errorf("karma = %+v", cfg.Karma)
	}

	sc := cfg.SummaryConfig()
	if sc.Time.String() != "20:30" || sc.Grace != time.Hour {
		t.Errorf("summary config = %+v", sc)
	}

	orgs, zones := cfg.OrgSettings()
	if len(orgs) != 1 || orgs[0].SupervisorID != 99 || orgs[0].SummaryTime == nil || orgs[0].SummaryTime.String() != "22:15" {
		t.Errorf("orgs = %+v", orgs)
	}
	if zones[7] == nil || zones[7].String() != "Asia/Tokyo" {
		t.Errorf("zones = %v", zones)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad summary time", func(c *Config) { c.Summary.Time = "9pm" }, "summary.time"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"zero interval", func(c *Config) { c.Scheduler.ReminderInterval = 0 }, "scheduler.reminder_interval"},
		{"unknown store", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"mq without url", func(c *Config) { c.Notifier.Driver = NotifierMQ }, "mq.url"},
		{"duplicate org", func(c *Config) {
			c.Organizations = []OrgConfig{{ID: 1}, {ID: 1}}
		}, "duplicate id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
