// Package config 服务配置：base.yaml + <env>.yaml + secrets.env + 环境变量覆盖。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // 容器镜像里可能没有系统时区库

	"github.com/Malixamran-01/MissMinutes/internal/service"
	pkgconfig "github.com/Malixamran-01/MissMinutes/pkg/config"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	NotifierMQ  = "mq"
	NotifierLog = "log"
)

type Config struct {
	LogLevel string `yaml:"log_level"`
	Timezone string `yaml:"timezone"` // 未单独配置的组织使用的时区

	Store    StoreConfig            `yaml:"store"`
	DB       pkgconfig.DBConfig     `yaml:"db"`
	MQ       pkgconfig.MQConfig     `yaml:"mq"`
	Redis    pkgconfig.RedisConfig  `yaml:"redis"`
	Server   pkgconfig.ServerConfig `yaml:"server"`
	Notifier NotifierConfig         `yaml:"notifier"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Summary   SummaryConfig   `yaml:"summary"`
	Karma     KarmaConfig     `yaml:"karma"`
	Relay     RelayConfig     `yaml:"relay"`
	Intake    IntakeConfig    `yaml:"intake"`

	Organizations []OrgConfig `yaml:"organizations"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"` // postgres / sqlite
	SQLitePath string `yaml:"sqlite_path"`
}

type NotifierConfig struct {
	Driver  string        `yaml:"driver"` // mq / log
	Breaker BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

type SchedulerConfig struct {
	ReminderWindow     time.Duration `yaml:"reminder_window"`
	ReminderInterval   time.Duration `yaml:"reminder_interval"`
	EscalationInterval time.Duration `yaml:"escalation_interval"`
	SummaryInterval    time.Duration `yaml:"summary_interval"`
	DeliveryTimeout    time.Duration `yaml:"delivery_timeout"`
	ClaimTTL           time.Duration `yaml:"claim_ttl"`
	BackoffBase        time.Duration `yaml:"backoff_base"`
	BackoffMax         time.Duration `yaml:"backoff_max"`
}

type SummaryConfig struct {
	Time        string        `yaml:"time"` // HH:MM
	Grace       time.Duration `yaml:"grace"`
	RecentLimit int           `yaml:"recent_limit"`
	Concurrency int           `yaml:"concurrency"`
}

type KarmaConfig struct {
	Completed int64 `yaml:"completed"`
	Overdue   int64 `yaml:"overdue"`
}

type RelayConfig struct {
	Queue    string        `yaml:"queue"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// IntakeConfig 通过 MQ 接收 task.assign / task.status_update 命令
type IntakeConfig struct {
	Enabled bool `yaml:"enabled"`
}

type OrgConfig struct {
	ID           int64  `yaml:"id"`
	Name         string `yaml:"name"`
	Timezone     string `yaml:"timezone"`
	SummaryTime  string `yaml:"summary_time"`
	SupervisorID int64  `yaml:"supervisor_id"`
}

// Default 所有配置项的默认值，YAML 中缺省的字段保持默认
func Default() Config {
	return Config{
		LogLevel: "info",
		Timezone: "UTC",
		Store:    StoreConfig{Driver: StoreSQLite, SQLitePath: "data/missminutes.db"},
		DB: pkgconfig.DBConfig{
			Host:               "localhost",
			Port:               5432,
			User:               "postgres",
			Name:               "missminutes",
			SSLMode:            "disable",
			MaxConns:           10,
			SlowQueryThreshold: 200 * time.Millisecond,
		},
		Server:   pkgconfig.ServerConfig{Port: "8080"},
		Notifier: NotifierConfig{Driver: NotifierLog, Breaker: BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}},
		Scheduler: SchedulerConfig{
			ReminderWindow:     service.DefaultReminderWindow,
			ReminderInterval:   30 * time.Minute,
			EscalationInterval: service.DefaultEscalationInterval,
			SummaryInterval:    time.Minute,
			DeliveryTimeout:    10 * time.Second,
			ClaimTTL:           time.Hour,
			BackoffBase:        time.Minute,
			BackoffMax:         time.Hour,
		},
		Summary: SummaryConfig{Time: "21:00", Grace: time.Hour, RecentLimit: 10, Concurrency: 4},
		Karma:   KarmaConfig{Completed: 10, Overdue: -5},
		Relay:   RelayConfig{Queue: "notification.requested.q", DedupTTL: 24 * time.Hour},
	}
}

// Load 读取 dir 下的配置文件并应用环境变量覆盖
func Load(env, dir string) (*Config, error) {
	cfg := Default()
	if err := pkgconfig.Decode(env, dir, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	pkgconfig.OverrideDBFromEnv(&c.DB)
	pkgconfig.OverrideMQFromEnv(&c.MQ)
	pkgconfig.OverrideRedisFromEnv(&c.Redis)
	pkgconfig.OverrideServerFromEnv(&c.Server)
	pkgconfig.OverrideDurationFromEnv("REMINDER_WINDOW", &c.Scheduler.ReminderWindow)
	pkgconfig.OverrideStringFromEnv("DAILY_SUMMARY_TIME", &c.Summary.Time)
	pkgconfig.OverrideStringFromEnv("TIMEZONE", &c.Timezone)
	pkgconfig.OverrideStringFromEnv("LOG_LEVEL", &c.LogLevel)
	pkgconfig.OverrideStringFromEnv("STORE_DRIVER", &c.Store.Driver)
	pkgconfig.OverrideStringFromEnv("NOTIFIER_DRIVER", &c.Notifier.Driver)
}

// Validate 检查时长、时刻和时区都可用
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StorePostgres:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	switch c.Notifier.Driver {
	case NotifierLog:
	case NotifierMQ:
		if c.MQ.URL == "" {
			errs = append(errs, errors.New("mq.url is required for the mq notifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notifier.driver %q", c.Notifier.Driver))
	}
	if c.Intake.Enabled && c.MQ.URL == "" {
		errs = append(errs, errors.New("mq.url is required when intake is enabled"))
	}

	durations := map[string]time.Duration{
		"scheduler.reminder_window":     c.Scheduler.ReminderWindow,
		"scheduler.reminder_interval":   c.Scheduler.ReminderInterval,
		"scheduler.escalation_interval": c.Scheduler.EscalationInterval,
		"scheduler.summary_interval":    c.Scheduler.SummaryInterval,
		"scheduler.delivery_timeout":    c.Scheduler.DeliveryTimeout,
		"scheduler.claim_ttl":           c.Scheduler.ClaimTTL,
		"scheduler.backoff_base":        c.Scheduler.BackoffBase,
		"scheduler.backoff_max":         c.Scheduler.BackoffMax,
	}
	for name, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Scheduler.BackoffMax < c.Scheduler.BackoffBase {
		errs = append(errs, errors.New("scheduler.backoff_max must not be below backoff_base"))
	}

	if _, err := service.ParseTimeOfDay(c.Summary.Time); err != nil {
		errs = append(errs, fmt.Errorf("summary.time: %w", err))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}

	seen := map[int64]bool{}
	for i, o := range c.Organizations {
		if o.ID == 0 {
			errs = append(errs, fmt.Errorf("organizations[%d]: id is required", i))
		}
		if seen[o.ID] {
			errs = append(errs, fmt.Errorf("organizations[%d]: duplicate id %d", i, o.ID))
		}
		seen[o.ID] = true
		if o.Timezone != "" {
			if _, err := time.LoadLocation(o.Timezone); err != nil {
				errs = append(errs, fmt.Errorf("organizations[%d].timezone: %w", i, err))
			}
		}
		if o.SummaryTime != "" {
			if _, err := service.ParseTimeOfDay(o.SummaryTime); err != nil {
				errs = append(errs, fmt.Errorf("organizations[%d].summary_time: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Location 默认时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OrgSettings 转换为调度器使用的组织设置和时区表
func (c *Config) OrgSettings() ([]service.OrgSettings, map[int64]*time.Location) {
	orgs := make([]service.OrgSettings, 0, len(c.Organizations))
	zones := make(map[int64]*time.Location)
	for _, o := range c.Organizations {
		s := service.OrgSettings{ID: o.ID, Name: o.Name, SupervisorID: o.SupervisorID}
		if o.SummaryTime != "" {
			if at, err := service.ParseTimeOfDay(o.SummaryTime); err == nil {
				s.SummaryTime = &at
			}
		}
		if o.Timezone != "" {
			if loc, err := time.LoadLocation(o.Timezone); err == nil {
				zones[o.ID] = loc
			}
		}
		orgs = append(orgs, s)
	}
	return orgs, zones
}

func (c *Config) DeliveryConfig() service.DeliveryConfig {
	return service.DeliveryConfig{Timeout: c.Scheduler.DeliveryTimeout, ClaimTTL: c.Scheduler.ClaimTTL}
}

func (c *Config) SummaryConfig() service.SummaryConfig {
	cfg := service.DefaultSummaryConfig()
	if at, err := service.ParseTimeOfDay(c.Summary.Time); err == nil {
		cfg.Time = at
	}
	cfg.Grace = c.Summary.Grace
	if c.Summary.RecentLimit > 0 {
		cfg.RecentLimit = c.Summary.RecentLimit
	}
	if c.Summary.Concurrency > 0 {
		cfg.Concurrency = c.Summary.Concurrency
	}
	cfg.Timeout = c.Scheduler.DeliveryTimeout
	return cfg
}

func (c *Config) KarmaPolicy() service.KarmaPolicy {
	return service.KarmaPolicy{Completed: c.Karma.Completed, Overdue: c.Karma.Overdue}
}

// RedisEnabled 未配置地址时使用进程内的租约与退避
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}
