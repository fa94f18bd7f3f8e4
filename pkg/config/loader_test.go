package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", name, err)
	}
}

func TestLoadConfigMergesEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  password: ${DB_SECRET}
server:
  port: "8080"
organizations:
  - id: 1
    supervisor: ${SUPERVISOR}
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)
	writeFile(t, dir, "secrets.env", `
# comment
export DB_SECRET="s3cret"
SUPERVISOR=42
`)

	cfg, err := LoadConfig("production", dir)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	db := cfg["db"].(map[string]interface{})
	if db["host"] != "db.internal" {
		t.Errorf("db.host = %v, want db.internal", db["host"])
	}
	if db["port"] != 5432 {
		t.Errorf("db.port = %v, want 5432", db["port"])
	}
	if db["password"] != "s3cret" {
		t.Errorf("db.password = %v, want s3cret", db["password"])
	}
	orgs := cfg["organizations"].([]interface{})
	org := orgs[0].(map[string]interface{})
	if org["supervisor"] != "42" {
		t.Errorf("organizations[0].supervisor = %v, want 42", org["supervisor"])
	}
}

func TestLoadConfigMissingBase(t *testing.T) {
	if _, err := LoadConfig("local", t.TempDir()); err == nil {
		t.Fatal("LoadConfig() should fail without base.yaml")
	}
}

func TestDecode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server:\n  port: \"9000\"\nredis:\n  addr: localhost:6379\n")

	var out struct {
		Server ServerConfig `yaml:"server"`
		Redis  RedisConfig  `yaml:"redis"`
	}
	if err := Decode("local", dir, &out); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if out.Server.Port != "9000" {
		t.Errorf("Server.Port = %q, want 9000", out.Server.Port)
	}
	if out.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want localhost:6379", out.Redis.Addr)
	}
}

func TestDBConfigDSN(t *testing.T) {
	cfg := DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss/word", Name: "missminutes"}
	want := "postgres://app:p%40ss%2Fword@db:5432/missminutes?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	cfg.URL = "postgres://override/x"
	if got := cfg.DSN(); got != cfg.URL {
		t.Errorf("DSN() = %q, want explicit url", got)
	}
}
