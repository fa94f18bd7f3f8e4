package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

func TestBackoffDelay(t *testing.T) {
	base, max := time.Minute, 10*time.Minute
	tests := []struct {
		failures int64
		want     time.Duration
	}{
		{0, 0},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := BackoffDelay(base, max, tt.failures); got != tt.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestLocalDeduperLease(t *testing.T) {
	now := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)
	d := NewLocalDeduper(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	if ok, _ := d.Acquire(ctx, "reminder:1", 0); !ok {
		t.Fatal("first Acquire should succeed")
	}
	if ok, _ := d.Acquire(ctx, "reminder:1", 0); ok {
		t.Fatal("second Acquire should fail while lease is held")
	}
	if ok, _ := d.Acquire(ctx, "reminder:2", 0); !ok {
		t.Fatal("other keys are independent")
	}

	_ = d.Release(ctx, "reminder:1")
	if ok, _ := d.Acquire(ctx, "reminder:1", 0); !ok {
		t.Fatal("Acquire after Release should succeed")
	}

	now = now.Add(2 * time.Hour)
	if ok, _ := d.Acquire(ctx, "reminder:2", 0); !ok {
		t.Fatal("Acquire after expiry should succeed")
	}
}

func TestLocalDeduperSweepsExpiredLeases(t *testing.T) {
	now := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)
	d := NewLocalDeduper(time.Minute, func() time.Time { return now })
	ctx := context.Background()

	if ok, _ := d.Acquire(ctx, "summary:1", time.Hour); !ok {
		t.Fatal("Acquire(summary:1) should succeed")
	}
	for i := 0; i < 50; i++ {
		if ok, _ := d.Acquire(ctx, fmt.Sprintf("relay:%d", i), 0); !ok {
			t.Fatalf("Acquire(relay:%d) should succeed", i)
		}
	}
	if len(d.leases) != 51 {
		t.Fatalf("leases = %d, want 51", len(d.leases))
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := d.Acquire(ctx, "relay:new", 0); !ok {
		t.Fatal("Acquire(relay:new) should succeed")
	}
	if len(d.leases) != 2 {
		t.Errorf("leases after sweep = %d, want 2 (held summary + new relay)", len(d.leases))
	}
	if ok, _ := d.Acquire(ctx, "summary:1", 0); ok {
		t.Error("unexpired lease must survive the sweep")
	}
}

func TestLocalRetryCounter(t *testing.T) {
	ctx := context.Background()
	r := NewLocalRetryCounter(time.Minute, 4*time.Minute)
	now := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)

	if ok, _ := r.Ready(ctx, "k", now); !ok {
		t.Fatal("unknown key should be ready")
	}
	if d, _ := r.Failure(ctx, "k", now); d != time.Minute {
		t.Fatalf("first delay = %v, want 1m", d)
	}
	if ok, _ := r.Ready(ctx, "k", now.Add(30*time.Second)); ok {
		t.Fatal("should not be ready inside backoff")
	}
	if ok, _ := r.Ready(ctx, "k", now.Add(time.Minute)); !ok {
		t.Fatal("should be ready once backoff elapsed")
	}
	_, _ = r.Failure(ctx, "k", now)
	if d, _ := r.Failure(ctx, "k", now); d != 4*time.Minute {
		t.Fatalf("third delay = %v, want 4m", d)
	}
	if d, _ := r.Failure(ctx, "k", now); d != 4*time.Minute {
		t.Fatalf("delay should be capped, got %v", d)
	}
	_ = r.Reset(ctx, "k")
	if ok, _ := r.Ready(ctx, "k", now); !ok {
		t.Fatal("Reset should clear backoff")
	}
}

func TestIsRetryableError(t *testing.T) {
	var syntax *json.SyntaxError
	err := json.Unmarshal([]byte("{bad"), &struct{}{})
	if !errors.As(err, &syntax) {
		t.Fatalf("expected json syntax error, got %v", err)
	}

	tests := []struct {
		name string
		err  error
		want bool
		kind string
	}{
		{"nil", nil, false, ""},
		{"json", err, false, "json_decode_error"},
		{"no rows", fmt.Errorf("get task: %w", pgx.ErrNoRows), false, "not_found"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"conn", errors.New("connection refused"), true, "db_connection_error"},
		{"other", errors.New("boom"), false, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, kind := IsRetryableError(tt.err)
			if got != tt.want || kind != tt.kind {
				t.Errorf("IsRetryableError() = (%v, %q), want (%v, %q)", got, kind, tt.want, tt.kind)
			}
		})
	}
}
