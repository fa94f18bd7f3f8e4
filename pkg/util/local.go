package util

import (
	"context"
	"sync"
	"time"
)

// LocalDeduper 单进程版本的租约，未配置 Redis 时使用
type LocalDeduper struct {
	mu        sync.Mutex
	now       func() time.Time
	ttl       time.Duration
	leases    map[string]time.Time
	nextSweep time.Time
}

func NewLocalDeduper(ttl time.Duration, now func() time.Time) *LocalDeduper {
	if now == nil {
		now = time.Now
	}
	return &LocalDeduper{now: now, ttl: ttl, leases: make(map[string]time.Time)}
}

func (d *LocalDeduper) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = d.ttl
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !now.Before(d.nextSweep) {
		d.sweep(now)
	}
	if exp, ok := d.leases[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.leases[key] = now.Add(ttl)
	return true, nil
}

// sweep 清掉过期租约，调用方持有锁
func (d *LocalDeduper) sweep(now time.Time) {
	for k, exp := range d.leases {
		if !now.Before(exp) {
			delete(d.leases, k)
		}
	}
	interval := d.ttl
	if interval <= 0 || interval > time.Hour {
		interval = time.Hour
	}
	d.nextSweep = now.Add(interval)
}

func (d *LocalDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.leases, key)
	d.mu.Unlock()
	return nil
}

type localRetry struct {
	failures int64
	next     time.Time
}

// LocalRetryCounter 单进程版本的退避计数
type LocalRetryCounter struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	entries map[string]localRetry
}

func NewLocalRetryCounter(base, max time.Duration) *LocalRetryCounter {
	return &LocalRetryCounter{base: base, max: max, entries: make(map[string]localRetry)}
}

func (r *LocalRetryCounter) Ready(_ context.Context, key string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return !ok || !now.Before(e.next), nil
}

func (r *LocalRetryCounter) Failure(_ context.Context, key string, now time.Time) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[key]
	e.failures++
	delay := BackoffDelay(r.base, r.max, e.failures)
	e.next = now.Add(delay)
	r.entries[key] = e
	return delay, nil
}

func (r *LocalRetryCounter) Reset(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}
