package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/anotheregi/blastkeun/internal/model"
)

func newTestQuota(t *testing.T) (*RedisQuota, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisQuota(rdb, 48*time.Hour), mr
}

func TestRedisQuota_AddAndUsed(t *testing.T) {
	t.Parallel()

	q, mr := newTestQuota(t)
	ctx := context.Background()
	day := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

	used, err := q.Used(ctx, "u1", model.ModeSafe, day)
	if err != nil {
		t.Fatalf("Used() error: %v", err)
	}
	if used != 0 {
		t.Fatalf("expected 0 for missing key, got %d", used)
	}

	if err := q.Add(ctx, "u1", model.ModeSafe, day, 3); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := q.Add(ctx, "u1", model.ModeSafe, day, 2); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	used, err = q.Used(ctx, "u1", model.ModeSafe, day)
	if err != nil {
		t.Fatalf("Used() error: %v", err)
	}
	if used != 5 {
		t.Fatalf("expected 5, got %d", used)
	}

	key := "quota:u1:v2:2026-02-02"
	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttl)
	}
}

func TestRedisQuota_KeysAreScoped(t *testing.T) {
	t.Parallel()

	q, _ := newTestQuota(t)
	ctx := context.Background()
	day := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	_ = q.Add(ctx, "u1", model.ModeSafe, day, 4)

	cases := []struct {
		owner string
		mode  model.ModeID
		day   time.Time
	}{
		{"u2", model.ModeSafe, day},
		{"u1", model.ModeStandard, day},
		{"u1", model.ModeSafe, day.AddDate(0, 0, 1)},
	}
	for _, tc := range cases {
		used, err := q.Used(ctx, tc.owner, tc.mode, tc.day)
		if err != nil {
			t.Fatalf("Used() error: %v", err)
		}
		if used != 0 {
			t.Fatalf("expected isolated counter for %+v, got %d", tc, used)
		}
	}
}

func TestRedisQuota_ContextCanceled(t *testing.T) {
	t.Parallel()

	q, _ := newTestQuota(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Add(ctx, "u1", model.ModeSafe, time.Now(), 1); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}

func TestNewRedisQuota_ShortTTLIsRaised(t *testing.T) {
	t.Parallel()

	q := NewRedisQuota(nil, time.Minute)
	if q.ttl < 24*time.Hour {
		t.Fatalf("expected ttl to cover a full day, got %v", q.ttl)
	}
}

func TestMemoryQuota(t *testing.T) {
	t.Parallel()

	q := NewMemoryQuota()
	ctx := context.Background()
	day := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	_ = q.Add(ctx, "u1", model.ModeStandard, day, 2)
	_ = q.Add(ctx, "u1", model.ModeStandard, day, 1)

	if used, _ := q.Used(ctx, "u1", model.ModeStandard, day); used != 3 {
		t.Fatalf("expected 3, got %d", used)
	}

	next := day.AddDate(0, 0, 1)
	_ = q.Add(ctx, "u1", model.ModeStandard, next, 1)

	if used, _ := q.Used(ctx, "u1", model.ModeStandard, day); used != 0 {
		t.Fatalf("expected previous day to be dropped, got %d", used)
	}
	if used, _ := q.Used(ctx, "u1", model.ModeStandard, next); used != 1 {
		t.Fatalf("expected 1 for next day, got %d", used)
	}
}
