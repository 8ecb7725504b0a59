package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWithClient(client, "interviewpilot:"), mr
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	if _, ok, err := r.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := r.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("interviewpilot:k") {
		t.Fatalf("expected prefixed key in redis, keys=%v", mr.Keys())
	}
	v, ok, err := r.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := r.Get(ctx, "k"); ok {
		t.Fatalf("expected key to expire")
	}

	if err := r.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestRedisSharedAcrossCaches(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)
	fp := NewFingerprint(KindQuestions, "resume", "3")

	first := New(r, zap.NewNop())
	second := New(NewTiered(NewMemory(time.Minute, time.Minute), r, time.Minute), zap.NewNop())

	if _, err := first.GetOrCompute(ctx, fp, time.Hour, func(context.Context) ([]byte, error) {
		return []byte("set-a"), nil
	}); err != nil {
		t.Fatal(err)
	}

	v, err := second.GetOrCompute(ctx, fp, time.Hour, func(context.Context) ([]byte, error) {
		return nil, errors.New("second instance should read the shared entry")
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "set-a" {
		t.Fatalf("got %q", v)
	}
}

func TestRedisUnavailableDegrades(t *testing.T) {
	r, mr := newTestRedis(t)
	mr.Close()

	c := New(r, zap.NewNop())
	v, err := c.GetOrCompute(context.Background(), NewFingerprint(KindFeedback, "q"), time.Minute, func(context.Context) ([]byte, error) {
		return []byte("computed"), nil
	})
	if err != nil {
		t.Fatalf("redis outage must not fail the call: %v", err)
	}
	if string(v) != "computed" {
		t.Fatalf("got %q", v)
	}
}
