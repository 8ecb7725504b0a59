package cache

import (
	"context"
	"errors"
	"time"
)

// Tiered reads the local tier first and falls back to the shared tier,
// copying shared hits into the local tier for at most localTTL.
type Tiered struct {
	local    Backend
	shared   Backend
	localTTL time.Duration
}

func NewTiered(local, shared Backend, localTTL time.Duration) *Tiered {
	return &Tiered{local: local, shared: shared, localTTL: localTTL}
}

func (t *Tiered) Name() string { return t.local.Name() + "+" + t.shared.Name() }

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := t.local.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}

	v, ok, err := t.shared.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = t.local.Set(ctx, key, v, t.localTTL)
	return v, true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	localTTL := t.localTTL
	if ttl > 0 && (localTTL <= 0 || ttl < localTTL) {
		localTTL = ttl
	}
	return errors.Join(
		t.local.Set(ctx, key, value, localTTL),
		t.shared.Set(ctx, key, value, ttl),
	)
}
