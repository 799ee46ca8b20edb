package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLockerExcludes(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.TryAcquire(ctx, "withdrawal:exec:1", time.Minute)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := l.TryAcquire(ctx, "withdrawal:exec:1", time.Minute); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	if _, err := l.TryAcquire(ctx, "withdrawal:exec:2", time.Minute); err != nil {
		t.Fatalf("other key should be free: %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.TryAcquire(ctx, "withdrawal:exec:1", time.Minute); err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
}

func TestLocalLockerExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.clock = func() time.Time { return now }

	stale, err := l.TryAcquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := l.TryAcquire(ctx, "k", time.Second); err != nil {
		t.Fatalf("expired lock should be reacquirable: %v", err)
	}

	// the stale holder must not release the new holder's lock
	_ = stale(ctx)
	if _, err := l.TryAcquire(ctx, "k", time.Second); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld after stale release, got %v", err)
	}
}
