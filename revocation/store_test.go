package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, "ak"), mr
}

func TestBindAndRotate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Bind(ctx, "sid-1", "jti-1", time.Hour); err != nil {
		t.Fatalf("Bind error: %v", err)
	}

	if err := store.Rotate(ctx, "sid-1", "jti-1", "jti-2", time.Hour); err != nil {
		t.Fatalf("Rotate error: %v", err)
	}

	// The new jti is now the registered one.
	if err := store.Rotate(ctx, "sid-1", "jti-2", "jti-3", time.Hour); err != nil {
		t.Fatalf("Rotate with new jti error: %v", err)
	}
}

func TestRotateDetectsReuse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Bind(ctx, "sid-1", "jti-1", time.Hour); err != nil {
		t.Fatalf("Bind error: %v", err)
	}
	if err := store.Rotate(ctx, "sid-1", "jti-1", "jti-2", time.Hour); err != nil {
		t.Fatalf("Rotate error: %v", err)
	}

	// Replaying the spent jti must be flagged and revoke the session.
	err := store.Rotate(ctx, "sid-1", "jti-1", "jti-3", time.Hour)
	if !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected ErrReuseDetected, got %v", err)
	}

	revoked, err := store.IsRevoked(ctx, "sid-1")
	if err != nil {
		t.Fatalf("IsRevoked error: %v", err)
	}
	if !revoked {
		t.Fatal("expected session revoked after reuse detection")
	}

	// Even the legitimate current jti is dead once the session is revoked.
	err = store.Rotate(ctx, "sid-1", "jti-2", "jti-4", time.Hour)
	if !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestRotateUnknownSession(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Rotate(context.Background(), "missing", "jti-1", "jti-2", time.Hour)
	if !errors.Is(err, ErrSessionUnknown) {
		t.Fatalf("expected ErrSessionUnknown, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Bind(ctx, "sid-1", "jti-1", time.Hour); err != nil {
		t.Fatalf("Bind error: %v", err)
	}

	revoked, err := store.IsRevoked(ctx, "sid-1")
	if err != nil {
		t.Fatalf("IsRevoked error: %v", err)
	}
	if revoked {
		t.Fatal("expected live session to not be revoked")
	}

	if err := store.Revoke(ctx, "sid-1", time.Hour); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}

	revoked, err = store.IsRevoked(ctx, "sid-1")
	if err != nil {
		t.Fatalf("IsRevoked error: %v", err)
	}
	if !revoked {
		t.Fatal("expected session revoked")
	}

	err = store.Rotate(ctx, "sid-1", "jti-1", "jti-2", time.Hour)
	if !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked after revoke, got %v", err)
	}
}

func TestBindingExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Bind(ctx, "sid-1", "jti-1", time.Minute); err != nil {
		t.Fatalf("Bind error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	err := store.Rotate(ctx, "sid-1", "jti-1", "jti-2", time.Minute)
	if !errors.Is(err, ErrSessionUnknown) {
		t.Fatalf("expected ErrSessionUnknown after expiry, got %v", err)
	}
}

func TestUnavailableBackend(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, "ak")
	mr.Close()

	ctx := context.Background()
	if err := store.Bind(ctx, "sid-1", "jti-1", time.Hour); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := store.IsRevoked(ctx, "sid-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
