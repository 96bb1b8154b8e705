package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionRepo(t *testing.T, revokePrevious bool) (*SessionRepo, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewSessionRepo(rdb, time.Hour, revokePrevious), mr
}

func TestSessionCreateResolve(t *testing.T) {
	repo, mr := newSessionRepo(t, false)
	ctx := context.Background()

	token, err := repo.Create(ctx, 7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
	uid, err := repo.Resolve(ctx, token)
	if err != nil || uid != 7 {
		t.Fatalf("Resolve = %d, %v; want 7", uid, err)
	}

	if got, _ := mr.Get("refresh:" + token); got != "7" {
		t.Fatalf("forward key = %q", got)
	}
	if got, _ := mr.Get("user:7:refresh"); got != token {
		t.Fatalf("reverse key = %q", got)
	}
	if ttl := mr.TTL("refresh:" + token); ttl != time.Hour {
		t.Fatalf("forward ttl = %s", ttl)
	}
	if ttl := mr.TTL("user:7:refresh"); ttl != time.Hour {
		t.Fatalf("reverse ttl = %s", ttl)
	}
}

func TestSessionResolveUnknownAndExpired(t *testing.T) {
	repo, mr := newSessionRepo(t, false)
	ctx := context.Background()

	if _, err := repo.Resolve(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := repo.Resolve(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	token, _ := repo.Create(ctx, 1)
	mr.FastForward(time.Hour + time.Second)
	if _, err := repo.Resolve(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired token resolved: %v", err)
	}
}

func TestSessionRevokeIsIdempotent(t *testing.T) {
	repo, mr := newSessionRepo(t, false)
	ctx := context.Background()

	token, _ := repo.Create(ctx, 3)
	if err := repo.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := repo.Resolve(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked token resolved: %v", err)
	}
	if mr.Exists("user:3:refresh") {
		t.Fatal("reverse pointer not cleared")
	}
	if err := repo.Revoke(ctx, token); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if err := repo.Revoke(ctx, "never-issued"); err != nil {
		t.Fatalf("Revoke unknown: %v", err)
	}
}

func TestSessionReloginKeepsPreviousWhenNotRevoking(t *testing.T) {
	repo, _ := newSessionRepo(t, false)
	ctx := context.Background()

	first, _ := repo.Create(ctx, 5)
	second, _ := repo.Create(ctx, 5)

	if uid, err := repo.Resolve(ctx, first); err != nil || uid != 5 {
		t.Fatalf("first token: %d, %v", uid, err)
	}
	cur, err := repo.CurrentToken(ctx, 5)
	if err != nil || cur != second {
		t.Fatalf("CurrentToken = %q, %v; want second", cur, err)
	}

	// Revoking the superseded token must leave the newer reverse pointer.
	if err := repo.Revoke(ctx, first); err != nil {
		t.Fatal(err)
	}
	if cur, _ := repo.CurrentToken(ctx, 5); cur != second {
		t.Fatalf("reverse pointer changed to %q", cur)
	}
	if _, err := repo.Resolve(ctx, second); err != nil {
		t.Fatalf("second token lost: %v", err)
	}
}

func TestSessionReloginRevokesPrevious(t *testing.T) {
	repo, _ := newSessionRepo(t, true)
	ctx := context.Background()

	first, _ := repo.Create(ctx, 5)
	second, _ := repo.Create(ctx, 5)

	if _, err := repo.Resolve(ctx, first); !errors.Is(err, ErrNotFound) {
		t.Fatalf("previous token still resolves: %v", err)
	}
	if uid, err := repo.Resolve(ctx, second); err != nil || uid != 5 {
		t.Fatalf("new token: %d, %v", uid, err)
	}
}

func TestSessionRevokeUser(t *testing.T) {
	repo, mr := newSessionRepo(t, false)
	ctx := context.Background()

	token, _ := repo.Create(ctx, 9)
	if err := repo.RevokeUser(ctx, 9); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("refresh:"+token) || mr.Exists("user:9:refresh") {
		t.Fatal("keys survived RevokeUser")
	}
	if err := repo.RevokeUser(ctx, 9); err != nil {
		t.Fatalf("RevokeUser without session: %v", err)
	}
}

func TestSessionUnavailableStore(t *testing.T) {
	repo, mr := newSessionRepo(t, false)
	mr.Close()
	if _, err := repo.Create(context.Background(), 1); err == nil {
		t.Fatal("expected error from closed redis")
	}
}
