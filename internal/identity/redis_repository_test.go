package identity

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newRedisRepo(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisRepository(cache), mr
}

func TestRedisRepositoryRoundTrip(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()
	user := User{
		ID:           uuid.NewString(),
		Email:        "ada@example.com",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		PasswordHash: "hash",
		CreatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := repo.Insert(ctx, user); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, User{ID: uuid.NewString(), Email: user.Email}); err != ErrDuplicateEmail {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if got := mr.HGet(userKey(user.ID), fieldEmail); got != user.Email {
		t.Fatalf("unexpected stored email %q", got)
	}

	got, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.ID != user.ID || !got.CreatedAt.Equal(user.CreatedAt) || got.LockedUntil != nil || got.MFAEnabled {
		t.Fatalf("unexpected user %+v", got)
	}
	if _, err := repo.FindByEmail(ctx, "nobody@example.com"); err != ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRedisRepositoryCountersAndLock(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()
	id := uuid.NewString()
	if err := repo.Insert(ctx, User{ID: id, Email: "ada@example.com", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	for want := 1; want <= 3; want++ {
		n, err := repo.IncrementLoginAttempts(ctx, id)
		if err != nil || n != want {
			t.Fatalf("increment: n=%d err=%v", n, err)
		}
	}

	until := time.Now().Add(15 * time.Minute).UTC()
	ok, err := repo.UpdateFields(ctx, id, Changes{LockedUntil: &until})
	if err != nil || !ok {
		t.Fatalf("lock: ok=%v err=%v", ok, err)
	}
	got, _ := repo.FindByID(ctx, id)
	if got.LoginAttempts != 3 || got.LockedUntil == nil || !got.LockedUntil.Equal(until) {
		t.Fatalf("unexpected user %+v", got)
	}

	zero := 0
	if _, err := repo.UpdateFields(ctx, id, Changes{LoginAttempts: &zero, ClearLock: true}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if mr.HGet(userKey(id), fieldLockedUntil) != "" {
		t.Fatalf("lock field should be removed")
	}
	got, _ = repo.FindByID(ctx, id)
	if got.LoginAttempts != 0 || got.LockedUntil != nil {
		t.Fatalf("expected reset user, got %+v", got)
	}
}

func TestRedisRepositoryMissingUser(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	ok, err := repo.UpdateFields(ctx, "missing", Changes{})
	if err != nil || ok {
		t.Fatalf("update missing: ok=%v err=%v", ok, err)
	}
	if _, err := repo.IncrementLoginAttempts(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestRedisRepositoryMFAFields(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	id := uuid.NewString()
	if err := repo.Insert(ctx, User{ID: id, Email: "ada@example.com", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	on := true
	secret := "JBSWY3DPEHPK3PXP"
	if _, err := repo.UpdateFields(ctx, id, Changes{MFAEnabled: &on, MFASecret: &secret}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	got, _ := repo.FindByID(ctx, id)
	if !got.MFAEnabled || got.MFASecret != secret {
		t.Fatalf("unexpected user %+v", got)
	}

	off := false
	if _, err := repo.UpdateFields(ctx, id, Changes{MFAEnabled: &off, ClearMFASecret: true}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, _ = repo.FindByID(ctx, id)
	if got.MFAEnabled || got.MFASecret != "" {
		t.Fatalf("unexpected user %+v", got)
	}
}
