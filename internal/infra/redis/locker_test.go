package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerSetsAndClearsKey(t *testing.T) {
	mr, client := newClient(t)
	locks := NewLocker(client, time.Minute)

	unlock, err := locks.Lock(context.Background(), "quiz:submission:s1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists("lock:quiz:submission:s1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("lock:quiz:submission:s1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl within a minute, got %v", ttl)
	}

	unlock()
	if mr.Exists("lock:quiz:submission:s1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestLockerBlocksSecondHolder(t *testing.T) {
	_, client := newClient(t)
	first := NewLocker(client, time.Minute)
	second := NewLocker(client, time.Minute)

	unlock, err := first.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := second.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while held, got %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		unlock2, err := second.Lock(context.Background(), "k")
		if err == nil {
			unlock2()
		}
		acquired <- err
	}()
	unlock()

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("second lock: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second holder never acquired the lock")
	}
}

func TestLockerReleaseLeavesForeignLock(t *testing.T) {
	mr, client := newClient(t)
	locks := NewLocker(client, time.Second)

	unlock, err := locks.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// simulate expiry and takeover by another instance
	mr.FastForward(2 * time.Second)
	if err := mr.Set("lock:k", "someone-else"); err != nil {
		t.Fatalf("set: %v", err)
	}

	unlock()
	if got, _ := mr.Get("lock:k"); got != "someone-else" {
		t.Fatalf("release removed a lock it no longer owned, value %q", got)
	}
}
