package lock

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func TestLocal_TryLock(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "handle-1")
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := l.TryLock(ctx, "handle-1"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	other, err := l.TryLock(ctx, "handle-2")
	if err != nil {
		t.Fatalf("independent key should lock: %v", err)
	}
	other()

	unlock()
	unlock()
	again, err := l.TryLock(ctx, "handle-1")
	if err != nil {
		t.Fatalf("TryLock after unlock: %v", err)
	}
	again()
}

// TestRedis_TryLock needs a Redis instance on localhost:6379 and is skipped
// without one.
func TestRedis_TryLock(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	defer client.Close()

	var logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)
	l := NewRedis(client, "digger-test:", time.Minute, logger)
	key := "handle-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	unlock, err := l.TryLock(context.Background(), key)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := l.TryLock(context.Background(), key); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	unlock()
	again, err := l.TryLock(context.Background(), key)
	if err != nil {
		t.Fatalf("TryLock after unlock: %v", err)
	}
	again()

	// a release that cannot reach Redis is logged, not fatal
	other := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	lost, err := NewRedis(other, "digger-test:", time.Minute, logger).TryLock(context.Background(), key)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	_ = other.Close()
	lost()
	if !strings.Contains(logs.String(), "failed to release lock") {
		t.Fatalf("expected a release warning, got %q", logs.String())
	}
	_ = client.Del(context.Background(), "digger-test:"+key).Err()
}

func TestRedis_TryLockUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()

	l := NewRedis(client, "digger-test:", 0, nil)
	_, err := l.TryLock(context.Background(), "handle-1")
	if err == nil || errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected a connection error, got %v", err)
	}
	if !strings.Contains(err.Error(), "digger-test:handle-1") {
		t.Fatalf("error should name the key: %v", err)
	}
}
