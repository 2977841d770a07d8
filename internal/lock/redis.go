package lock

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX. The TTL bounds how long a crashed
// worker can keep a handle locked.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewRedis returns a Redis locker. Keys are stored under prefix. Failed
// releases are reported to logger; a nil logger discards them.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration, logger logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, log: logger}
}

// TryLock implements Locker.
func (r *Redis) TryLock(ctx context.Context, key string) (Unlock, error) {
	token := uuid.NewString()
	fullKey := r.prefix + key
	ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return func() {
		// the caller's context may already be done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{fullKey}, token).Err(); err != nil {
			r.log.WithError(err).WithField("key", fullKey).Warn("failed to release lock")
		}
	}, nil
}
