package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if this holder still owns it, so a
// slow sweep cannot release a lock a faster instance re-acquired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock is a single-flight lock over the delivery sweep. With several
// engine replicas only one runs a sweep tick; the rest skip it. SKIP LOCKED
// on the task fetch would also keep them correct, the lock just keeps them
// from burning queries.
type SweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	holder string
}

func NewSweepLock(client *redis.Client, key string, ttl time.Duration) *SweepLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SweepLock{client: client, key: key, ttl: ttl, holder: uuid.NewString()}
}

// TryAcquire returns true when this instance won the lock. A nil client
// (Redis not configured) always wins; single-instance deployments need no
// coordination.
func (l *SweepLock) TryAcquire(ctx context.Context) (bool, error) {
	if l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, l.key, l.holder, l.ttl).Result()
}

func (l *SweepLock) Release(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.holder).Err()
}
