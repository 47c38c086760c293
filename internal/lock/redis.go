package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "ingest:inflight:"

	// DefaultLeaseTTL bounds how long a crashed process can block a kind.
	DefaultLeaseTTL = 2 * time.Hour
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Guard shared by every process pointed at the same Redis.
// Leases are SET NX with a TTL so a crashed holder cannot block forever.
type Redis struct {
	cl  *redis.Client
	ttl time.Duration
	log *slog.Logger
}

// NewRedis creates a guard over cl. A non-positive ttl uses DefaultLeaseTTL.
func NewRedis(cl *redis.Client, ttl time.Duration, log *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Redis{
		cl:  cl,
		ttl: ttl,
		log: log.With(slog.String("item", "RedisGuard")),
	}
}

func (r *Redis) TryAcquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	k := keyPrefix + key

	ok, err := r.cl.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", k, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The holder's context may be long gone by the time the job ends.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := releaseScript.Run(ctx, r.cl, []string{k}, token).Err(); err != nil {
				r.log.Error("Cannot release lease", slog.String("key", k), slog.Any("error", err))
			}
		})
	}, nil
}
