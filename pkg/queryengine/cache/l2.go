package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// L2 is the optional networked cache tier. Timeouts and any other error
// are treated as a miss on read and dropped silently on write, per §4.7
// and the CacheIOError recovery rule of §7.
type L2 struct {
	client  *redis.Client
	timeout time.Duration
}

// NewL2 returns an L2 tier backed by a Redis client at addr.
func NewL2(addr, password string, db int) *L2 {
	return &L2{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		timeout: 500 * time.Millisecond,
	}
}

func (l *L2) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	val, err := l.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (l *L2) Set(key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	_ = l.client.Set(ctx, key, value, ttl).Err()
}

func (l *L2) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	_ = l.client.Del(ctx, key).Err()
}

func (l *L2) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	_ = l.client.FlushDB(ctx).Err()
}

func (l *L2) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.client.Ping(ctx).Err()
}
