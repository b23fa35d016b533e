package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyLimiter counts requests per key in fixed one-minute windows shared across
// instances.
type ValkeyLimiter struct {
	client valkey.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewValkeyLimiter allows limit requests per key per minute.
func NewValkeyLimiter(client valkey.Client, prefix string, limit int) *ValkeyLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &ValkeyLimiter{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: time.Minute,
		now:    time.Now,
	}
}

func (l *ValkeyLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := l.windowKey(key)
	count, err := l.client.Do(ctx, l.client.B().Incr().Key(windowKey).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	if count == 1 {
		seconds := int64(l.window / time.Second)
		if err := l.client.Do(ctx, l.client.B().Expire().Key(windowKey).Seconds(seconds).Build()).Error(); err != nil {
			return false, err
		}
	}
	return count <= l.limit, nil
}

func (l *ValkeyLimiter) windowKey(key string) string {
	window := l.now().Unix() / int64(l.window/time.Second)
	return l.prefix + ":" + key + ":" + strconv.FormatInt(window, 10)
}

var _ Limiter = (*ValkeyLimiter)(nil)
