package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/change-request-service/internal/config"
)

const (
	sequenceKeyPrefix = "change_requests:seq:"
	// day counters outlive their day so a skewed clock cannot restart them
	sequenceTTL = 72 * time.Hour
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration. It returns nil
// when Redis is disabled.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if !cfg.Enabled {
		logger.Info("redis disabled; change request numbers come from the store sequence")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// NextSequence increments the counter of scope, starting at 1.
func (r *Redis) NextSequence(ctx context.Context, scope string) (int64, error) {
	if r == nil || r.Client == nil {
		return 0, errors.New("redis client not configured")
	}
	key := sequenceKeyPrefix + scope
	var incr *redis.IntCmd
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, sequenceTTL)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// advanceScript raises the counter at KEYS[1] to ARGV[1] when it is lower.
var advanceScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if current < floor then
	redis.call("SET", KEYS[1], floor, "EX", ARGV[2])
	return floor
end
return current
`)

// AdvanceSequence moves the counter of scope to at least floor so the next
// NextSequence returns a larger value.
func (r *Redis) AdvanceSequence(ctx context.Context, scope string, floor int64) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	key := sequenceKeyPrefix + scope
	return advanceScript.Run(ctx, r.Client, []string{key}, floor, int64(sequenceTTL/time.Second)).Err()
}
