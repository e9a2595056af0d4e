package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig is what Connect needs to know about the deployment.
type RedisConfig struct {
	Addr    string
	Timeout time.Duration
}

// Connect wraps client as the process-wide store. A nil client means Redis is
// not configured and yields Unavailable. A failed ping is only logged: the
// store is still returned, every call redials through the client's pool, and
// state comes back on its own once Redis does. Until then callers see
// ErrUnavailable per operation.
func Connect(ctx context.Context, client redis.UniversalClient, cfg RedisConfig, logger *zap.Logger) Optional {
	if logger == nil {
		logger = zap.L()
	}
	if client == nil {
		logger.Warn("redis not configured, running without state store")
		return Unavailable()
	}

	store := NewRedisStore(client, cfg.Timeout)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at boot, serving degraded until it answers",
			zap.String("addr", cfg.Addr),
			zap.Error(err),
		)
	}
	return Available(store)
}
