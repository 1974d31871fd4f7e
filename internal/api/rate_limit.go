package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type txPipeliner interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// countInWindow 在 MULTI 中对 key 计数，只在窗口首次命中时设置过期时间，
// 后续命中不会顺延窗口。
func countInWindow(ctx context.Context, client txPipeliner, key string, window time.Duration) (int64, error) {
	var hits *redis.IntCmd
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hits = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return hits.Val(), nil
}
