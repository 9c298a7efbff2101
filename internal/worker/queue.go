package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Pop when the timeout passes with no job.
var ErrQueueEmpty = errors.New("queue empty")

// JobQueue is the Redis surface the dispatcher, pool and DLQ share: lists
// for jobs and pub/sub for the real-time fan-out.
type JobQueue interface {
	Push(ctx context.Context, queue string, data []byte) error
	Pop(ctx context.Context, timeout time.Duration, queues ...string) (queue string, data string, err error)
	Len(ctx context.Context, queue string) (int64, error)
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisQueue implements JobQueue with LPUSH/BRPOP lists.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Push(ctx context.Context, queue string, data []byte) error {
	return q.rdb.LPush(ctx, queue, data).Err()
}

// Pop blocks on BRPOP, so idle workers cost no CPU.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration, queues ...string) (string, string, error) {
	result, err := q.rdb.BRPop(ctx, timeout, queues...).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", ErrQueueEmpty
	}
	if err != nil {
		return "", "", err
	}
	if len(result) < 2 {
		return "", "", ErrQueueEmpty
	}
	return result[0], result[1], nil
}

func (q *RedisQueue) Len(ctx context.Context, queue string) (int64, error) {
	return q.rdb.LLen(ctx, queue).Result()
}

func (q *RedisQueue) Publish(ctx context.Context, channel string, payload []byte) error {
	return q.rdb.Publish(ctx, channel, payload).Err()
}
