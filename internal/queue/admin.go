package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/cv-parser/internal/common"
	"github.com/joseph-ayodele/cv-parser/internal/entity"
)

// Stats counts jobs in each state across all consumers.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	pipe := q.rdb.Pipeline()
	wait := pipe.LLen(ctx, q.waitKey)
	delayed := pipe.ZCard(ctx, q.delayedKey)
	failed := pipe.LLen(ctx, q.failedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return s, common.NewTransientError("read queue stats", err)
	}
	s.Waiting = wait.Val()
	s.Delayed = delayed.Val()
	s.Failed = failed.Val()

	pattern := q.opts.Prefix + ":" + q.opts.Name + ":active:*"
	iter := q.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		n, err := q.rdb.LLen(ctx, iter.Val()).Result()
		if err != nil {
			return s, common.NewTransientError("count active jobs", err)
		}
		s.Active += n
	}
	if err := iter.Err(); err != nil {
		return s, common.NewTransientError("scan active lists", err)
	}
	return s, nil
}

// ListFailed returns up to limit dead-lettered jobs, newest first. A limit
// of zero or less returns all of them.
func (q *RedisQueue) ListFailed(ctx context.Context, limit int) ([]entity.FailedJob, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := q.rdb.LRange(ctx, q.failedKey, 0, stop).Result()
	if err != nil {
		return nil, common.NewTransientError("list failed jobs", err)
	}
	if len(ids) == 0 {
		return []entity.FailedJob{}, nil
	}

	raw, err := q.rdb.HMGet(ctx, q.jobsKey, ids...).Result()
	if err != nil {
		return nil, common.NewTransientError("load failed jobs", err)
	}

	out := make([]entity.FailedJob, 0, len(ids))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			q.logger.Warn("failed job has no payload", "job_id", ids[i])
			continue
		}
		var env Envelope
		if err := json.Unmarshal([]byte(s), &env); err != nil {
			q.logger.Warn("failed job is not decodable", "job_id", ids[i], "error", err)
			continue
		}
		fj := entity.FailedJob{
			ID:          env.ID,
			Name:        env.Name,
			Payload:     string(env.Data),
			Attempts:    env.Attempts,
			MaxAttempts: env.MaxAttempts,
			ErrorKind:   env.ErrorKind,
			LastError:   env.LastError,
			EnqueuedAt:  env.EnqueuedAt,
		}
		if env.FailedAt != nil {
			fj.FailedAt = *env.FailedAt
		}
		out = append(out, fj)
	}
	return out, nil
}

// retryScript requeues a dead-lettered job only if it is still on the failed list.
var retryScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('DEL', KEYS[3])
redis.call('LPUSH', KEYS[4], ARGV[1])
return 1
`)

// RetryFailed moves one dead-lettered job back onto the wait list with a
// fresh attempt budget. A job that cannot be loaded stays on the failed list.
func (q *RedisQueue) RetryFailed(ctx context.Context, id string) error {
	env, err := q.load(ctx, id)
	if err != nil {
		return err
	}
	env.Attempts = 0
	env.LastError = ""
	env.ErrorKind = ""
	env.FailedAt = nil
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	moved, err := retryScript.Run(ctx, q.rdb,
		[]string{q.failedKey, q.jobsKey, q.resultKey(id), q.waitKey},
		id, string(b),
	).Int()
	if err != nil {
		return common.NewTransientError("requeue failed job", err)
	}
	if moved == 0 {
		return common.NewNotFoundError(fmt.Sprintf("failed job %s", id), nil)
	}
	q.logger.Info("failed job requeued", "job_id", id)
	return nil
}

// RetryAllFailed requeues every dead-lettered job and returns how many were moved.
func (q *RedisQueue) RetryAllFailed(ctx context.Context) (int, error) {
	ids, err := q.rdb.LRange(ctx, q.failedKey, 0, -1).Result()
	if err != nil {
		return 0, common.NewTransientError("list failed jobs", err)
	}
	n := 0
	for _, id := range ids {
		if err := q.RetryFailed(ctx, id); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			if errors.Is(err, common.ErrValidation) {
				q.logger.Warn("failed job is not decodable, leaving it dead-lettered", "job_id", id, "error", err)
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// Result returns the stored result of a finished job.
func (q *RedisQueue) Result(ctx context.Context, id string) ([]byte, error) {
	b, err := q.rdb.Get(ctx, q.resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, common.NewNotFoundError(fmt.Sprintf("result for job %s", id), nil)
	}
	if err != nil {
		return nil, common.NewTransientError("read job result", err)
	}
	return b, nil
}
