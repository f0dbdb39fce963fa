package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/cv-parser/internal/common"
)

// promoteScript moves delayed jobs whose backoff has elapsed onto the wait list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', '0', ARGV[2])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #due
`)

// RedisQueue is a reliable queue on Redis lists. Producers push job IDs on
// the wait list; a consumer atomically moves an ID to its own active list
// while handling it, so a crash never loses a job.
type RedisQueue struct {
	rdb    redis.UniversalClient
	opts   Options
	logger *slog.Logger

	waitKey    string
	activeKey  string
	delayedKey string
	failedKey  string
	jobsKey    string
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(ctx context.Context, opts Options, logger *slog.Logger) (*RedisQueue, error) {
	ropts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "parse REDIS_URL", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{ropts.Addr},
		DB:           ropts.DB,
		Username:     ropts.Username,
		Password:     ropts.Password,
		TLSConfig:    ropts.TLSConfig,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, common.NewTransientError("connect to redis", err)
	}
	return NewRedisQueueWithClient(client, opts, logger), nil
}

// NewRedisQueueWithClient wraps an existing client. The queue owns it from then on.
func NewRedisQueueWithClient(client redis.UniversalClient, opts Options, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	base := opts.Prefix + ":" + opts.Name
	return &RedisQueue{
		rdb:        client,
		opts:       opts,
		logger:     logger.With("queue", opts.Name),
		waitKey:    base + ":wait",
		activeKey:  base + ":active:" + opts.ConsumerID,
		delayedKey: base + ":delayed",
		failedKey:  base + ":failed",
		jobsKey:    base + ":jobs",
	}
}

func (q *RedisQueue) resultKey(id string) string {
	return q.opts.Prefix + ":" + q.opts.Name + ":result:" + id
}

// Name returns the queue name.
func (q *RedisQueue) Name() string { return q.opts.Name }

// Enqueue stores a job and makes it visible to consumers. It returns the job ID.
func (q *RedisQueue) Enqueue(ctx context.Context, name string, data any, eo EnqueueOptions) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", common.NewValidationError("marshal job data", err)
	}
	env := Envelope{
		ID:          eo.JobID,
		Name:        name,
		Data:        raw,
		MaxAttempts: eo.MaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.MaxAttempts <= 0 {
		env.MaxAttempts = q.opts.MaxAttempts
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.jobsKey, env.ID, b)
		p.LPush(ctx, q.waitKey, env.ID)
		return nil
	})
	if err != nil {
		return "", common.NewTransientError("enqueue job", err)
	}
	q.logger.Info("job enqueued", "job_id", env.ID, "name", name, "max_attempts", env.MaxAttempts)
	return env.ID, nil
}

// Receive blocks up to the poll timeout for the next job. It returns
// (nil, nil) when no job arrived in time.
func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	if err := q.promoteDue(ctx); err != nil {
		q.logger.Warn("failed to promote delayed jobs", "error", err)
	}

	id, err := q.rdb.BLMove(ctx, q.waitKey, q.activeKey, "RIGHT", "LEFT", q.opts.PollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, common.NewTransientError("receive job", err)
	}

	env, err := q.load(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			// payload vanished (deleted by an operator); drop the orphan ID
			q.logger.Warn("dropping job without payload", "job_id", id)
			q.rdb.LRem(ctx, q.activeKey, 1, id)
			return nil, nil
		case errors.Is(err, common.ErrValidation):
			if dlErr := q.deadLetterUndecodable(ctx, id, err); dlErr != nil {
				q.requeue(ctx, id)
				return nil, dlErr
			}
			return nil, nil
		}
		q.requeue(ctx, id)
		return nil, err
	}

	env.Attempts++
	if err := q.save(ctx, q.rdb, env); err != nil {
		q.requeue(ctx, id)
		return nil, err
	}
	return &Delivery{Envelope: *env}, nil
}

// requeue puts an ID that Receive could not hand out back at the head of
// the wait list.
func (q *RedisQueue) requeue(ctx context.Context, id string) {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.activeKey, 1, id)
		p.RPush(ctx, q.waitKey, id)
		return nil
	})
	if err != nil {
		q.logger.Warn("failed to return job to wait list, it stays active until recovered", "job_id", id, "error", err)
	}
}

// deadLetterUndecodable moves a job whose stored envelope cannot be decoded
// to the failed list. The raw entry is kept as the payload.
func (q *RedisQueue) deadLetterUndecodable(ctx context.Context, id string, cause error) error {
	raw, err := q.rdb.HGet(ctx, q.jobsKey, id).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return common.NewTransientError("load job", err)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	env := Envelope{
		ID:          id,
		Data:        data,
		Attempts:    1,
		MaxAttempts: 1,
		LastError:   truncateError(cause.Error()),
		ErrorKind:   common.Kind(cause),
		FailedAt:    &now,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.activeKey, 1, id)
		p.HSet(ctx, q.jobsKey, id, b)
		p.LPush(ctx, q.failedKey, id)
		return nil
	})
	if err != nil {
		return common.NewTransientError("dead-letter job", err)
	}
	q.logger.Warn("undecodable job moved to failed list", "job_id", id, "error", env.LastError)
	return nil
}

// Complete records the job's result and forgets the job.
func (q *RedisQueue) Complete(ctx context.Context, d *Delivery, result []byte) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.activeKey, 1, d.ID)
		p.Set(ctx, q.resultKey(d.ID), result, q.opts.ResultTTL)
		p.HDel(ctx, q.jobsKey, d.ID)
		return nil
	})
	if err != nil {
		return common.NewTransientError("complete job", err)
	}
	q.logger.Debug("job completed", "job_id", d.ID, "attempt", d.Attempts)
	return nil
}

// Fail reports a failed attempt. Transient failures with attempts left are
// scheduled again after an exponential backoff; everything else is moved to
// the failed list.
func (q *RedisQueue) Fail(ctx context.Context, d *Delivery, result []byte, cause error) error {
	env := d.Envelope
	if cause != nil {
		env.LastError = truncateError(cause.Error())
		env.ErrorKind = common.Kind(cause)
	}

	if common.Retryable(cause) && env.Attempts < env.MaxAttempts {
		delay := backoffDelay(env.Attempts, q.opts.Backoff, q.opts.MaxBackoff)
		b, err := json.Marshal(env)
		if err != nil {
			return err
		}
		_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, q.activeKey, 1, env.ID)
			p.HSet(ctx, q.jobsKey, env.ID, b)
			p.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(time.Now().Add(delay).UnixMilli()), Member: env.ID})
			return nil
		})
		if err != nil {
			return common.NewTransientError("schedule retry", err)
		}
		q.logger.Info("job scheduled for retry",
			"job_id", env.ID,
			"attempt", env.Attempts,
			"max_attempts", env.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
		)
		return nil
	}

	now := time.Now().UTC()
	env.FailedAt = &now
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.activeKey, 1, env.ID)
		p.HSet(ctx, q.jobsKey, env.ID, b)
		p.LPush(ctx, q.failedKey, env.ID)
		if result != nil {
			p.Set(ctx, q.resultKey(env.ID), result, q.opts.ResultTTL)
		}
		return nil
	})
	if err != nil {
		return common.NewTransientError("dead-letter job", err)
	}
	q.logger.Warn("job failed permanently",
		"job_id", env.ID,
		"attempt", env.Attempts,
		"kind", env.ErrorKind,
		"error", env.LastError,
	)
	return nil
}

// Release hands a received job back untouched, ahead of every waiting job.
func (q *RedisQueue) Release(ctx context.Context, d *Delivery) error {
	env := d.Envelope
	if env.Attempts > 0 {
		env.Attempts--
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.activeKey, 1, env.ID)
		p.HSet(ctx, q.jobsKey, env.ID, b)
		p.RPush(ctx, q.waitKey, env.ID)
		return nil
	})
	if err != nil {
		return common.NewTransientError("release job", err)
	}
	q.logger.Info("job released", "job_id", env.ID)
	return nil
}

// RecoverStale moves jobs left on this consumer's active list by a previous
// run back to the head of the wait list. It returns how many were moved.
func (q *RedisQueue) RecoverStale(ctx context.Context) (int, error) {
	n := 0
	for {
		id, err := q.rdb.LMove(ctx, q.activeKey, q.waitKey, "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, common.NewTransientError("recover stale jobs", err)
		}
		q.logger.Warn("recovered stale job", "job_id", id)
		n++
	}
	return n, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}

// Ping checks the broker connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := time.Now().UnixMilli()
	return promoteScript.Run(ctx, q.rdb, []string{q.delayedKey, q.waitKey}, now, 100).Err()
}

func (q *RedisQueue) load(ctx context.Context, id string) (*Envelope, error) {
	b, err := q.rdb.HGet(ctx, q.jobsKey, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, common.NewNotFoundError(fmt.Sprintf("job %s", id), nil)
	}
	if err != nil {
		return nil, common.NewTransientError("load job", err)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, common.NewValidationError(fmt.Sprintf("decode job %s", id), err)
	}
	return &env, nil
}

func (q *RedisQueue) save(ctx context.Context, c redis.Cmdable, env *Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := c.HSet(ctx, q.jobsKey, env.ID, b).Err(); err != nil {
		return common.NewTransientError("save job", err)
	}
	return nil
}
