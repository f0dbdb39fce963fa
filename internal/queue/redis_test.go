package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cv-parser/internal/common"
)

func newTestQueue(t *testing.T, opts Options) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if opts.PollTimeout == 0 {
		opts.PollTimeout = 50 * time.Millisecond
	}
	q := NewRedisQueueWithClient(client, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func TestEnqueueReceiveComplete(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t, Options{})

	id, err := q.Enqueue(ctx, "parse-cv", map[string]any{"candidate_id": 42, "storage_path": "cvs/42.pdf"}, EnqueueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, "parse-cv", d.Name)
	assert.Equal(t, 1, d.Attempt())
	assert.Equal(t, 1, d.MaxAttempts)
	assert.JSONEq(t, `{"candidate_id":42,"storage_path":"cvs/42.pdf"}`, string(d.Data))

	active, err := mr.List("cvq:cv-parse:active:worker")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, active)

	require.NoError(t, q.Complete(ctx, d, []byte(`{"status":"ok","candidate_id":"42"}`)))

	assert.False(t, mr.Exists("cvq:cv-parse:active:worker"))
	assert.False(t, mr.Exists("cvq:cv-parse:jobs"))

	res, err := q.Result(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","candidate_id":"42"}`, string(res))
}

func TestReceiveEmptyQueue(t *testing.T) {
	q, _ := newTestQueue(t, Options{})

	d, err := q.Receive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestReceiveIsFIFO(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, Options{})

	first, err := q.Enqueue(ctx, "parse-cv", map[string]any{"n": 1}, EnqueueOptions{})
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, "parse-cv", map[string]any{"n": 2}, EnqueueOptions{})
	require.NoError(t, err)

	d1, err := q.Receive(ctx)
	require.NoError(t, err)
	d2, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, d1.ID)
	assert.Equal(t, second, d2.ID)
}

func TestFailPermanentGoesToFailedList(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, Options{MaxAttempts: 3})

	id, err := q.Enqueue(ctx, "parse-cv", map[string]any{"candidate_id": 7}, EnqueueOptions{})
	require.NoError(t, err)
	d, err := q.Receive(ctx)
	require.NoError(t, err)

	cause := common.NewNotFoundError("object cvs/7.pdf", nil)
	require.NoError(t, q.Fail(ctx, d, []byte(`{"status":"error","candidate_id":"7"}`), cause))

	failed, err := q.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, id, failed[0].ID)
	assert.Equal(t, "not_found", failed[0].ErrorKind)
	assert.Equal(t, 1, failed[0].Attempts)
	assert.Contains(t, failed[0].LastError, "cvs/7.pdf")
	assert.False(t, failed[0].FailedAt.IsZero())

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Failed: 1}, stats)
}

func TestFailTransientIsRetriedAfterBackoff(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, Options{MaxAttempts: 2, Backoff: 20 * time.Millisecond})

	id, err := q.Enqueue(ctx, "parse-cv", map[string]any{"candidate_id": 7}, EnqueueOptions{})
	require.NoError(t, err)
	d, err := q.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, d, nil, common.NewTransientError("download", errors.New("timeout"))))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)
	assert.Equal(t, int64(0), stats.Failed)

	time.Sleep(30 * time.Millisecond)

	d, err = q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, 2, d.Attempt())
	assert.Equal(t, "transient", d.ErrorKind)

	// out of attempts now
	require.NoError(t, q.Fail(ctx, d, nil, common.NewTransientError("download", errors.New("timeout"))))
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Failed: 1}, stats)
}

func TestReleaseRequeuesAtHead(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, Options{})

	first, err := q.Enqueue(ctx, "parse-cv", map[string]any{"n": 1}, EnqueueOptions{})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "parse-cv", map[string]any{"n": 2}, EnqueueOptions{})
	require.NoError(t, err)

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Release(ctx, d))

	again, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again.ID)
	assert.Equal(t, 1, again.Attempt())
}

func TestRecoverStale(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t, Options{ConsumerID: "w1"})

	id, err := q.Enqueue(ctx, "parse-cv", map[string]any{"n": 1}, EnqueueOptions{})
	require.NoError(t, err)
	_, err = q.Receive(ctx)
	require.NoError(t, err)

	n, err := q.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	wait, err := mr.List("cvq:cv-parse:wait")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, wait)
}

func TestRetryFailed(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, Options{})

	id, err := q.Enqueue(ctx, "parse-cv", map[string]any{"candidate_id": 1}, EnqueueOptions{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, d, []byte(`{}`), common.NewValidationError("bad payload", nil)))

	require.NoError(t, q.RetryFailed(ctx, id))

	_, err = q.Result(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)

	d, err = q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 1, d.Attempt())
	assert.Empty(t, d.LastError)

	err = q.RetryFailed(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRetryAllFailed(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, Options{})

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, "parse-cv", map[string]any{"n": i}, EnqueueOptions{})
		require.NoError(t, err)
		d, err := q.Receive(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Fail(ctx, d, nil, errors.New("boom")))
	}

	n, err := q.RetryAllFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Waiting: 3}, stats)
}

func TestReceiveDeadLettersUndecodableJob(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t, Options{})

	id, err := q.Enqueue(ctx, "parse-cv", map[string]any{"candidate_id": 1}, EnqueueOptions{})
	require.NoError(t, err)
	mr.HSet("cvq:cv-parse:jobs", id, "{not json")

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, d)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Failed: 1}, stats)

	failed, err := q.ListFailed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, id, failed[0].ID)
	assert.Equal(t, "validation", failed[0].ErrorKind)
	assert.Equal(t, `"{not json"`, failed[0].Payload)
	assert.False(t, failed[0].FailedAt.IsZero())
}

// readOnlyHSet fails every standalone HSET, like a replica that refuses writes.
type readOnlyHSet struct{}

func (readOnlyHSet) DialHook(next redis.DialHook) redis.DialHook { return next }

func (readOnlyHSet) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "hset" {
			err := errors.New("READONLY You can't write against a read only replica.")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (readOnlyHSet) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestReceiveReturnsJobWhenAttemptCannotBeSaved(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t, Options{})

	id, err := q.Enqueue(ctx, "parse-cv", map[string]any{"candidate_id": 1}, EnqueueOptions{})
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client.AddHook(readOnlyHSet{})
	broken := NewRedisQueueWithClient(client, Options{PollTimeout: 50 * time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = broken.Close() })

	d, err := broken.Receive(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransient)
	assert.Nil(t, d)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Waiting: 1}, stats)

	d, err = q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, 1, d.Attempt())
}

func TestRetryFailedKeepsUndecodableJobDeadLettered(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t, Options{})

	_, err := q.Enqueue(ctx, "parse-cv", map[string]any{"candidate_id": 1}, EnqueueOptions{JobID: "job-1"})
	require.NoError(t, err)
	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, d, nil, common.NewValidationError("bad payload", nil)))

	mr.HSet("cvq:cv-parse:jobs", "job-1", "{not json")

	err = q.RetryFailed(ctx, "job-1")
	assert.ErrorIs(t, err, common.ErrValidation)

	n, err := q.RetryAllFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Failed: 1}, stats)
}

func TestRetryFailedIgnoresJobsNotDeadLettered(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, Options{})

	_, err := q.Enqueue(ctx, "parse-cv", map[string]any{"candidate_id": 1}, EnqueueOptions{JobID: "job-1"})
	require.NoError(t, err)

	err = q.RetryFailed(ctx, "job-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Waiting: 1}, stats)
}

func TestEnvelopeRoundTripKeepsRawData(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t, Options{})

	id, err := q.Enqueue(ctx, "parse-cv", json.RawMessage(`{"candidate_id":"12"}`), EnqueueOptions{MaxAttempts: 4})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(mr.HGet("cvq:cv-parse:jobs", id)), &env))
	assert.Equal(t, 4, env.MaxAttempts)
	assert.JSONEq(t, `{"candidate_id":"12"}`, string(env.Data))
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Second, backoffDelay(0, base, time.Minute))
	assert.Equal(t, time.Second, backoffDelay(1, base, time.Minute))
	assert.Equal(t, 4*time.Second, backoffDelay(3, base, time.Minute))
	assert.Equal(t, time.Minute, backoffDelay(20, base, time.Minute))
}

func TestTruncateError(t *testing.T) {
	short := "boom"
	assert.Equal(t, short, truncateError(short))

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	got := truncateError(string(long))
	assert.Len(t, got, maxErrorLen)
	assert.Equal(t, "...", got[len(got)-3:])
}

func TestTruncateErrorKeepsRunesWhole(t *testing.T) {
	got := truncateError(strings.Repeat("é", 300))
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxErrorLen)
	assert.True(t, strings.HasSuffix(got, "..."))
}
