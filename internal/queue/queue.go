package queue

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// Envelope is a job as stored in the broker.
type Envelope struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Data        json.RawMessage `json:"data"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	LastError   string          `json:"last_error,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`
}

// Delivery is a job handed to one consumer. Exactly one of Complete, Fail or
// Release must be called for it.
type Delivery struct {
	Envelope
}

// Attempt is the 1-based delivery attempt.
func (d *Delivery) Attempt() int { return d.Attempts }

type Options struct {
	URL         string        // redis://[user:pass@]host:port/db
	Name        string        // queue name, default "cv-parse"
	Prefix      string        // key prefix, default "cvq"
	ConsumerID  string        // owner of the active list, default "worker"
	PollTimeout time.Duration // how long a Receive blocks, default 2s
	MaxAttempts int           // attempts for enqueued jobs that set none, default 1
	Backoff     time.Duration // first retry delay, default 5s
	MaxBackoff  time.Duration // retry delay cap, default 10m
	ResultTTL   time.Duration // how long results are kept, default 24h
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "cv-parse"
	}
	if o.Prefix == "" {
		o.Prefix = "cvq"
	}
	if o.ConsumerID == "" {
		o.ConsumerID = "worker"
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 2 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.Backoff <= 0 {
		o.Backoff = 5 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 10 * time.Minute
	}
	if o.ResultTTL <= 0 {
		o.ResultTTL = 24 * time.Hour
	}
	return o
}

// EnqueueOptions override per-job settings.
type EnqueueOptions struct {
	JobID       string // default: random UUID
	MaxAttempts int    // default: Options.MaxAttempts
}

// Stats counts jobs per state.
type Stats struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
	Delayed int64 `json:"delayed"`
	Failed  int64 `json:"failed"`
}

// backoffDelay is base * 2^(attempt-1), capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

const maxErrorLen = 500

func truncateError(s string) string {
	if len(s) <= maxErrorLen {
		return s
	}
	n := maxErrorLen - 3
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
