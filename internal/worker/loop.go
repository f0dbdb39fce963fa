package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/cv-parser/internal/common"
	"github.com/joseph-ayodele/cv-parser/internal/entity"
	"github.com/joseph-ayodele/cv-parser/internal/metrics"
	"github.com/joseph-ayodele/cv-parser/internal/queue"
)

// Source delivers jobs and takes their outcomes back to the broker.
type Source interface {
	Receive(ctx context.Context) (*queue.Delivery, error)
	Complete(ctx context.Context, d *queue.Delivery, result []byte) error
	Fail(ctx context.Context, d *queue.Delivery, result []byte, cause error) error
	Release(ctx context.Context, d *queue.Delivery) error
	Close() error
}

// Handler processes one decoded job payload.
type Handler interface {
	Handle(ctx context.Context, payload map[string]any) (entity.JobResult, error)
}

type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var ErrAlreadyStarted = errors.New("worker loop already started")

const (
	reportTimeout  = 10 * time.Second
	receiveBackoff = time.Second
)

// Loop pulls jobs from a Source and runs them through a Handler with
// bounded concurrency. Cancelling the context passed to Run starts the
// drain: no new job is started, in-flight jobs run to completion and report
// their outcome, then the source is closed.
type Loop struct {
	src     Source
	handler Handler
	logger  *slog.Logger

	concurrency int
	jobTimeout  time.Duration
	onState     func(State)
	metrics     *metrics.Metrics

	mu       sync.Mutex
	state    State
	inFlight atomic.Int64
}

type Option func(*Loop)

// WithConcurrency sets how many jobs may run at once.
func WithConcurrency(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithJobTimeout bounds a single job. Zero means no limit.
func WithJobTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.jobTimeout = d
		}
	}
}

// WithOnStateChange registers a callback invoked on every state transition.
func WithOnStateChange(fn func(State)) Option {
	return func(l *Loop) { l.onState = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

func NewLoop(src Source, handler Handler, logger *slog.Logger, opts ...Option) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		src:         src,
		handler:     handler,
		logger:      logger,
		concurrency: 1,
		state:       StateStarting,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// InFlight returns how many jobs are being handled right now.
func (l *Loop) InFlight() int64 {
	return l.inFlight.Load()
}

// transition moves forward to s. Moving backwards or staying put is a no-op,
// so each state is entered at most once.
func (l *Loop) transition(s State) bool {
	l.mu.Lock()
	if s <= l.state {
		l.mu.Unlock()
		return false
	}
	l.state = s
	l.mu.Unlock()

	l.logger.Info("worker state changed", "state", s.String())
	if l.onState != nil {
		l.onState(s)
	}
	return true
}

// Run blocks until ctx is cancelled and every in-flight job has finished.
func (l *Loop) Run(ctx context.Context) error {
	if !l.transition(StateRunning) {
		return ErrAlreadyStarted
	}
	l.logger.Info("worker started", "concurrency", l.concurrency, "job_timeout", l.jobTimeout.String())

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		l.transition(StateDraining)
		l.logger.Info("shutdown requested, draining", "in_flight", l.InFlight())
	}()

	var g errgroup.Group
	for i := 0; i < l.concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			l.work(ctx, workerID)
			return nil
		})
	}
	_ = g.Wait()
	<-drained

	err := l.src.Close()
	if err != nil {
		l.logger.Error("failed to close job source", "error", err)
	}
	l.transition(StateStopped)
	l.logger.Info("queue drained, shutdown complete")
	return err
}

func (l *Loop) work(ctx context.Context, workerID int) {
	log := l.logger.With("worker_id", workerID)
	log.Debug("worker goroutine started")
	defer log.Debug("worker goroutine stopped")

	// receive is never interrupted mid-call, so a job is never half-moved
	recvCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return
		}

		d, err := l.src.Receive(recvCtx)
		if err != nil {
			log.Error("receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}
		if d == nil {
			continue
		}

		if ctx.Err() != nil {
			rctx, cancel := context.WithTimeout(recvCtx, reportTimeout)
			if err := l.src.Release(rctx, d); err != nil {
				log.Error("failed to release job", "job_id", d.ID, "error", err)
			}
			cancel()
			return
		}

		l.process(ctx, log, d)
	}
}

func (l *Loop) process(ctx context.Context, log *slog.Logger, d *queue.Delivery) {
	l.inFlight.Add(1)
	l.metrics.JobStarted(d.Attempt())
	defer func() {
		l.inFlight.Add(-1)
		l.metrics.JobFinished()
	}()

	base := context.WithoutCancel(ctx)
	jobCtx := common.WithAttempt(common.WithJobID(base, d.ID), d.Attempt())
	if l.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, l.jobTimeout)
		defer cancel()
	}
	log = log.With("job_id", d.ID, "attempt", d.Attempt())

	start := time.Now()
	result, herr := l.handle(jobCtx, d)
	elapsed := time.Since(start)

	body, err := json.Marshal(result)
	if err != nil {
		log.Error("failed to encode job result", "error", err)
		body = nil
	}

	rctx, cancel := context.WithTimeout(base, reportTimeout)
	defer cancel()

	if herr == nil {
		l.metrics.ObserveJob("completed", "", elapsed)
		if err := l.src.Complete(rctx, d, body); err != nil {
			log.Error("failed to report job completion", "error", err)
			return
		}
		log.Info("processed job successfully", "candidate_id", result.CandidateID, "duration_ms", elapsed.Milliseconds())
		return
	}

	kind := common.Kind(herr)
	l.metrics.ObserveJob("failed", kind, elapsed)
	log.Error("processing failed", "kind", kind, "duration_ms", elapsed.Milliseconds(), "error", herr)
	if err := l.src.Fail(rctx, d, body, herr); err != nil {
		log.Error("failed to report job failure", "error", err)
	}
}

func (l *Loop) handle(ctx context.Context, d *queue.Delivery) (res entity.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("handler panic", "job_id", d.ID, "panic", r, "stack", string(debug.Stack()))
			res = entity.ErrorResult(0)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	payload, err := entity.DecodePayload(d.Data)
	if err != nil {
		return entity.ErrorResult(0), err
	}
	return l.handler.Handle(ctx, payload)
}
