// Package retry runs exchange operations with category-aware exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/futurestrader/pkg/util"
)

// Engine executes operations under a fixed Config.
type Engine struct {
	cfg      Config
	classify func(error) Category
	clock    util.Clock
	rand     func() float64
	log      *zap.SugaredLogger
}

type Option func(*Engine)

// WithClock replaces the time source used for backoff sleeps and durations.
func WithClock(c util.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithRand replaces the uniform [0,1) source used for jitter.
func WithRand(f func() float64) Option { return func(e *Engine) { e.rand = f } }

// WithClassifier replaces Classify.
func WithClassifier(f func(error) Category) Option { return func(e *Engine) { e.classify = f } }

func NewEngine(cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		classify: Classify,
		clock:    util.RealClock{},
		rand:     rand.Float64,
		log:      util.OrNop(logger).Named("retry").Sugar(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Outcome is the result of one top-level Run.
type Outcome[T any] struct {
	Result   T
	Err      error
	Attempts int
	Duration time.Duration
}

func (o Outcome[T]) Success() bool { return o.Err == nil }

// InterruptedError is returned when the context ends between attempts.
// It unwraps to both the context cause and the last operation failure.
type InterruptedError struct {
	Label    string
	Attempts int
	Cause    error
	Last     error
}

func (e *InterruptedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s interrupted: %v", e.Label, e.Cause)
	}
	return fmt.Sprintf("%s interrupted after %d attempt(s): %v (last error: %v)", e.Label, e.Attempts, e.Cause, e.Last)
}

func (e *InterruptedError) Unwrap() []error {
	if e.Last == nil {
		return []error{e.Cause}
	}
	return []error{e.Cause, e.Last}
}

// Do runs op until it succeeds or the retry policy gives up, returning the
// last failure unchanged.
func Do[T any](ctx context.Context, e *Engine, label string, op func(context.Context) (T, error)) (T, error) {
	o := Run(ctx, e, label, op)
	return o.Result, o.Err
}

// Run is Do with attempt count and elapsed time attached.
func Run[T any](ctx context.Context, e *Engine, label string, op func(context.Context) (T, error)) Outcome[T] {
	start := e.clock.Now()
	done := func(res T, err error, attempts int) Outcome[T] {
		return Outcome[T]{Result: res, Err: err, Attempts: attempts, Duration: e.clock.Now().Sub(start)}
	}

	var zero T
	var last error
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return done(zero, e.interrupted(ctx, label, attempt, last), attempt)
		}

		e.log.Infow("operation_attempt", "op", label, "attempt", attempt+1)
		res, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				e.log.Infow("operation_recovered", "op", label, "retries", attempt)
			}
			return done(res, nil, attempt+1)
		}
		last = err
		if ctx.Err() != nil {
			return done(zero, e.interrupted(ctx, label, attempt+1, last), attempt+1)
		}

		cat := e.classify(err)
		e.log.Warnw("operation_failed",
			"op", label,
			"attempt", attempt+1,
			"category", cat.String(),
			"err", err)

		if !e.cfg.ShouldRetry(cat, attempt) {
			if attempt >= e.cfg.MaxRetries {
				e.log.Errorw("operation_retries_exhausted", "op", label, "max_retries", e.cfg.MaxRetries, "err", err)
			} else {
				e.log.Errorw("operation_failed_permanently", "op", label, "category", cat.String(), "err", err)
			}
			return done(zero, err, attempt+1)
		}

		delay := e.cfg.Delay(cat, attempt, e.rand())
		e.log.Infow("operation_backoff",
			"op", label,
			"category", cat.String(),
			"delay_ms", delay.Milliseconds())
		if serr := util.Sleep(ctx, e.clock, delay); serr != nil {
			return done(zero, e.interrupted(ctx, label, attempt+1, last), attempt+1)
		}
	}
}

func (e *Engine) interrupted(ctx context.Context, label string, attempts int, last error) error {
	cause := context.Cause(ctx)
	e.log.Warnw("operation_interrupted", "op", label, "attempts", attempts, "cause", cause)
	return &InterruptedError{Label: label, Attempts: attempts, Cause: cause, Last: last}
}
