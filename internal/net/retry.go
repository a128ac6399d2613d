package net

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

const DefaultMaxAttempts = 3

// ErrNoResponse is reported for an attempt whose Doer returned neither a
// response nor an error.
var ErrNoResponse = errors.New("net: no response")

// IsTerminal reports whether body is a JSON envelope whose `_code` is in
// 200..299 or 400..499. Such a response stops the retry loop; it is not
// necessarily a success.
func IsTerminal(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	var env struct {
		Code *int `json:"_code"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Code == nil {
		return false
	}
	code := *env.Code
	return (code >= 200 && code <= 299) || (code >= 400 && code <= 499)
}

// OutcomeRecorder receives one record per finished operation.
type OutcomeRecorder interface {
	RecordOutcome(operation, outcome string, attempts int)
}

// Operation is the handle of a submitted request. Cancel stops the retry
// chain: the in-flight attempt is aborted, no further attempt is scheduled
// and the completion receives nil.
type Operation struct {
	Key string

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	attempts atomic.Int32
}

func (o *Operation) Cancel() { o.cancel() }

// Done is closed after the completion has returned.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Attempts is the number of dispatches made so far.
func (o *Operation) Attempts() int { return int(o.attempts.Load()) }

// Retrier runs requests with bounded retry. Attempts of one operation run
// strictly one after the other.
type Retrier struct {
	doer        Doer
	registry    *OperationRegistry
	maxAttempts int
	backoff     time.Duration
	metrics     *Metrics
	recorder    OutcomeRecorder
}

type RetrierOption func(*Retrier)

func WithMaxAttempts(n int) RetrierOption {
	return func(r *Retrier) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBackoff waits d between attempts. The default is to retry at once.
func WithBackoff(d time.Duration) RetrierOption {
	return func(r *Retrier) { r.backoff = d }
}

func WithRegistry(reg *OperationRegistry) RetrierOption {
	return func(r *Retrier) {
		if reg != nil {
			r.registry = reg
		}
	}
}

func WithMetrics(m *Metrics) RetrierOption {
	return func(r *Retrier) { r.metrics = m }
}

func WithRecorder(rec OutcomeRecorder) RetrierOption {
	return func(r *Retrier) { r.recorder = rec }
}

func NewRetrier(doer Doer, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		doer:        doer,
		registry:    NewOperationRegistry(),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) Registry() *OperationRegistry { return r.registry }

// Submit starts req under key and returns immediately. completion is called
// exactly once, from another goroutine, with the raw body of the terminal
// response or nil when attempts are exhausted or the operation is cancelled.
func (r *Retrier) Submit(ctx context.Context, key string, req *Request, completion func([]byte)) *Operation {
	opCtx, cancel := context.WithCancel(ctx)
	op := &Operation{
		Key:    key,
		ctx:    opCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if prev := r.registry.Track(key, op); prev != nil {
		glog.V(1).Infof("net: operation %s replaced a tracked one", key)
	}
	r.metrics.started()
	go r.run(op, req, completion)
	return op
}

// Do submits req and waits for its result.
func (r *Retrier) Do(ctx context.Context, key string, req *Request) []byte {
	ch := make(chan []byte, 1)
	r.Submit(ctx, key, req, func(body []byte) { ch <- body })
	return <-ch
}

func (r *Retrier) run(op *Operation, req *Request, completion func([]byte)) {
	defer close(op.done)
	defer op.cancel()

	var result []byte
	outcome := OutcomeExhausted
	for attempt := 1; ; attempt++ {
		if op.ctx.Err() != nil {
			outcome = OutcomeCancelled
			break
		}
		op.attempts.Store(int32(attempt))

		resp, err := r.doer.Do(op.ctx, req)
		if err == nil && resp == nil {
			err = ErrNoResponse
		}
		if err == nil && IsTerminal(resp.Body) {
			r.metrics.attempt(op.Key, OutcomeTerminal)
			result = resp.Body
			outcome = OutcomeTerminal
			break
		}
		r.metrics.attempt(op.Key, OutcomeRetryable)
		if op.ctx.Err() != nil {
			outcome = OutcomeCancelled
			break
		}
		if err != nil {
			glog.Warningf("net: %s attempt %d/%d failed: %v", op.Key, attempt, r.maxAttempts, err)
		} else {
			glog.Warningf("net: %s attempt %d/%d got retryable response (status %d)", op.Key, attempt, r.maxAttempts, resp.StatusCode)
		}
		if attempt >= r.maxAttempts {
			break
		}
		if r.backoff > 0 {
			select {
			case <-op.ctx.Done():
			case <-time.After(r.backoff):
			}
		}
	}

	r.registry.Remove(op.Key, op)
	r.metrics.finished(op.Key, outcome)
	if r.recorder != nil {
		r.recorder.RecordOutcome(op.Key, outcome, op.Attempts())
	}
	glog.V(1).Infof("net: %s finished: %s after %d attempt(s)", op.Key, outcome, op.Attempts())
	if completion != nil {
		completion(result)
	}
}
