package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// MaxRetries is how many times a failed action is requeued before its
	// future fails. An item therefore runs at most MaxRetries+1 times.
	MaxRetries = 5

	DefaultCapacity = 1024
	DefaultInterval = 1200 * time.Millisecond
)

var (
	ErrRetriesExhausted = errors.New("too many retries")
	ErrQueueFull        = errors.New("request queue is full")
	ErrQueueClosed      = errors.New("request queue is closed")
)

// Action is a deferred unit of work. A returned error counts as a failed attempt.
type Action func(ctx context.Context) error

// Observer receives queue activity, used for metrics
type Observer interface {
	ObserveAttempt()
	ObserveRetry()
	ObserveExhausted()
	ObserveDepth(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt()   {}
func (nopObserver) ObserveRetry()     {}
func (nopObserver) ObserveExhausted() {}
func (nopObserver) ObserveDepth(int)  {}

// Future is the result handle of a submitted action
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Done is closed once the action succeeded or failed terminally
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the terminal error. Only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the action completes or ctx is cancelled
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type item struct {
	ctx    context.Context
	action Action
	tries  int
	future *Future
}

// Queue serializes actions through a single worker that runs at most one
// action per tick. Failed actions go back to the tail of the queue.
type Queue struct {
	interval time.Duration
	capacity int
	observer Observer
	logger   zerolog.Logger

	mu      sync.Mutex
	items   []*item
	closed  bool
	running bool
}

// Option configures a Queue
type Option func(*Queue)

// WithInterval sets the delay between ticks
func WithInterval(interval time.Duration) Option {
	return func(q *Queue) {
		q.interval = interval
	}
}

// WithCapacity bounds the number of pending items
func WithCapacity(capacity int) Option {
	return func(q *Queue) {
		q.capacity = capacity
	}
}

// WithObserver attaches an activity observer
func WithObserver(o Observer) Option {
	return func(q *Queue) {
		q.observer = o
	}
}

// WithLogger sets the queue logger
func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger.With().Str("component", "queue").Logger()
	}
}

// New creates a queue. Call Run to start draining it.
func New(opts ...Option) *Queue {
	q := &Queue{
		interval: DefaultInterval,
		capacity: DefaultCapacity,
		observer: nopObserver{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.interval <= 0 {
		q.interval = DefaultInterval
	}
	if q.capacity <= 0 {
		q.capacity = DefaultCapacity
	}
	return q
}

// Submit appends an action to the tail of the queue
func (q *Queue) Submit(action Action) (*Future, error) {
	return q.SubmitContext(context.Background(), action)
}

// SubmitContext is like Submit but ties the item to ctx. Once ctx is done the
// item is dropped without running and its future fails with ctx's error.
func (q *Queue) SubmitContext(ctx context.Context, action Action) (*Future, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if len(q.items) >= q.capacity {
		return nil, ErrQueueFull
	}

	it := &item{ctx: ctx, action: action, future: newFuture()}
	q.items = append(q.items, it)
	q.observer.ObserveDepth(len(q.items))
	return it.future, nil
}

// Len returns the number of pending items
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Run drains the queue until ctx is cancelled. Pending items then fail with
// ErrQueueClosed and further submissions are rejected.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return errors.New("request queue already running")
	}
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.running = true
	q.mu.Unlock()

	// The timer is rearmed only after tick returns, so a slow action still
	// leaves a full interval before the next one starts.
	timer := time.NewTimer(q.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			q.close()
			return ctx.Err()
		case <-timer.C:
			q.tick(ctx)
			timer.Reset(q.interval)
		}
	}
}

// pop removes and returns the first item whose context is still live. Items
// abandoned by their submitter are failed on the way.
func (q *Queue) pop() *item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) > 0 {
		it := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		if err := it.ctx.Err(); err != nil {
			it.future.resolve(err)
			continue
		}
		return it
	}
	return nil
}

// tick pops the head item, if any, and runs it
func (q *Queue) tick(ctx context.Context) {
	it := q.pop()
	if it == nil {
		return
	}

	actx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(it.ctx, cancel)
	q.observer.ObserveAttempt()
	err := it.action(actx)
	stop()
	cancel()

	if err == nil {
		it.future.resolve(nil)
		q.observer.ObserveDepth(q.Len())
		return
	}

	if cerr := it.ctx.Err(); cerr != nil {
		q.observer.ObserveDepth(q.Len())
		it.future.resolve(cerr)
		return
	}

	it.tries++
	if it.tries > MaxRetries {
		q.observer.ObserveExhausted()
		q.observer.ObserveDepth(q.Len())
		q.logger.Warn().Err(err).Int("attempts", it.tries).Msg("request failed, giving up")
		it.future.resolve(fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, it.tries, err))
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		it.future.resolve(fmt.Errorf("%w: %w", ErrQueueClosed, err))
		return
	}
	q.items = append(q.items, it)
	depth := len(q.items)
	q.mu.Unlock()

	q.observer.ObserveRetry()
	q.observer.ObserveDepth(depth)
	q.logger.Debug().Err(err).Int("attempt", it.tries).Int("depth", depth).Msg("request failed, requeued at tail")
}

func (q *Queue) close() {
	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.closed = true
	q.mu.Unlock()

	for _, it := range pending {
		it.future.resolve(ErrQueueClosed)
	}
	q.observer.ObserveDepth(0)
	if len(pending) > 0 {
		q.logger.Info().Int("dropped", len(pending)).Msg("request queue closed with pending items")
	}
}

// Do submits fn and waits for its result
func Do[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero   T
		result T
	)
	future, err := q.SubmitContext(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		return zero, err
	}
	if err := future.Wait(ctx); err != nil {
		return zero, err
	}
	return result, nil
}
