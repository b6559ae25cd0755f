package concurrency

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"context"
	"sync"
)

// OwnerLoop is the single goroutine allowed to mutate world state.
// Tasks posted to it run one at a time in submission order.
type OwnerLoop struct {
	tasks   chan func()
	stopped chan struct{}
	once    sync.Once
	logger  core.ILogger
}

// NewOwnerLoop creates an owner loop with the given queue size
func NewOwnerLoop(queueSize int, logger core.ILogger) *OwnerLoop {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &OwnerLoop{
		tasks:   make(chan func(), queueSize),
		stopped: make(chan struct{}),
		logger:  logger.WithField("component", "owner_loop"),
	}
}

// Run drains the queue until ctx is done or Stop is called
func (o *OwnerLoop) Run(ctx context.Context) error {
	o.logger.Info("Owner loop started")
	defer o.logger.Info("Owner loop stopped")
	defer o.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.stopped:
			return nil
		case task := <-o.tasks:
			o.execute(task)
		}
	}
}

func (o *OwnerLoop) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Owner task panic recovered", "panic", r)
		}
	}()
	task()
}

// Post enqueues a task without waiting for it
func (o *OwnerLoop) Post(task func()) error {
	select {
	case <-o.stopped:
		return apperrors.ErrOwnerLoopStopped
	default:
	}
	select {
	case o.tasks <- task:
		return nil
	case <-o.stopped:
		return apperrors.ErrOwnerLoopStopped
	}
}

// Call runs fn on the owner loop and waits for it. Must not be invoked from the loop itself.
func (o *OwnerLoop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := o.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.stopped:
		return apperrors.ErrOwnerLoopStopped
	}
}

// Await posts start to the owner loop and waits until start, or a
// continuation it schedules, passes a value to done. Only the first value
// counts. Must not be invoked from the loop itself.
func Await[T any](ctx context.Context, o *OwnerLoop, start func(done func(T))) (T, error) {
	var zero T
	result := make(chan T, 1)
	err := o.Post(func() {
		start(func(v T) {
			select {
			case result <- v:
			default:
			}
		})
	})
	if err != nil {
		return zero, err
	}
	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-o.stopped:
		return zero, apperrors.ErrOwnerLoopStopped
	}
}

// Stop ends the loop. Queued tasks are dropped.
func (o *OwnerLoop) Stop() {
	o.once.Do(func() { close(o.stopped) })
}

// Async runs work on the pool and marshals its result back onto the owner loop.
// If the owner loop has stopped by the time work finishes, then is dropped.
func Async[T any](pool *WorkerPool, owner *OwnerLoop, work func() (T, error), then func(T, error)) error {
	return pool.Submit(func() {
		v, err := work()
		if postErr := owner.Post(func() { then(v, err) }); postErr != nil {
			owner.logger.Warn("Dropped async continuation", "error", postErr)
		}
	})
}
