// Package task runs named goroutines with cooperative cancellation.
//
// Every task owns a context derived from the manager's context, so a single task can be
// stopped and joined with StopTask while the others keep running. Panics raised by task
// functions are recovered and logged.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-ivi/logger"
)

var (
	// ErrStopped is returned when a task is started on a stopped manager.
	ErrStopped = errors.New("task: manager stopped")
	// ErrTaskExists is returned when a task with the same name is already running.
	ErrTaskExists = errors.New("task: task already exists")
	// ErrTaskNotFound is returned by StopTask for an unknown name.
	ErrTaskNotFound = errors.New("task: task not found")
)

// Func is the body of a looping task. It should return true to run again, or false to stop the goroutine.
// ctx is canceled when the task or its manager is stopped.
type Func func(ctx context.Context) bool

// Manager manages the lifecycle of goroutines (tasks).
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//
//	_ = mgr.StartInterval("poll", func(ctx context.Context) bool {
//	    // ... poll logic ...
//	    return true
//	}, 100*time.Millisecond, false)
//
//	// stop and join one task
//	_ = mgr.StopTask("poll")
//
//	// stop everything
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	tasks  *xsync.MapOf[string, *handle]
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new Manager with the given context as the parent context and logger.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{
		pctx:   ctx,
		logger: l,
		tasks:  xsync.NewMapOf[string, *handle](),
	}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

func (mgr *Manager) getContext() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a new goroutine that calls fn repeatedly until it returns false or the task is stopped.
func (mgr *Manager) Start(name string, fn Func) error {
	mgr.logger.Debug("start task", "name", name)

	return mgr.spawn(name, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if !mgr.callWithRecover(name, ctx, fn) {
					return
				}
			}
		}
	})
}

// StartInterval starts a new goroutine that executes fn at the specified interval.
// If runNow is true, fn is executed once on the new goroutine before the first tick.
func (mgr *Manager) StartInterval(name string, fn Func, interval time.Duration, runNow bool) error {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval, "runNow", runNow)

	if interval <= 0 {
		return fmt.Errorf("task: invalid interval: %v", interval)
	}

	return mgr.spawn(name, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if runNow && !mgr.callWithRecover(name, ctx, fn) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.callWithRecover(name, ctx, fn) {
					return
				}
			}
		}
	})
}

// StartConsumer starts a goroutine that passes every value received from ch to fn.
// The goroutine ends when ch is closed, fn returns false, or the task is stopped.
func StartConsumer[T any](mgr *Manager, name string, ch <-chan T, fn func(ctx context.Context, v T) bool) error {
	mgr.logger.Debug("start consumer task", "name", name)

	if ch == nil {
		return fmt.Errorf("task: input channel of %s is nil", name)
	}

	return mgr.spawn(name, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					mgr.logger.Debug("input channel closed", "name", name)
					return
				}
				if !mgr.callWithRecover(name, ctx, func(ctx context.Context) bool { return fn(ctx, v) }) {
					return
				}
			}
		}
	})
}

// StopTask cancels the named task and waits for its goroutine to return.
//
// It must not be called from inside the task being stopped.
func (mgr *Manager) StopTask(name string) error {
	h, ok := mgr.tasks.LoadAndDelete(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}

	h.cancel()
	<-h.done

	return nil
}

// Running reports whether a task with the given name is running.
func (mgr *Manager) Running(name string) bool {
	_, ok := mgr.tasks.Load(name)
	return ok
}

// Stop signals all running goroutines.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for all goroutines to terminate, then re-arms the manager so new tasks can be started.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) spawn(name string, body func(ctx context.Context)) error {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	parent := mgr.getContext()
	if parent.Err() != nil {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(parent)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	if _, loaded := mgr.tasks.LoadOrStore(name, h); loaded {
		cancel()
		return fmt.Errorf("%w: %s", ErrTaskExists, name)
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			cancel()
			mgr.tasks.Compute(name, func(old *handle, loaded bool) (*handle, bool) {
				// another task may have reused the name after StopTask
				return old, !loaded || old == h
			})
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
			close(h.done)
			mgr.wg.Done()
		}()

		body(ctx)
	}()

	return nil
}

func (mgr *Manager) callWithRecover(name string, ctx context.Context, fn Func) (ok bool) { //nolint:revive
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			ok = true
		}
	}()

	return fn(ctx)
}
