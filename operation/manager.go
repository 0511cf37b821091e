// Package operation provides a bounded, cancelable single-in-flight-operation
// primitive. No other package of this module imports it; the controller
// façade bounds its worker joins with session.WorkerHandle.Joined.
package operation

import (
	"context"
	"sync"
	"time"
)

// Powered is satisfied by anything that can report whether it is still
// powered/moving and can be asked to Stop.
type Powered interface {
	IsPowered(ctx context.Context, extra map[string]interface{}) (bool, float64, error)
}

// StopFunc stops whatever WaitTillNotPowered is waiting on.
type StopFunc func(ctx context.Context, extra map[string]interface{}) error

// SingleOperationManager ensures that only one logical operation runs at a
// time for whatever it is embedded in (a single servo's worker, the bus
// arbiter, ...): starting a new operation cancels the context of whatever
// operation is currently running, without ever cancelling its own parent.
//
// The zero value is ready to use.
type SingleOperationManager struct {
	mu         sync.Mutex
	cancel     context.CancelFunc
	runningCtx context.Context
	running    bool
}

type somCtxKey struct{}

// New starts a new operation under ctx, cancelling any operation currently
// running under this manager. A ctx that already belongs to one of this
// manager's operations is returned as is, so a nested call never cancels its
// parent. The returned cleanup func must be deferred.
func (som *SingleOperationManager) New(ctx context.Context) (context.Context, func()) {
	if ctx.Value(somCtxKey{}) == som {
		return ctx, func() {}
	}
	som.mu.Lock()
	if som.cancel != nil {
		som.cancel()
	}
	newCtx, cancel := context.WithCancel(context.WithValue(ctx, somCtxKey{}, som))
	som.cancel = cancel
	som.runningCtx = newCtx
	som.running = true
	som.mu.Unlock()

	return newCtx, func() {
		som.mu.Lock()
		defer som.mu.Unlock()
		cancel()
		if som.runningCtx == newCtx {
			som.running = false
		}
	}
}

// OpRunning reports whether an operation is currently in flight.
func (som *SingleOperationManager) OpRunning() bool {
	som.mu.Lock()
	defer som.mu.Unlock()
	return som.running
}

// CancelRunning cancels the operation currently running under this manager,
// unless that operation is the one owning ctx — an operation never cancels
// itself this way.
func (som *SingleOperationManager) CancelRunning(ctx context.Context) {
	som.mu.Lock()
	defer som.mu.Unlock()
	if !som.running || som.cancel == nil {
		return
	}
	if som.runningCtx == ctx {
		return
	}
	som.cancel()
}

// NewTimedWaitOp starts an operation that lasts dur, returning true if it
// completed the full duration uninterrupted by a newer operation.
func (som *SingleOperationManager) NewTimedWaitOp(ctx context.Context, dur time.Duration) bool {
	ctx, done := som.New(ctx)
	defer done()
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// WaitForSuccess polls poll every interval until it returns true, returns a
// non-nil error, or ctx is cancelled.
func (som *SingleOperationManager) WaitForSuccess(
	ctx context.Context,
	interval time.Duration,
	poll func(ctx context.Context) (bool, error),
) error {
	ctx, done := som.New(ctx)
	defer done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := poll(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitTillNotPowered blocks until p reports not-powered, timeout elapses, or
// ctx is cancelled; on cancellation it calls stop and folds any stop error
// into the returned error.
func (som *SingleOperationManager) WaitTillNotPowered(
	ctx context.Context,
	timeout time.Duration,
	p Powered,
	stop StopFunc,
) error {
	ctx, done := som.New(ctx)
	defer done()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		powered, _, err := p.IsPowered(ctx, nil)
		if err != nil {
			return err
		}
		if !powered {
			return nil
		}
		if time.Now().After(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			stopErr := stop(context.Background(), nil)
			if stopErr != nil {
				return multierrJoin(ctx.Err(), stopErr)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func multierrJoin(ctxErr, stopErr error) error {
	return &joinedErr{ctxErr: ctxErr, stopErr: stopErr}
}

type joinedErr struct {
	ctxErr  error
	stopErr error
}

func (e *joinedErr) Error() string {
	return e.ctxErr.Error() + "; " + e.stopErr.Error()
}
