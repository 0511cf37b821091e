package operation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockPowered struct {
	mu        sync.Mutex
	powered   bool
	stopCount int
	stopErr   error
}

func (m *mockPowered) IsPowered(ctx context.Context, extra map[string]interface{}) (bool, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.powered {
		return true, 1, nil
	}
	return false, 0, nil
}

func (m *mockPowered) setPowered(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powered = v
}

func (m *mockPowered) stop(ctx context.Context, extra map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCount++
	return m.stopErr
}

func TestNestedOperationDoesNotCancelParent(t *testing.T) {
	som := SingleOperationManager{}
	ctx1, close1 := som.New(context.Background())
	defer close1()

	_, close2 := som.New(ctx1)
	defer close2()

	require.NoError(t, ctx1.Err())
}

func TestNewCancelsPreviousOperation(t *testing.T) {
	som := SingleOperationManager{}
	ctx1, close1 := som.New(context.Background())
	defer close1()

	require.NoError(t, ctx1.Err())
	_, close2 := som.New(context.Background())
	defer close2()

	require.Error(t, ctx1.Err())
}

func TestCancelRunningDoesNotCancelSelf(t *testing.T) {
	som := SingleOperationManager{}
	ctx, done := som.New(context.Background())
	defer done()

	som.CancelRunning(ctx)
	require.NoError(t, ctx.Err())
}

func TestCancelRunningCancelsOthers(t *testing.T) {
	som := SingleOperationManager{}
	ctx, done := som.New(context.Background())
	defer done()

	som.CancelRunning(context.Background())
	require.Error(t, ctx.Err())
}

func TestOpRunning(t *testing.T) {
	som := SingleOperationManager{}
	require.False(t, som.OpRunning())
	ctx, done := som.New(context.Background())
	require.True(t, som.OpRunning())
	_ = ctx
	done()
	require.False(t, som.OpRunning())
}

func TestNewTimedWaitOp(t *testing.T) {
	som := SingleOperationManager{}
	require.True(t, som.NewTimedWaitOp(context.Background(), time.Millisecond))
}

func TestNewTimedWaitOpSuperseded(t *testing.T) {
	som := SingleOperationManager{}
	var wg sync.WaitGroup
	wg.Add(1)
	result := true
	go func() {
		defer wg.Done()
		result = som.NewTimedWaitOp(context.Background(), 5*time.Second)
	}()

	for !som.OpRunning() {
		time.Sleep(time.Millisecond)
	}
	require.True(t, som.NewTimedWaitOp(context.Background(), time.Millisecond))
	wg.Wait()
	require.False(t, result)
}

func TestWaitForSuccess(t *testing.T) {
	som := SingleOperationManager{}
	attempts := 0
	err := som.WaitForSuccess(context.Background(), time.Millisecond, func(ctx context.Context) (bool, error) {
		attempts++
		return attempts >= 3, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWaitForSuccessError(t *testing.T) {
	som := SingleOperationManager{}
	boom := context.DeadlineExceeded
	err := som.WaitForSuccess(context.Background(), time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestWaitForSuccessCancelled(t *testing.T) {
	som := SingleOperationManager{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := som.WaitForSuccess(ctx, time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	require.Error(t, err)
}

func TestWaitTillNotPoweredReturnsWhenNotPowered(t *testing.T) {
	som := SingleOperationManager{}
	m := &mockPowered{powered: false}
	err := som.WaitTillNotPowered(context.Background(), time.Second, m, m.stop)
	require.NoError(t, err)
	require.Equal(t, 0, m.stopCount)
}

func TestWaitTillNotPoweredStopsOnCancel(t *testing.T) {
	som := SingleOperationManager{}
	m := &mockPowered{powered: true}
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	var retErr error
	go func() {
		defer wg.Done()
		retErr = som.WaitTillNotPowered(ctx, 5*time.Second, m, m.stop)
	}()

	// Give the wait loop a chance to observe the powered state at least once
	// before cancelling, so the cancellation path is exercised deterministically.
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	require.Error(t, retErr)
	require.Equal(t, 1, m.stopCount)
}

func TestWaitTillNotPoweredFoldsStopError(t *testing.T) {
	som := SingleOperationManager{}
	m := &mockPowered{powered: true, stopErr: context.DeadlineExceeded}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := som.WaitTillNotPowered(ctx, 5*time.Second, m, m.stop)
	require.Error(t, err)
	require.Contains(t, err.Error(), "context canceled")
	require.Contains(t, err.Error(), context.DeadlineExceeded.Error())
}
