package motion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/motioncore/stservoctl/bus"
	"github.com/motioncore/stservoctl/protocol"
)

// recordingBatchArbiter is a minimal Arbiter fake that records the Batcher's
// two call sites; every other method is answered by the embedded fakeArbiter.
type recordingBatchArbiter struct {
	fakeArbiter

	mu          sync.Mutex
	posCalls    [][]bus.PositionEntry
	spdCalls    [][]bus.SpeedEntry
	dropIDs     map[byte]bool
	failAllSync bool
}

func newRecordingBatchArbiter() *recordingBatchArbiter {
	return &recordingBatchArbiter{dropIDs: map[byte]bool{}}
}

func (r *recordingBatchArbiter) SyncWritePositions(ctx context.Context, entries []bus.PositionEntry) bus.SyncWriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posCalls = append(r.posCalls, entries)
	if r.failAllSync {
		return bus.SyncWriteResult{Result: protocol.TxFail}
	}
	var included []byte
	for _, e := range entries {
		if r.dropIDs[e.ID] {
			continue
		}
		included = append(included, e.ID)
	}
	return bus.SyncWriteResult{Included: included, Result: protocol.Success}
}

func (r *recordingBatchArbiter) SyncWriteSpeeds(ctx context.Context, entries []bus.SpeedEntry) bus.SyncWriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spdCalls = append(r.spdCalls, entries)
	var included []byte
	for _, e := range entries {
		included = append(included, e.ID)
	}
	return bus.SyncWriteResult{Included: included, Result: protocol.Success}
}

func TestBatcherCoalescesConcurrentSubmissions(t *testing.T) {
	arb := newRecordingBatchArbiter()
	b := NewBatcher(arb)

	var wg sync.WaitGroup
	results := make([]bool, 3)
	ids := []byte{1, 7, 99}
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id byte) {
			defer wg.Done()
			results[i] = b.SubmitPosition(context.Background(), id, 1000, 500, 50)
		}(i, id)
	}
	wg.Wait()

	for _, ok := range results {
		require.True(t, ok)
	}

	arb.mu.Lock()
	defer arb.mu.Unlock()
	require.Len(t, arb.posCalls, 1, "concurrent submissions within the window should share one transmit")
	require.Len(t, arb.posCalls[0], 3)
}

func TestBatcherPartialMembershipFailsOnlyDroppedID(t *testing.T) {
	arb := newRecordingBatchArbiter()
	arb.dropIDs[99] = true
	b := NewBatcher(arb)

	var wg sync.WaitGroup
	results := make(map[byte]bool)
	var resultsMu sync.Mutex
	for _, id := range []byte{1, 7, 99} {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			ok := b.SubmitPosition(context.Background(), id, 1000, 500, 50)
			resultsMu.Lock()
			results[id] = ok
			resultsMu.Unlock()
		}(id)
	}
	wg.Wait()

	require.True(t, results[1])
	require.True(t, results[7])
	require.False(t, results[99])
}

func TestBatcherSequentialSubmissionsOpenSeparateWindows(t *testing.T) {
	arb := newRecordingBatchArbiter()
	b := NewBatcher(arb)

	require.True(t, b.SubmitPosition(context.Background(), 1, 1000, 500, 50))
	require.True(t, b.SubmitPosition(context.Background(), 1, 1100, 500, 50))

	arb.mu.Lock()
	defer arb.mu.Unlock()
	require.Len(t, arb.posCalls, 2, "submissions separated by more than the batch window flush independently")
}

func TestBatcherRotationSharesSpeedFrame(t *testing.T) {
	arb := newRecordingBatchArbiter()
	b := NewBatcher(arb)

	var wg sync.WaitGroup
	for _, id := range []byte{1, 2} {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			require.True(t, b.SubmitRotation(context.Background(), id, 300))
		}(id)
	}
	wg.Wait()

	arb.mu.Lock()
	defer arb.mu.Unlock()
	require.Len(t, arb.spdCalls, 1)
	require.Len(t, arb.spdCalls[0], 2)
}

func TestBatcherContextCancelUnblocksSubmit(t *testing.T) {
	arb := newRecordingBatchArbiter()
	arb.failAllSync = true
	b := NewBatcher(arb)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()

	ok := b.SubmitPosition(ctx, 1, 1000, 500, 50)
	require.False(t, ok)
}
