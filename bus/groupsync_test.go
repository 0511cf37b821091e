package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/motioncore/stservoctl/logging"
	"github.com/motioncore/stservoctl/protocol"
)

func TestSyncWritePositionsTransmitsOneFrame(t *testing.T) {
	port := &fakeSerialPort{}
	a := New(port, logging.NewTestLogger())

	result := a.SyncWritePositions(context.Background(), []PositionEntry{
		{ID: 1, Pos: 1000, Speed: 500, Acc: 50},
		{ID: 7, Pos: 3000, Speed: 500, Acc: 50},
	})

	require.True(t, result.Success())
	require.ElementsMatch(t, []byte{1, 7}, result.Included)
	require.Len(t, port.written, 1)
}

func TestSyncWritePositionsDropsOverflowingEntry(t *testing.T) {
	port := &fakeSerialPort{}
	a := New(port, logging.NewTestLogger())

	result := a.SyncWritePositions(context.Background(), []PositionEntry{
		{ID: 1, Pos: 1000, Speed: 500, Acc: 50},
		{ID: 99, Pos: protocol.PositionMax + 1, Speed: 500, Acc: 50},
	})

	require.True(t, result.Success())
	require.Equal(t, []byte{1}, result.Included)
}

func TestSyncWritePositionsAllOverflowingSkipsTransmit(t *testing.T) {
	port := &fakeSerialPort{}
	a := New(port, logging.NewTestLogger())

	result := a.SyncWritePositions(context.Background(), []PositionEntry{
		{ID: 99, Pos: protocol.PositionMax + 1, Speed: 500, Acc: 50},
	})

	require.False(t, result.Success())
	require.Empty(t, result.Included)
	require.Empty(t, port.written)
}

func TestSyncWriteSpeedsTransmitsSignedSpeeds(t *testing.T) {
	port := &fakeSerialPort{}
	a := New(port, logging.NewTestLogger())

	result := a.SyncWriteSpeeds(context.Background(), []SpeedEntry{
		{ID: 1, SignedSpeed: 300},
		{ID: 7, SignedSpeed: -300},
	})

	require.True(t, result.Success())
	require.ElementsMatch(t, []byte{1, 7}, result.Included)
	require.Len(t, port.written, 1)
}

func TestSyncWriteFailsClosedOnTransportError(t *testing.T) {
	port := &fakeSerialPort{failWrite: true}
	a := New(port, logging.NewTestLogger())

	result := a.SyncWritePositions(context.Background(), []PositionEntry{
		{ID: 1, Pos: 1000, Speed: 500, Acc: 50},
	})

	require.False(t, result.Success())
	require.NotEqual(t, protocol.Success, result.Result)
}
