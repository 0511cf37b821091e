package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeFrameChecksum(t *testing.T) {
	frame, err := EncodeFrame(1, InstPing, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}, frame)
}

func TestEncodeFrameWithParams(t *testing.T) {
	frame, err := EncodeFrame(5, InstWrite, []byte{byte(RegTorqueEnable.Addr), 1})
	require.NoError(t, err)
	require.Equal(t, byte(0xFF), frame[0])
	require.Equal(t, byte(0xFF), frame[1])
	require.Equal(t, byte(5), frame[2])
	require.Equal(t, byte(4), frame[3]) // len(params)+2 = 2+2
	require.Equal(t, byte(InstWrite), frame[4])

	var sum byte
	for i := 2; i < len(frame)-1; i++ {
		sum += frame[i]
	}
	require.Equal(t, ^sum, frame[len(frame)-1])
}

func TestEncodeFrameRejectsOversizedParams(t *testing.T) {
	_, err := EncodeFrame(1, InstWrite, make([]byte, maxFrameBody+1))
	require.Error(t, err)
}

func TestDecodeReplyRoundTrip(t *testing.T) {
	reply := []byte{0xFF, 0xFF, 0x01, 0x04, 0x00, 0x34, 0x12, 0x00}
	checksum := byte(0)
	for i := 2; i < len(reply)-1; i++ {
		checksum += reply[i]
	}
	reply[len(reply)-1] = ^checksum

	decoded, err := DecodeReply(reply)
	require.NoError(t, err)
	require.Equal(t, byte(1), decoded.ID)
	require.Equal(t, byte(0), decoded.Error)
	require.Equal(t, []byte{0x34, 0x12}, decoded.Params)
}

func TestDecodeReplyBadChecksum(t *testing.T) {
	reply := []byte{0xFF, 0xFF, 0x01, 0x04, 0x00, 0x34, 0x12, 0x00}
	_, err := DecodeReply(reply)
	require.ErrorIs(t, err, ErrBadChecksum)
}

func TestDecodeReplyShort(t *testing.T) {
	_, err := DecodeReply([]byte{0xFF, 0xFF, 0x01})
	require.ErrorIs(t, err, ErrShortReply)
}

func TestDecodeReplyBadHeader(t *testing.T) {
	_, err := DecodeReply([]byte{0x00, 0xFF, 0x01, 0x02, 0x00, 0x00})
	require.ErrorIs(t, err, ErrBadHeader)
}

func TestClassifyReadError(t *testing.T) {
	require.Equal(t, RxCorrupt, ClassifyReadError(ErrBadChecksum))
	require.Equal(t, RxCorrupt, ClassifyReadError(ErrBadHeader))
	require.Equal(t, RxTimeout, ClassifyReadError(ErrShortReply))
}
