package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeAck(t *testing.T) {
	got := Encode(RespAck, nil)
	require.Equal(t, []byte{0x02, 0x02, 0x05, 0x00, 0x00, 0x00, 0x03}, got)
}

func TestEncodeLengthInvariant(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7}
	got := Encode(CmdWriteMem, payload)
	require.Len(t, got, len(payload)+7)
}

func decodeAll(t *testing.T, input []byte) (stdout []byte, frames []Frame) {
	t.Helper()
	d := NewDecoder()
	for _, b := range input {
		d.Feed(b,
			func(c byte) { stdout = append(stdout, c) },
			func(f Frame) { frames = append(frames, f) },
		)
	}
	return
}

func TestDecodeMinimalAck(t *testing.T) {
	_, frames := decodeAll(t, []byte{0x02, 0x02, 0x05, 0x00, 0x00, 0x00, 0x03})
	require.Len(t, frames, 1)
	require.Equal(t, RespAck, frames[0].Type)
	require.Empty(t, frames[0].Payload)
}

func TestDecodeHelloRoundTrip(t *testing.T) {
	_, frames := decodeAll(t, []byte{0x02, 0x03, 0x0A, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x03})
	require.Len(t, frames, 1)
	f := frames[0]
	require.Equal(t, RespHello, f.Type)
	require.Equal(t, []byte{0x04, 0x00, 0x00, 0x00, 0x00}, f.Payload)
}

func TestDecodeInterleavedStdoutAndFrames(t *testing.T) {
	var input []byte
	input = append(input, "hello "...)
	input = append(input, Encode(RespAck, nil)...)
	input = append(input, "world\n"...)
	input = append(input, Encode(RespReadMem, []byte{1, 2, 3, 4})...)

	stdout, frames := decodeAll(t, input)
	require.Equal(t, "hello world\n", string(stdout))
	require.Len(t, frames, 2)
	require.Equal(t, RespAck, frames[0].Type)
	require.Equal(t, RespReadMem, frames[1].Type)
	require.Equal(t, []byte{1, 2, 3, 4}, frames[1].Payload)
}

func TestEncodeDecodeRoundTripQuantified(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x00},
		{0xDE, 0xAD, 0xBE, 0xEF},
		make([]byte, 64),
	}
	for _, payload := range cases {
		f := Encode(CmdReadMem, payload)
		require.Equal(t, len(payload)+7, len(f))
		_, frames := decodeAll(t, f)
		require.Len(t, frames, 1)
		require.Equal(t, CmdReadMem, frames[0].Type)
		require.Equal(t, payload, frames[0].Payload)
	}
}
