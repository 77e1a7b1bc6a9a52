package target

import (
	"bytes"
	"io"
	"testing"

	"github.com/esp-rs/esp-serial-dbg/internal/proto"
	"github.com/stretchr/testify/require"
)

type fakeMemory struct {
	words map[uint32]uint32
}

func newFakeMemory() *fakeMemory { return &fakeMemory{words: map[uint32]uint32{}} }

func (m *fakeMemory) ReadWord(addr uint32) uint32     { return m.words[addr] }
func (m *fakeMemory) WriteWord(addr uint32, w uint32) { m.words[addr] = w }

type fakeBreakpoints struct {
	set   map[uint8]uint32
}

func newFakeBreakpoints() *fakeBreakpoints { return &fakeBreakpoints{set: map[uint8]uint32{}} }

func (b *fakeBreakpoints) Set(id uint8, addr uint32) error { b.set[id] = addr; return nil }
func (b *fakeBreakpoints) Clear(id uint8) error            { delete(b.set, id); return nil }

type fakeRegisters struct{ snapshot []byte }

func (r fakeRegisters) Snapshot() []byte { return r.snapshot }

// fakeLink is an in-memory duplex pipe: Serve reads from in, writes land in
// out.
type fakeLink struct {
	in  *bytes.Reader
	out *bytes.Buffer
}

func (f *fakeLink) ReadByte() (byte, error) { return f.in.ReadByte() }
func (f *fakeLink) Write(p []byte) (int, error) {
	return f.out.Write(p)
}

func TestReadMemAlignsLengthUp(t *testing.T) {
	mem := newFakeMemory()
	mem.WriteWord(0x100, 0xAABBCCDD)
	mem.WriteWord(0x104, 0x11223344)

	link := &fakeLink{out: &bytes.Buffer{}}
	s := NewStub(byte(0), mem, newFakeBreakpoints(), fakeRegisters{}, link)

	payload := make([]byte, 8)
	payload[0], payload[1], payload[2], payload[3] = 0x00, 0x01, 0x00, 0x00 // addr=0x100
	payload[4] = 5                                                          // length=5, rounds up to 8
	s.handleReadMem(payload)

	got := link.out.Bytes()
	require.Equal(t, proto.Start, got[0])
	require.Equal(t, proto.RespReadMem, got[1])
	frameLen := 5 + 8
	require.EqualValues(t, frameLen, int(got[2])|int(got[3])<<8|int(got[4])<<16|int(got[5])<<24)
	payloadBytes := got[6 : 6+8]
	require.Equal(t, []byte{0xDD, 0xCC, 0xBB, 0xAA, 0x44, 0x33, 0x22, 0x11}, payloadBytes)
}

func TestWriteMemWordStride(t *testing.T) {
	mem := newFakeMemory()
	link := &fakeLink{out: &bytes.Buffer{}}
	s := NewStub(byte(0), mem, newFakeBreakpoints(), fakeRegisters{}, link)

	payload := append([]byte{0x00, 0x02, 0x00, 0x00}, []byte{0xEF, 0xBE, 0xAD, 0xDE}...)
	s.handleWriteMem(payload)

	require.Equal(t, uint32(0xDEADBEEF), mem.ReadWord(0x200))
}

func TestSetAndClearBreakpointDelegates(t *testing.T) {
	bp := newFakeBreakpoints()
	link := &fakeLink{out: &bytes.Buffer{}}
	s := NewStub(byte(0), newFakeMemory(), bp, fakeRegisters{}, link)

	s.handleSetBP([]byte{3, 0x00, 0x10, 0x00, 0x42})
	require.Equal(t, uint32(0x42001000), bp.set[3])

	s.handleClearBP([]byte{3})
	_, ok := bp.set[3]
	require.False(t, ok)
}

func TestHelloIncludesChipTagAndProtocolVersion(t *testing.T) {
	link := &fakeLink{out: &bytes.Buffer{}}
	s := NewStub(byte(2), newFakeMemory(), newFakeBreakpoints(), fakeRegisters{}, link)
	s.handleHello()

	got := link.out.Bytes()
	require.Equal(t, proto.RespHello, got[1])
	require.Equal(t, byte(2), got[6])
	require.Equal(t, byte(0), got[7])
}

func TestHandleBreakEntersHaltLoopUntilResume(t *testing.T) {
	snap := []byte{1, 2, 3, 4}
	resumeFrame := proto.Encode(proto.CmdResume, nil)
	link := &fakeLink{in: bytes.NewReader(resumeFrame), out: &bytes.Buffer{}}
	s := NewStub(byte(0), newFakeMemory(), newFakeBreakpoints(), fakeRegisters{snapshot: snap}, link)

	s.HandleBreak()

	require.False(t, s.Halted())
	out := link.out.Bytes()
	require.Equal(t, proto.RespHitBreakpoint, out[1])
	require.Equal(t, snap, out[6:6+len(snap)])

	var ackFrame []byte
	d := proto.NewDecoder()
	for _, b := range out[6+len(snap):] {
		d.Feed(b, func(byte) {}, func(f proto.Frame) {
			ackFrame = proto.Encode(f.Type, f.Payload)
		})
	}
	require.NotNil(t, ackFrame)
}

func TestUnknownCommandIgnored(t *testing.T) {
	link := &fakeLink{out: &bytes.Buffer{}}
	s := NewStub(byte(0), newFakeMemory(), newFakeBreakpoints(), fakeRegisters{}, link)
	require.NotPanics(t, func() {
		s.dispatch(proto.Frame{Type: 0x77, Payload: nil})
	})
	require.Zero(t, link.out.Len())
}

var _ io.ByteReader = (*bytes.Reader)(nil)
