package hostconn

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/esp-rs/esp-serial-dbg/internal/proto"
	"github.com/stretchr/testify/require"
)

// fakePort is an in-memory Port: Write appends to outbox, Read drains an
// inbox fed by the test (simulating target responses) and, like a serial
// port with a read timeout, returns 0 bytes when the inbox is empty so the
// reader loop can notice Shutdown. DTR/RTS are recorded.
type fakePort struct {
	mu     sync.Mutex
	inbox  []byte
	outbox bytes.Buffer
	dtr    []bool
	rts    []bool
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if len(p.inbox) > 0 {
		n := copy(buf, p.inbox[:1])
		p.inbox = p.inbox[1:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.Write(b)
}

func (p *fakePort) SetDTR(v bool) error { p.mu.Lock(); p.dtr = append(p.dtr, v); p.mu.Unlock(); return nil }
func (p *fakePort) SetRTS(v bool) error { p.mu.Lock(); p.rts = append(p.rts, v); p.mu.Unlock(); return nil }

func (p *fakePort) feed(b []byte) {
	p.mu.Lock()
	p.inbox = append(p.inbox, b...)
	p.mu.Unlock()
}

func TestHelloRoundTrip(t *testing.T) {
	port := &fakePort{}
	conn := New(port, nil)
	conn.Start(nil)
	defer conn.Shutdown()

	go func() {
		time.Sleep(10 * time.Millisecond)
		port.feed(proto.Encode(proto.RespHello, []byte{3, 0}))
	}()

	chip, ver, err := conn.Hello(time.Second)
	require.NoError(t, err)
	require.Equal(t, byte(3), chip)
	require.Equal(t, byte(0), ver)
}

func TestHelloTimesOutWithoutResponse(t *testing.T) {
	port := &fakePort{}
	conn := New(port, nil)
	conn.Start(nil)
	defer conn.Shutdown()

	_, _, err := conn.Hello(20 * time.Millisecond)
	require.Error(t, err)
}

func TestStdoutPassthroughRespectsMute(t *testing.T) {
	port := &fakePort{}
	var got []byte
	conn := New(port, nil)
	conn.Start(func(b byte) { got = append(got, b) })
	defer conn.Shutdown()

	port.feed([]byte("hi"))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []byte("hi"), got)

	conn.SetMuted(true)
	port.feed([]byte("silent"))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []byte("hi"), got)
}

func TestResetTargetPulsesDTRThenRTS(t *testing.T) {
	port := &fakePort{}
	conn := New(port, nil)
	conn.Start(nil)
	defer conn.Shutdown()

	require.NoError(t, conn.ResetTarget())
	require.Equal(t, []bool{false}, port.dtr)
	require.Equal(t, []bool{true, false}, port.rts)
}

func TestHitBreakpointDoesNotBlockOrdinaryResponses(t *testing.T) {
	port := &fakePort{}
	conn := New(port, nil)
	conn.Start(nil)
	defer conn.Shutdown()

	port.feed(proto.Encode(proto.RespHitBreakpoint, []byte{1, 2, 3, 4}))
	port.feed(proto.Encode(proto.RespAck, nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Resume(ctx))

	msg, ok := conn.PendingHitBreakpoint()
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, msg.Registers)
}

var _ io.ReadWriter = (*fakePort)(nil)
