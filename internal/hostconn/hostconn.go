// Package hostconn implements the host side of the debug bridge (spec §4.4):
// the reader-loop goroutine that demultiplexes the serial link into target
// stdout and protocol frames, the FIFO of inbound device messages, and the
// synchronous request/response operations the CLI and GDB adapter call.
package hostconn

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/esp-rs/esp-serial-dbg/internal/proto"
)

// MessageKind discriminates a decoded device message.
type MessageKind int

const (
	MessageMemoryDump MessageKind = iota
	MessageHitBreakpoint
	MessageAck
	MessageHello
)

// DeviceMessage is one decoded response frame from the target (spec §4.4).
type DeviceMessage struct {
	Kind        MessageKind
	MemoryDump  []byte
	Registers   []byte
	Chip        byte
	ProtoVer    byte
}

// Port is the subset of go.bug.st/serial.Port that hostconn depends on,
// kept narrow so tests can substitute an in-memory pipe.
type Port interface {
	io.ReadWriter
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// Connection owns one serial link to a target stub. Exactly one goroutine
// (started by Start) reads from the port; all other access goes through
// Connection's methods, which serialize writes with a mutex.
type Connection struct {
	port Port
	log  *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	muted   bool
	queue   []DeviceMessage
	newMsg  chan struct{}

	shutdown chan struct{}
	done     chan struct{}
}

// New wraps an open Port. Call Start to begin the reader loop.
func New(port Port, log *slog.Logger) *Connection {
	if log == nil {
		log = slog.Default()
	}
	return &Connection{
		port:     port,
		log:      log,
		newMsg:   make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetMuted suppresses (or re-enables) passthrough of the target's plain
// stdout bytes to onStdout, used by the CLI while the user is typing a
// command (spec §4.8).
func (c *Connection) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

// Start launches the reader-loop goroutine. onStdout is called for every
// byte of target stdout while unmuted; it may be nil.
func (c *Connection) Start(onStdout func(byte)) {
	if onStdout == nil {
		onStdout = func(byte) {}
	}
	go c.readLoop(onStdout)
}

func (c *Connection) readLoop(onStdout func(byte)) {
	defer close(c.done)
	decoder := proto.NewDecoder()
	buf := make([]byte, 1)
	for {
		select {
		case <-c.shutdown:
			return
		default:
		}

		n, err := c.port.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Error("hostconn: read failed", "error", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		decoder.Feed(buf[0],
			func(b byte) {
				c.mu.Lock()
				muted := c.muted
				c.mu.Unlock()
				if !muted {
					onStdout(b)
				}
			},
			func(f proto.Frame) {
				c.enqueue(decodeFrame(f))
			},
		)
	}
}

func decodeFrame(f proto.Frame) DeviceMessage {
	switch f.Type {
	case proto.RespReadMem:
		return DeviceMessage{Kind: MessageMemoryDump, MemoryDump: f.Payload}
	case proto.RespHitBreakpoint:
		return DeviceMessage{Kind: MessageHitBreakpoint, Registers: f.Payload}
	case proto.RespAck:
		return DeviceMessage{Kind: MessageAck}
	case proto.RespHello:
		var chip, ver byte
		if len(f.Payload) >= 2 {
			chip, ver = f.Payload[0], f.Payload[1]
		}
		return DeviceMessage{Kind: MessageHello, Chip: chip, ProtoVer: ver}
	default:
		return DeviceMessage{Kind: MessageAck}
	}
}

// enqueue appends to the message queue in arrival order. Messages are
// consumed strictly FIFO (the original implementation popped from the end
// of a Vec, which is LIFO and can reorder messages under load; we preserve
// arrival order instead, matching the concurrency contract).
func (c *Connection) enqueue(m DeviceMessage) {
	c.mu.Lock()
	c.queue = append(c.queue, m)
	c.mu.Unlock()
	select {
	case c.newMsg <- struct{}{}:
	default:
	}
}

// nextMessage blocks until a message of the given kind is in the queue,
// removes the oldest such message, and returns it, or returns ctx.Err() on
// timeout.
// Messages of other kinds already queued ahead of it are left in place:
// HitBreakpoint notifications are delivered out of band from ordinary
// command responses (spec §4.4's "HitBreakpoint side channel").
func (c *Connection) nextMessage(ctx context.Context, kind MessageKind) (DeviceMessage, error) {
	for {
		c.mu.Lock()
		for i, m := range c.queue {
			if m.Kind == kind {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				c.mu.Unlock()
				return m, nil
			}
		}
		c.mu.Unlock()

		select {
		case <-c.newMsg:
		case <-ctx.Done():
			return DeviceMessage{}, ctx.Err()
		}
	}
}

// WaitHitBreakpoint blocks until a HitBreakpoint message arrives (or ctx is
// done), removing it from the queue. Used by the GDB adapter's resume/step
// implementations, which have nothing useful to do until the target stops
// again.
func (c *Connection) WaitHitBreakpoint(ctx context.Context) (DeviceMessage, error) {
	return c.nextMessage(ctx, MessageHitBreakpoint)
}

// PendingHitBreakpoint returns the oldest queued HitBreakpoint message, if
// any, removing it from the queue, without blocking.
func (c *Connection) PendingHitBreakpoint() (DeviceMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.queue {
		if m.Kind == MessageHitBreakpoint {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return m, true
		}
	}
	return DeviceMessage{}, false
}

func (c *Connection) send(typ byte, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.port.Write(proto.Encode(typ, payload))
	return err
}

// Hello sends CMD_HELLO and waits up to timeout for the RESP_HELLO reply.
func (c *Connection) Hello(timeout time.Duration) (chipTag byte, protoVer byte, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.send(proto.CmdHello, nil); err != nil {
		return 0, 0, err
	}
	msg, err := c.nextMessage(ctx, MessageHello)
	if err != nil {
		return 0, 0, fmt.Errorf("hostconn: hello: %w", err)
	}
	return msg.Chip, msg.ProtoVer, nil
}

// ReadMemory issues CMD_READ_MEM and returns the aligned memory dump.
func (c *Connection) ReadMemory(ctx context.Context, addr, length uint32) ([]byte, error) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], addr)
	binary.LittleEndian.PutUint32(payload[4:8], length)
	if err := c.send(proto.CmdReadMem, payload); err != nil {
		return nil, err
	}
	msg, err := c.nextMessage(ctx, MessageMemoryDump)
	if err != nil {
		return nil, fmt.Errorf("hostconn: read memory: %w", err)
	}
	return msg.MemoryDump, nil
}

// WriteMemory issues CMD_WRITE_MEM and waits for the stub's acknowledgement
// (spec §4.4: every command but READ_MEM/HELLO is followed by exactly one
// Ack before the next command is issued).
func (c *Connection) WriteMemory(ctx context.Context, addr uint32, data []byte) error {
	payload := make([]byte, 4, 4+len(data))
	binary.LittleEndian.PutUint32(payload, addr)
	payload = append(payload, data...)
	if err := c.send(proto.CmdWriteMem, payload); err != nil {
		return err
	}
	_, err := c.nextMessage(ctx, MessageAck)
	return err
}

// SetBreakpoint issues CMD_SET_BP for hardware breakpoint slot id and waits
// for the stub's acknowledgement.
func (c *Connection) SetBreakpoint(ctx context.Context, id uint8, addr uint32) error {
	payload := make([]byte, 5)
	payload[0] = id
	binary.LittleEndian.PutUint32(payload[1:5], addr)
	if err := c.send(proto.CmdSetBP, payload); err != nil {
		return err
	}
	_, err := c.nextMessage(ctx, MessageAck)
	return err
}

// ClearBreakpoint issues CMD_CLEAR_BP for hardware breakpoint slot id and
// waits for the stub's acknowledgement.
func (c *Connection) ClearBreakpoint(ctx context.Context, id uint8) error {
	if err := c.send(proto.CmdClearBP, []byte{id}); err != nil {
		return err
	}
	_, err := c.nextMessage(ctx, MessageAck)
	return err
}

// Resume issues CMD_RESUME and waits for the stub's acknowledgement.
func (c *Connection) Resume(ctx context.Context) error {
	if err := c.send(proto.CmdResume, nil); err != nil {
		return err
	}
	_, err := c.nextMessage(ctx, MessageAck)
	return err
}

// BreakExecution issues CMD_BREAK without waiting for a response; the
// resulting HitBreakpoint arrives asynchronously on the queue.
func (c *Connection) BreakExecution() error {
	return c.send(proto.CmdBreak, nil)
}

// ResetTarget pulses DTR low then RTS high then low, the same reset
// sequence ESP-family boot ROMs expect from esptool-style flashing tools
// (spec §4.4).
func (c *Connection) ResetTarget() error {
	if err := c.port.SetDTR(false); err != nil {
		return err
	}
	if err := c.port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return c.port.SetRTS(false)
}

// Shutdown stops the reader loop and waits for it to exit.
func (c *Connection) Shutdown() {
	close(c.shutdown)
	<-c.done
}
