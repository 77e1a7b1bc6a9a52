// Package rsp implements the GDB Remote Serial Protocol presentation layer:
// `$payload#checksum` packet framing, ack/no-ack negotiation, and dispatch
// of the packet types a bare-metal stub target needs to support (qSupported,
// qXfer for target.xml/memory-map, register and memory access, breakpoints,
// step and continue). It knows nothing about any particular chip or wire
// protocol to the device; all of that lives behind the Target interface, so
// internal/gdbserver supplies only device semantics.
//
// https://sourceware.org/gdb/onlinedocs/gdb/Remote-Protocol.html
// https://www.embecosm.com/appnotes/ean4/embecosm-howto-rsp-server-ean4-issue-2.html
package rsp

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
)

// Target is the device-specific half of a GDB RSP session. Resume and Step
// block until the target actually stops (breakpoint hit, single step
// complete, or an interrupt signal arrives) and return the GDB stop-reply
// body (e.g. "S05"), without the leading '$' or trailing checksum.
type Target interface {
	ArchitectureXML() string
	MemoryMapXML() string

	ReadRegister(num int) ([]byte, error)
	ReadRegisters() ([]byte, error)
	WriteRegisters(data []byte) error

	ReadMemory(addr, length uint32) ([]byte, error)
	WriteMemory(addr uint32, data []byte) error

	// InsertBreakpoint and RemoveBreakpoint implement 'Z'/'z' packets. kind
	// follows the RSP convention: 0 software breakpoint, 1 hardware
	// breakpoint, 2-4 watchpoints.
	InsertBreakpoint(kind int, addr uint32, length uint32) error
	RemoveBreakpoint(kind int, addr uint32, length uint32) error

	Resume(interrupt <-chan struct{}) (stopReply string, err error)
	Step() (stopReply string, err error)
}

// Serve listens on addr, accepts a single GDB connection and handles it
// until the client disconnects, the way a bare-metal debug stub does: no
// second GDB session can race the first over the same target. It returns
// when that session ends, or on a listener error.
func Serve(addr string, target Target, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Info("rsp: listening", "addr", addr)

	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	log.Info("rsp: gdb connected", "remote", conn.RemoteAddr())
	err = handle(conn, target, log)
	log.Info("rsp: session ended", "error", err)
	return err
}

func handle(sock net.Conn, target Target, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	conn := bufio.NewReadWriter(bufio.NewReader(sock), bufio.NewWriter(sock))
	defer sock.Close()

	acks := true
	packets := make(chan string)
	go recvPackets(conn, packets)

	for packet := range packets {
		if packet == "" {
			continue
		}
		if acks {
			conn.WriteByte('+')
		}

		switch {
		case strings.HasPrefix(packet, "qSupported:"):
			sendPacket(conn, "PacketSize=3fff;qXfer:memory-map:read+;qXfer:features:read+;QStartNoAckMode+")

		case packet == "QStartNoAckMode":
			sendPacket(conn, "OK")
			acks = false

		case packet == "Hg0":
			sendPacket(conn, "OK")

		case strings.HasPrefix(packet, "qXfer:"):
			handleQXfer(conn, packet, target)

		case strings.HasPrefix(packet, "qSymbol"):
			sendPacket(conn, "OK")

		case packet == "qfThreadInfo":
			sendPacket(conn, "l")

		case packet == "Hc-1" || packet == "Hc0":
			sendPacket(conn, "OK")

		case packet == "?":
			sendPacket(conn, "S05")

		case len(packet) > 0 && packet[0] == 'p':
			handleReadRegister(conn, packet, target)

		case packet == "g":
			handleReadRegisters(conn, target)

		case len(packet) > 0 && packet[0] == 'G':
			handleWriteRegisters(conn, packet, target)

		case len(packet) > 0 && packet[0] == 'm':
			handleReadMemory(conn, packet, target)

		case len(packet) > 0 && packet[0] == 'M':
			handleWriteMemory(conn, packet, target)

		case packet == "c":
			handleContinue(conn, packets, target, log)

		case packet == "s":
			handleStep(conn, target)

		case len(packet) > 0 && (packet[0] == 'Z' || packet[0] == 'z'):
			handleBreakpoint(conn, packet, target)

		default:
			sendPacket(conn, "")
		}

		conn.Flush()
	}
	return nil
}

func handleQXfer(conn *bufio.ReadWriter, packet string, target Target) {
	parts := strings.Split(packet[len("qXfer:"):], ":")
	if len(parts) != 4 {
		sendPacket(conn, "")
		return
	}
	var offset, length int
	if _, err := fmt.Sscanf(parts[3], "%x,%x", &offset, &length); err != nil || offset != 0 {
		sendPacket(conn, "")
		return
	}

	var data string
	switch {
	case strings.HasPrefix(packet, "qXfer:features:read:target.xml:"):
		data = target.ArchitectureXML()
	case strings.HasPrefix(packet, "qXfer:memory-map:read::"):
		data = target.MemoryMapXML()
	default:
		sendPacket(conn, "")
		return
	}
	sendPacket(conn, "l"+data)
}

func handleReadRegister(conn *bufio.ReadWriter, packet string, target Target) {
	var num int
	if _, err := fmt.Sscanf(packet[1:], "%x", &num); err != nil {
		sendPacket(conn, "")
		return
	}
	data, err := target.ReadRegister(num)
	if err != nil {
		sendPacket(conn, "E00")
		return
	}
	sendPacket(conn, hex.EncodeToString(data))
}

func handleReadRegisters(conn *bufio.ReadWriter, target Target) {
	data, err := target.ReadRegisters()
	if err != nil {
		sendPacket(conn, "E00")
		return
	}
	sendPacket(conn, hex.EncodeToString(data))
}

func handleWriteRegisters(conn *bufio.ReadWriter, packet string, target Target) {
	data, err := hex.DecodeString(packet[1:])
	if err != nil {
		sendPacket(conn, "E00")
		return
	}
	if err := target.WriteRegisters(data); err != nil {
		sendPacket(conn, "E00")
		return
	}
	sendPacket(conn, "OK")
}

func handleReadMemory(conn *bufio.ReadWriter, packet string, target Target) {
	var addr, length uint32
	if _, err := fmt.Sscanf(packet[1:], "%x,%x", &addr, &length); err != nil {
		sendPacket(conn, "")
		return
	}
	data, err := target.ReadMemory(addr, length)
	if err != nil {
		sendPacket(conn, "E00")
		return
	}
	sendPacket(conn, hex.EncodeToString(data))
}

func handleWriteMemory(conn *bufio.ReadWriter, packet string, target Target) {
	rest := packet[1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		sendPacket(conn, "E00")
		return
	}
	var addr, length uint32
	if _, err := fmt.Sscanf(rest[:colon], "%x,%x", &addr, &length); err != nil {
		sendPacket(conn, "E00")
		return
	}
	data, err := hex.DecodeString(rest[colon+1:])
	if err != nil {
		sendPacket(conn, "E00")
		return
	}
	if err := target.WriteMemory(addr, data); err != nil {
		sendPacket(conn, "E00")
		return
	}
	sendPacket(conn, "OK")
}

func handleContinue(conn *bufio.ReadWriter, packets <-chan string, target Target, log *slog.Logger) {
	interrupt := make(chan struct{}, 1)
	done := make(chan struct{})
	var stopReply string
	var resumeErr error

	go func() {
		defer close(done)
		stopReply, resumeErr = target.Resume(interrupt)
	}()

	for {
		select {
		case p, ok := <-packets:
			if ok && p == "\x03" {
				select {
				case interrupt <- struct{}{}:
				default:
				}
			} else if ok {
				log.Warn("rsp: unexpected packet during continue", "packet", p)
			}
		case <-done:
			if resumeErr != nil {
				sendPacket(conn, "E00")
				return
			}
			sendPacket(conn, stopReply)
			return
		}
	}
}

func handleStep(conn *bufio.ReadWriter, target Target) {
	stopReply, err := target.Step()
	if err != nil {
		sendPacket(conn, "E00")
		return
	}
	sendPacket(conn, stopReply)
}

func handleBreakpoint(conn *bufio.ReadWriter, packet string, target Target) {
	kind := int(packet[1] - '0')
	var addr, length uint32
	if _, err := fmt.Sscanf(packet[2:], ",%x,%x", &addr, &length); err != nil {
		sendPacket(conn, "E00")
		return
	}

	var err error
	if packet[0] == 'Z' {
		err = target.InsertBreakpoint(kind, addr, length)
	} else {
		err = target.RemoveBreakpoint(kind, addr, length)
	}
	if err != nil {
		sendPacket(conn, "E00")
		return
	}
	sendPacket(conn, "OK")
}

func recvPackets(conn *bufio.ReadWriter, packets chan<- string) {
	defer close(packets)
	for {
		packet, err := recvPacket(conn)
		if err != nil {
			if err != io.EOF {
				return
			}
			return
		}
		if packet == "" {
			continue
		}
		packets <- packet
	}
}

// recvPacket reads one RSP packet: "$payload#cs" where cs is a two-hex-digit
// checksum. A bare Ctrl-C byte (0x03) outside any packet is reported as the
// pseudo-packet "\x03".
func recvPacket(conn *bufio.ReadWriter) (string, error) {
	c, err := conn.ReadByte()
	if err != nil {
		return "", err
	}
	for c != '$' {
		if c == 3 {
			return "\x03", nil
		}
		c, err = conn.ReadByte()
		if err != nil {
			return "", err
		}
	}

	packet, err := conn.ReadString('#')
	if err != nil {
		return "", err
	}
	c1, err := conn.ReadByte()
	if err != nil {
		return "", err
	}
	c2, err := conn.ReadByte()
	if err != nil {
		return "", err
	}
	checksum := string([]byte{c1, c2})

	packet = packet[:len(packet)-1] // drop trailing '#'
	if len(packet) == 0 {
		return "", nil
	}
	if checksum != packetChecksum(packet) {
		return "", errors.New("rsp: checksum mismatch")
	}
	return packet, nil
}

func sendPacket(conn *bufio.ReadWriter, msg string) error {
	_, err := fmt.Fprintf(conn, "$%s#%s", msg, packetChecksum(msg))
	return err
}

// packetChecksum is the unsigned sum of every byte of the packet payload,
// modulo 256, per the RSP presentation layer.
func packetChecksum(msg string) string {
	var sum uint8
	for _, c := range []byte(msg) {
		sum += c
	}
	return fmt.Sprintf("%02x", sum)
}
