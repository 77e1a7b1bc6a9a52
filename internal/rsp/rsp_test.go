package rsp

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPacketChecksumMatchesSpecExample(t *testing.T) {
	// "OK" -> 'O'(0x4f) + 'K'(0x4b) = 0x9a
	require.Equal(t, "9a", packetChecksum("OK"))
}

func TestSendRecvPacketRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serverRW := bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server))
	clientRW := bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client))

	go func() {
		sendPacket(serverRW, "S05")
		serverRW.Flush()
	}()

	got, err := recvPacket(clientRW)
	require.NoError(t, err)
	require.Equal(t, "S05", got)
}

func TestRecvPacketDetectsCtrlC(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serverRW := bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server))
	clientRW := bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client))

	go func() {
		serverRW.WriteByte(0x03)
		serverRW.Flush()
	}()

	got, err := recvPacket(clientRW)
	require.NoError(t, err)
	require.Equal(t, "\x03", got)
}

func TestRecvPacketRejectsBadChecksum(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serverRW := bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server))
	clientRW := bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client))

	go func() {
		fmt.Fprint(serverRW, "$OK#00")
		serverRW.Flush()
	}()

	_, err := recvPacket(clientRW)
	require.Error(t, err)
}

type fakeTarget struct {
	regs        []byte
	mem         map[uint32][]byte
	inserted    []int
	removed     []int
	resumeReply string
	stepReply   string
}

func (f *fakeTarget) ArchitectureXML() string { return "<target/>" }
func (f *fakeTarget) MemoryMapXML() string    { return "<memory-map/>" }

func (f *fakeTarget) ReadRegister(num int) ([]byte, error) { return []byte{0x2a, 0, 0, 0}, nil }
func (f *fakeTarget) ReadRegisters() ([]byte, error)       { return f.regs, nil }
func (f *fakeTarget) WriteRegisters(data []byte) error     { return nil }

func (f *fakeTarget) ReadMemory(addr, length uint32) ([]byte, error) { return f.mem[addr], nil }
func (f *fakeTarget) WriteMemory(addr uint32, data []byte) error {
	if f.mem == nil {
		f.mem = map[uint32][]byte{}
	}
	f.mem[addr] = data
	return nil
}

func (f *fakeTarget) InsertBreakpoint(kind int, addr uint32, length uint32) error {
	f.inserted = append(f.inserted, kind)
	return nil
}
func (f *fakeTarget) RemoveBreakpoint(kind int, addr uint32, length uint32) error {
	f.removed = append(f.removed, kind)
	return nil
}

func (f *fakeTarget) Resume(interrupt <-chan struct{}) (string, error) {
	<-interrupt
	return f.resumeReply, nil
}
func (f *fakeTarget) Step() (string, error) { return f.stepReply, nil }

func TestHandleReadRegistersPacket(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	target := &fakeTarget{regs: []byte{1, 2, 3, 4}, resumeReply: "S05", stepReply: "S05"}
	go handle(server, target, nil)

	clientRW := bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client))
	fmt.Fprintf(clientRW, "$g#%s", packetChecksum("g"))
	clientRW.Flush()

	clientRW.ReadByte() // '+' ack
	reply, err := recvPacket(clientRW)
	require.NoError(t, err)
	require.Equal(t, "01020304", reply)
}

func TestHandleContinueRespondsAfterInterrupt(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	target := &fakeTarget{resumeReply: "S05"}
	go handle(server, target, nil)

	clientRW := bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client))
	fmt.Fprintf(clientRW, "$c#%s", packetChecksum("c"))
	clientRW.Flush()
	clientRW.ReadByte() // ack

	time.Sleep(20 * time.Millisecond)
	clientRW.WriteByte(0x03)
	clientRW.Flush()

	reply, err := recvPacket(clientRW)
	require.NoError(t, err)
	require.Equal(t, "S05", reply)
}

func TestHandleBreakpointInsertAndRemove(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	target := &fakeTarget{}
	go handle(server, target, nil)

	clientRW := bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client))
	packet := "Z1,42000000,2"
	fmt.Fprintf(clientRW, "$%s#%s", packet, packetChecksum(packet))
	clientRW.Flush()
	clientRW.ReadByte()

	reply, err := recvPacket(clientRW)
	require.NoError(t, err)
	require.Equal(t, "OK", reply)
	require.Equal(t, []int{1}, target.inserted)

	packet = "z1,42000000,2"
	fmt.Fprintf(clientRW, "$%s#%s", packet, packetChecksum(packet))
	clientRW.Flush()
	clientRW.ReadByte()

	reply, err = recvPacket(clientRW)
	require.NoError(t, err)
	require.Equal(t, "OK", reply)
	require.Equal(t, []int{1}, target.removed)
}
