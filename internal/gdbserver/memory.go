package gdbserver

import (
	"context"
	"time"
)

const requestTimeout = 2 * time.Second

// alignedWindow computes the word-aligned [start,start+length) window that
// covers [addr,addr+length), per spec §4.2's word-granularity wire format:
// the device only ever reads/writes whole 32-bit words.
func alignedWindow(addr, length uint32) (alignedStart uint32, offset uint32, alignedLen uint32) {
	alignedStart = addr &^ 3
	offset = addr - alignedStart
	alignedLen = (offset + length + 3) &^ 3
	return
}

// ReadMemory implements the 'm' packet (spec §4.6: "read_addrs"). It reads
// the word-aligned superset window from the device, then splices the
// original bytes of every overlapping software breakpoint back in — both
// breakpoints currently installed and any temporarily disabled for a step
// in progress — so GDB never sees the patched opcode.
func (t *Target) ReadMemory(addr, length uint32) ([]byte, error) {
	alignedStart, offset, alignedLen := alignedWindow(addr, length)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	data, err := t.conn.ReadMemory(ctx, alignedStart, alignedLen)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	maskBreakpoints(data, alignedStart, t.sw)
	maskBreakpoints(data, alignedStart, t.tempDisabledSW)
	t.mu.Unlock()

	if uint32(len(data)) < offset+length {
		return data, nil
	}
	return data[offset : offset+length], nil
}

// maskBreakpoints splices original_code back over any patched bytes of bps
// that fall within [windowStart, windowStart+len(data)).
func maskBreakpoints(data []byte, windowStart uint32, bps []swBreakpoint) {
	for _, bp := range bps {
		bpEnd := bp.addr + uint32(len(bp.original))
		windowEnd := windowStart + uint32(len(data))
		if bp.addr >= windowEnd || bpEnd <= windowStart {
			continue
		}

		// Clip the overlap of [bp.addr, bpEnd) against [windowStart, windowEnd).
		overlapStart := bp.addr
		if overlapStart < windowStart {
			overlapStart = windowStart
		}
		overlapEnd := bpEnd
		if overlapEnd > windowEnd {
			overlapEnd = windowEnd
		}

		startInData := overlapStart - windowStart
		startInOriginal := overlapStart - bp.addr
		remLen := overlapEnd - overlapStart
		copy(data[startInData:startInData+remLen], bp.original[startInOriginal:startInOriginal+remLen])
	}
}

// WriteMemory implements the 'M' packet (spec §4.6: "write_addrs"): a
// read-modify-write over the word-aligned superset window, since the wire
// protocol has no sub-word write. The read goes through readRaw (unmasked)
// so an existing breakpoint patch under part of the window is not
// accidentally un-patched by the writeback.
func (t *Target) WriteMemory(addr uint32, data []byte) error {
	alignedStart, offset, alignedLen := alignedWindow(addr, uint32(len(data)))

	aligned, err := t.readRaw(alignedStart, alignedLen)
	if err != nil {
		return err
	}
	copy(aligned[offset:offset+uint32(len(data))], data)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return t.conn.WriteMemory(ctx, alignedStart, aligned)
}

// readRaw reads a word-aligned window directly from the device, without
// breakpoint masking — used internally when a caller is about to write the
// window back and must preserve any existing patch bytes verbatim.
func (t *Target) readRaw(alignedStart, alignedLen uint32) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return t.conn.ReadMemory(ctx, alignedStart, alignedLen)
}
