package gdbserver

import (
	"context"
	"fmt"
	"sort"
)

// RSP breakpoint/watchpoint kinds (Z/z packet first argument).
const (
	kindSoftware = 0
	kindHardware = 1
)

// InsertBreakpoint implements the 'Z' packet. Kinds 2-4 (watchpoints) are
// accepted and silently succeed: the target has no watchpoint hardware,
// and GDB degrades gracefully when a watchpoint request reports success
// but never fires (spec §4.6).
func (t *Target) InsertBreakpoint(kind int, addr uint32, length uint32) error {
	switch kind {
	case kindSoftware:
		return t.addSWBreakpoint(addr)
	case kindHardware:
		return t.addHWBreakpoint(addr)
	default:
		return nil
	}
}

// RemoveBreakpoint implements the 'z' packet.
func (t *Target) RemoveBreakpoint(kind int, addr uint32, length uint32) error {
	switch kind {
	case kindSoftware:
		return t.removeSWBreakpoint(addr)
	case kindHardware:
		return t.removeHWBreakpoint(addr)
	default:
		return nil
	}
}

func (t *Target) addSWBreakpoint(addr uint32) error {
	t.mu.Lock()
	for _, bp := range t.sw {
		if bp.addr == addr {
			t.mu.Unlock()
			return nil
		}
	}
	t.mu.Unlock()

	length := t.desc.SWBreakpoint.Length
	original, err := t.ReadMemory(addr, uint32(length))
	if err != nil {
		return err
	}
	patch := t.desc.SWBreakpoint.Bytes[:length]
	if err := t.WriteMemory(addr, patch); err != nil {
		return err
	}

	t.mu.Lock()
	t.sw = append(t.sw, swBreakpoint{addr: addr, original: append([]byte(nil), original...)})
	t.mu.Unlock()
	return nil
}

func (t *Target) removeSWBreakpoint(addr uint32) error {
	t.mu.Lock()
	idx := -1
	var original []byte
	for i, bp := range t.sw {
		if bp.addr == addr {
			idx = i
			original = bp.original
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return nil
	}
	t.sw = append(t.sw[:idx], t.sw[idx+1:]...)
	t.mu.Unlock()

	return t.WriteMemory(addr, original)
}

// addHWBreakpoint allocates the lowest free hardware breakpoint id in
// [HWBreakpointStart, HWBreakpointEnd] (spec §4.5: "allocate lowest free HW
// id"). The original implementation's scan does not correctly handle
// non-contiguous id gaps; this walks the sorted used-id list and returns
// the first gap.
func (t *Target) addHWBreakpoint(addr uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, bp := range t.hw {
		if bp.addr == addr {
			return nil
		}
	}

	used := make([]int, len(t.hw))
	for i, bp := range t.hw {
		used[i] = int(bp.id)
	}
	sort.Ints(used)

	id := -1
	for candidate := int(t.desc.HWBreakpointStart); candidate <= int(t.desc.HWBreakpointEnd); candidate++ {
		free := true
		for _, u := range used {
			if u == candidate {
				free = false
				break
			}
		}
		if free {
			id = candidate
			break
		}
	}
	if id < 0 {
		return fmt.Errorf("gdbserver: no free hardware breakpoint slot")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := t.conn.SetBreakpoint(ctx, uint8(id), addr); err != nil {
		return err
	}
	t.hw = append(t.hw, hwBreakpoint{id: uint8(id), addr: addr})
	return nil
}

func (t *Target) removeHWBreakpoint(addr uint32) error {
	t.mu.Lock()
	idx := -1
	var id uint8
	for i, bp := range t.hw {
		if bp.addr == addr {
			idx = i
			id = bp.id
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return nil
	}
	t.hw = append(t.hw[:idx], t.hw[idx+1:]...)
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return t.conn.ClearBreakpoint(ctx, id)
}
