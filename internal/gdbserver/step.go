package gdbserver

import (
	"context"

	"github.com/esp-rs/esp-serial-dbg/internal/chip"
	"github.com/esp-rs/esp-serial-dbg/internal/hostconn"
	"github.com/esp-rs/esp-serial-dbg/internal/regs"
)

// stoppedReply is the GDB stop-reply body for "stopped on a trap" (SIGTRAP),
// the only stop reason this target reports.
const stoppedReply = "S05"

// Resume implements the 'c' packet: it resumes the target and blocks until
// it stops again, either because a breakpoint was hit or because interrupt
// fired (a GDB Ctrl-C), in which case it asks the target to break in.
func (t *Target) Resume(interrupt <-chan struct{}) (string, error) {
	t.mu.Lock()
	t.stepping = false
	t.mu.Unlock()

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go func() {
		select {
		case <-interrupt:
			t.conn.BreakExecution()
		case <-watchCtx.Done():
		}
	}()

	resumeCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := t.conn.Resume(resumeCtx); err != nil {
		return "", err
	}

	msg, err := t.conn.WaitHitBreakpoint(context.Background())
	if err != nil {
		return "", err
	}
	t.onHit(msg)
	return stoppedReply, nil
}

// Step implements the 's' packet. The hardware has no native single-step
// mode, so stepping is emulated: every software breakpoint is temporarily
// lifted, the instruction at PC is decoded to find its possible successor
// addresses, those addresses are planted as hardware breakpoints, and the
// target is resumed. Whichever candidate actually executes triggers the
// HitBreakpoint that ends the step (spec §4.7).
func (t *Target) Step() (string, error) {
	t.mu.Lock()
	t.stepping = true
	t.sw, t.tempDisabledSW = nil, t.sw
	arch := t.desc.Arch
	start, end := t.desc.HWBreakpointStart, t.desc.HWBreakpointEnd
	t.mu.Unlock()

	for _, bp := range t.tempDisabledSWSnapshot() {
		if err := t.WriteMemory(bp.addr, bp.original); err != nil {
			return "", err
		}
	}

	pc := t.pc()
	insn, err := t.ReadMemory(pc, 4)
	if err != nil {
		return "", err
	}

	var candidates []uint32
	if arch == chip.RISCV {
		candidates = riscvNextPCs([4]byte{insn[0], insn[1], insn[2], insn[3]}, pc, t.riscvSnapshot())
	} else {
		candidates = xtensaNextPCs([4]byte{insn[0], insn[1], insn[2], insn[3]}, pc, t.xtensaSnapshot())
	}

	savedUserHW := t.clearSteppingSlots(start, end)
	for i, target := range candidates {
		id := start + uint8(i)
		if id > end {
			break
		}
		setCtx, cancelSet := context.WithTimeout(context.Background(), requestTimeout)
		err := t.conn.SetBreakpoint(setCtx, id, target)
		cancelSet()
		if err != nil {
			return "", err
		}
	}

	resumeCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := t.conn.Resume(resumeCtx); err != nil {
		return "", err
	}
	msg, err := t.conn.WaitHitBreakpoint(context.Background())
	if err != nil {
		return "", err
	}
	t.onHit(msg)
	t.restoreSteppingSlots(start, end, savedUserHW)
	return stoppedReply, nil
}

func (t *Target) tempDisabledSWSnapshot() []swBreakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]swBreakpoint(nil), t.tempDisabledSW...)
}

func (t *Target) riscvSnapshot() regs.Riscv {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.riscvRegs
}

func (t *Target) xtensaSnapshot() regs.Xtensa {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.xtensaRegs
}

// clearSteppingSlots removes any user hardware breakpoints occupying the
// two slot ids [start, start+1] that step is about to use for its own
// candidate addresses, returning them so they can be restored once the
// step completes. The original implementation's restore loop only ever
// checks the first of the two slots; both are covered here.
func (t *Target) clearSteppingSlots(start, end uint8) []hwBreakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	var saved []hwBreakpoint
	var kept []hwBreakpoint
	for _, bp := range t.hw {
		if bp.id == start || (start+1 <= end && bp.id == start+1) {
			saved = append(saved, bp)
			continue
		}
		kept = append(kept, bp)
	}
	t.hw = kept
	return saved
}

func (t *Target) restoreSteppingSlots(start, end uint8, saved []hwBreakpoint) {
	for i := start; i <= end && i <= start+1; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		t.conn.ClearBreakpoint(ctx, i)
		cancel()
	}
	for _, bp := range saved {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		t.conn.SetBreakpoint(ctx, bp.id, bp.addr)
		cancel()
	}
	t.mu.Lock()
	t.hw = append(t.hw, saved...)
	t.mu.Unlock()
}

// onHit updates the cached register file from a HitBreakpoint message and,
// if a step was in progress, re-installs every temporarily disabled
// software breakpoint.
func (t *Target) onHit(msg hostconn.DeviceMessage) {
	t.updateRegistersFromHit(msg.Registers)

	t.mu.Lock()
	temp := t.tempDisabledSW
	t.tempDisabledSW = nil
	t.stepping = false
	t.mu.Unlock()

	for _, bp := range temp {
		length := uint8(len(bp.original))
		patch := t.desc.SWBreakpoint.Bytes[:length]
		t.WriteMemory(bp.addr, patch)
		t.mu.Lock()
		t.sw = append(t.sw, bp)
		t.mu.Unlock()
	}
}
