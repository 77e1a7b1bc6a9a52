// Package regs implements the fixed-layout per-architecture register files
// (spec §3, §4.3): physical wire layout for HIT_BREAKPOINT frames, and the
// GDB target-description wire order used by internal/gdbserver.
package regs

import "encoding/binary"

// Riscv is the 32-register RV32 register file, physical order per spec §3:
// ra, t0..t6, a0..a7, s0..s11, gp, tp, sp, pc.
type Riscv struct {
	RA                     uint32
	T0, T1, T2, T3, T4, T5, T6 uint32
	A0, A1, A2, A3, A4, A5, A6, A7 uint32
	S0, S1, S2, S3, S4, S5, S6, S7, S8, S9, S10, S11 uint32
	GP, TP, SP, PC uint32
}

// RiscvWireSize is the HIT_BREAKPOINT payload size for RISC-V chips: 32 regs
// * 4 bytes.
const RiscvWireSize = 32 * 4

// riscvFields lists the 32 fields in physical wire order, each as a pointer
// accessor, so encode/decode stay in lockstep by construction.
func riscvFields(r *Riscv) [32]*uint32 {
	return [32]*uint32{
		&r.RA,
		&r.T0, &r.T1, &r.T2, &r.T3, &r.T4, &r.T5, &r.T6,
		&r.A0, &r.A1, &r.A2, &r.A3, &r.A4, &r.A5, &r.A6, &r.A7,
		&r.S0, &r.S1, &r.S2, &r.S3, &r.S4, &r.S5, &r.S6, &r.S7, &r.S8, &r.S9, &r.S10, &r.S11,
		&r.GP, &r.TP, &r.SP, &r.PC,
	}
}

// Bytes serializes r in physical wire order, little-endian, 4 bytes/field.
func (r Riscv) Bytes() []byte {
	fields := riscvFields(&r)
	buf := make([]byte, RiscvWireSize)
	for i, f := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], *f)
	}
	return buf
}

// RiscvFromBytes decodes a HIT_BREAKPOINT payload into a Riscv register
// file. It panics if data is shorter than RiscvWireSize, a programmer error
// (the caller must size the payload from the frame header first).
func RiscvFromBytes(data []byte) Riscv {
	var r Riscv
	fields := riscvFields(&r)
	for i, f := range fields {
		*f = binary.LittleEndian.Uint32(data[i*4:])
	}
	return r
}

// RiscvByABINumber maps a standard RV32 ABI register number (x0..x31) to its
// live value, used by the step emulator to resolve JALR/C.JR targets (spec
// §4.7).
func RiscvByABINumber(r Riscv, num uint8) uint32 {
	switch num {
	case 0:
		return 0
	case 1:
		return r.RA
	case 2:
		return r.SP
	case 3:
		return r.GP
	case 4:
		return r.TP
	case 5:
		return r.T0
	case 6:
		return r.T1
	case 7:
		return r.T2
	case 8:
		return r.S0
	case 9:
		return r.S1
	case 10:
		return r.A0
	case 11:
		return r.A1
	case 12:
		return r.A2
	case 13:
		return r.A3
	case 14:
		return r.A4
	case 15:
		return r.A5
	case 16:
		return r.A6
	case 17:
		return r.A7
	case 18:
		return r.S2
	case 19:
		return r.S3
	case 20:
		return r.S4
	case 21:
		return r.S5
	case 22:
		return r.S6
	case 23:
		return r.S7
	case 24:
		return r.S8
	case 25:
		return r.S9
	case 26:
		return r.S10
	case 27:
		return r.S11
	case 28:
		return r.T3
	case 29:
		return r.T4
	case 30:
		return r.T5
	case 31:
		return r.T6
	default:
		panic("regs: invalid RV32 register number")
	}
}

// RiscvGDBOrder returns the word sequence GDB expects for 'g'/'p' register
// reads, per binutils-gdb's riscv/32bit-cpu.xml: zero, ra, sp, gp,
// tp, t0-2, s0-1, a0-7, s2-11, t3-6, pc.
func RiscvGDBOrder(r Riscv) []uint32 {
	return []uint32{
		0, r.RA, r.SP, r.GP, r.TP,
		r.T0, r.T1, r.T2,
		r.S0, r.S1,
		r.A0, r.A1, r.A2, r.A3, r.A4, r.A5, r.A6, r.A7,
		r.S2, r.S3, r.S4, r.S5, r.S6, r.S7, r.S8, r.S9, r.S10, r.S11,
		r.T3, r.T4, r.T5, r.T6,
		r.PC,
	}
}
