package gdbserver

import (
	"github.com/esp-rs/esp-serial-dbg/internal/regs"
)

// riscvNextPCs decodes the instruction at pc and returns every address
// execution could continue at: the fall-through address always, plus the
// branch/jump target for instructions whose target isn't statically known
// to equal fall-through (spec §4.7).
func riscvNextPCs(insn [4]byte, pc uint32, r regs.Riscv) []uint32 {
	insnLen := uint32(2)
	if insn[0]&0b11 == 0b11 {
		insnLen = 4
	}
	candidates := []uint32{pc + insnLen}

	if insnLen == 4 {
		inst := uint32(insn[0]) | uint32(insn[1])<<8 | uint32(insn[2])<<16 | uint32(insn[3])<<24
		opcode := inst & 0x7F
		funct3 := (inst >> 12) & 0x7

		switch {
		case opcode == 0b1100111 && funct3 == 0: // JALR
			offset := (inst >> 20) & 0xFFF
			rs1 := uint8((inst >> 15) & 0x1F)
			target := (regs.RiscvByABINumber(r, rs1) + sext12(offset)) &^ 1
			candidates = append(candidates, target)

		case opcode == 0b1101111: // JAL
			offset20 := (inst >> 31) & 0x1
			offset10_1 := (inst >> 21) & 0x3FF
			offset11 := (inst >> 20) & 0x1
			offset19_12 := (inst >> 12) & 0xFF
			offset := (offset20 << 20) | (offset19_12 << 12) | (offset11 << 11) | (offset10_1 << 1)
			target := (pc + sext20(offset)) &^ 1
			candidates = append(candidates, target)

		case opcode == 0b1100011: // B-type: BEQ/BNE/BLT/BGE/BLTU/BGEU
			offset12 := (inst >> 31) & 0x1
			offset10_5 := (inst >> 25) & 0x3F
			offset4_1 := (inst >> 8) & 0xF
			offset11 := (inst >> 7) & 0x1
			offset := (offset12 << 12) | (offset11 << 11) | (offset10_5 << 5) | (offset4_1 << 1)
			target := (pc + sext12(offset)) &^ 1
			candidates = append(candidates, target)
		}
		return candidates
	}

	inst16 := uint16(insn[0]) | uint16(insn[1])<<8
	quadrant := inst16 & 0x3
	funct3_16 := (inst16 >> 13) & 0x7
	funct4_16 := (inst16 >> 12) & 0xF
	rs2_16 := (inst16 >> 2) & 0x1F
	rdrs1_16 := (inst16 >> 7) & 0x1F

	switch {
	case quadrant == 0b01 && funct3_16 == 0b101: // C.J
		offset5 := (inst16 >> 2) & 0x1
		offset3_1 := (inst16 >> 3) & 0x7
		offset7 := (inst16 >> 6) & 0x1
		offset6 := (inst16 >> 7) & 0x1
		offset10 := (inst16 >> 8) & 0x1
		offset9_8 := (inst16 >> 9) & 0x3
		offset4 := (inst16 >> 11) & 0x1
		offset11 := (inst16 >> 12) & 0x1
		offset := uint32(offset11)<<11 | uint32(offset10)<<10 | uint32(offset9_8)<<8 | uint32(offset7)<<7 |
			uint32(offset6)<<6 | uint32(offset5)<<5 | uint32(offset4)<<4 | uint32(offset3_1)<<1
		target := (pc + sext11(offset)) &^ 1
		candidates = append(candidates, target)

	case quadrant == 0b10 && funct4_16 == 0b1000 && rs2_16 == 0 && rdrs1_16 != 0: // C.JR
		candidates = append(candidates, regs.RiscvByABINumber(r, uint8(rdrs1_16)))
	}
	return candidates
}

func sext11(v uint32) uint32 {
	if v&(1<<10) != 0 {
		return v | ^uint32(0x7FF)
	}
	return v
}

func sext12(v uint32) uint32 {
	if v&(1<<11) != 0 {
		return v | ^uint32(0xFFF)
	}
	return v
}

// sext20 sign-extends a 21-bit value whose sign bit is bit 20 (the shifted
// JAL immediate covers bits 1-20, bit 0 being always zero). The original implementation tests bit 21
// instead, a bug; this implements the ISA correctly.
func sext20(v uint32) uint32 {
	if v&(1<<20) != 0 {
		return v | ^uint32(0x1FFFFF)
	}
	return v
}
