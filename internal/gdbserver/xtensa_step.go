package gdbserver

import "github.com/esp-rs/esp-serial-dbg/internal/regs"

// xtensaLengthTable maps an instruction's first byte to its length in
// bytes: 3 for the common RRI8/BRI8/BRI12/CALL/CALLX/J encodings, 2 for the
// narrow ".N" forms, 4 for the rare wide encodings.
var xtensaLengthTable = [256]byte{
	3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4, 3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4,
	3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4, 3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4,
	3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4, 3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4,
	3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4, 3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4,
	3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4, 3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4,
	3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4, 3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4,
	3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4, 3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4,
	3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4, 3, 3, 3, 3, 3, 3, 3, 3, 2, 2, 2, 2, 2, 2, 4, 4,
}

// rri8 extracts the imm8 field shared by every BRI8-style conditional
// branch (BALL, BANY, BBC(I), BBS(I), BEQ, BGE, BLT, BLTU, BNALL, BNE, BT,
// BNONE, ...): byte 2 verbatim.
func rri8Imm(insn [4]byte) byte { return insn[2] }

// bri8Imm extracts the imm8 field of the *I-immediate conditional branches
// (BEQI, BNEI, BLTI, BLTUI, BGEI, BGEUI): identical layout to rri8.
func bri8Imm(insn [4]byte) byte { return insn[2] }

// bri12Imm extracts the 12-bit relative offset of the Z-form branches
// (BEQZ, BNEZ, BLTZ, BGEZ): high byte in insn[2], low nibble in the high
// nibble of insn[1].
func bri12Imm(insn [4]byte) uint32 {
	return uint32(insn[2])<<4 | uint32(insn[1]>>4)
}

// ri6Imm extracts the 6-bit relative offset of the narrow Z-form branches
// (BEQZ.N, BNEZ.N).
func ri6Imm(insn [4]byte) uint32 {
	lo := (insn[0] & 0b0011_0000) >> 4
	hi := (insn[1] & 0b1111_0000) >> 4
	return uint32(hi) | uint32(lo)<<4
}

// callOffset extracts the 18-bit word-count offset shared by CALL0/4/8/12
// and J.
func callOffset(insn [4]byte) uint32 {
	return uint32(insn[0]>>6) | uint32(insn[1])<<2 | uint32(insn[2])<<10
}

// callxTarget extracts the address-register operand (field s) of
// CALLX0/4/8/12 and JX.
func callxTarget(insn [4]byte) uint8 { return insn[1] & 0b1111 }

func xsigned8(v byte) int32 {
	if v&0x80 != 0 {
		return int32(v) - 0x100
	}
	return int32(v)
}

func xsigned6(v uint32) int32 {
	if v&(1<<5) != 0 {
		return int32(v) - 0x40
	}
	return int32(v)
}

func xsigned12(v uint32) int32 {
	if v&(1<<11) != 0 {
		return int32(v) - 0x1000
	}
	return int32(v)
}

func xsigned18(v uint32) int32 {
	if v&(1<<17) != 0 {
		return int32(v) - 0x40000
	}
	return int32(v)
}

// xtensaNextPCs decodes the instruction at pc and returns every address
// execution could continue at (spec §4.7), grounded byte-for-byte on the
// original opcode table.
func xtensaNextPCs(insn [4]byte, pc uint32, r regs.Xtensa) []uint32 {
	candidates := []uint32{pc + uint32(xtensaLengthTable[insn[0]])}

	op0 := insn[0] & 0b1111
	op1hi := (insn[1] & 0b1111_0000) >> 4

	rel8 := func(imm byte) uint32 { return uint32(int64(pc) + int64(xsigned8(imm)) + 4) }
	rel12 := func(imm uint32) uint32 { return uint32(int64(pc) + int64(xsigned12(imm)) + 4) }
	rel6 := func(imm uint32) uint32 { return uint32(int64(pc) + int64(xsigned6(imm)) + 4) }

	switch {
	case op0 == 0b0111 && op1hi == 0b0100: // BALL
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b1000: // BANY
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b0101: // BBC
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case op0 == 0b0111 && (insn[1]&0b1110_0000)>>4 == 0b0110: // BBCI
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b1101: // BBS
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case op0 == 0b0111 && (insn[1]&0b1110_0000)>>4 == 0b1110: // BBSI
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b0001: // BEQ
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case insn[0] == 0b0010_0111: // BEQI
		candidates = append(candidates, rel8(bri8Imm(insn)))
	case insn[0] == 0b0001_0111: // BEQZ
		candidates = append(candidates, rel12(bri12Imm(insn)))
	case insn[0]&0b1100_1111 == 0b1000_1100: // BEQZ.N
		candidates = append(candidates, rel6(ri6Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b1010: // BGE
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case insn[0] == 0b1110_0110: // BGEI
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b1011: // BGEU
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case insn[0] == 0b1111_0110: // BGEUI
		candidates = append(candidates, rel8(bri8Imm(insn)))
	case insn[0] == 0b1101_0110: // BGEZ
		candidates = append(candidates, rel12(bri12Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b0010: // BLT
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case insn[0] == 0b1010_0110: // BLTI
		candidates = append(candidates, rel8(bri8Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b0011: // BLTU
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case insn[0] == 0b1011_0110: // BLTUI
		candidates = append(candidates, rel8(bri8Imm(insn)))
	case insn[0] == 0b1001_0110: // BLTZ
		candidates = append(candidates, rel12(bri12Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b1100: // BNALL
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b1001: // BNE
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case insn[0] == 0b0110_0110: // BNEI
		candidates = append(candidates, rel8(bri8Imm(insn)))
	case insn[0] == 0b0101_0110: // BNEZ
		candidates = append(candidates, rel12(bri12Imm(insn)))
	case insn[0]&0b1100_1111 == 0b1100_1100: // BNEZ.N
		candidates = append(candidates, rel6(ri6Imm(insn)))
	case op0 == 0b0111 && op1hi == 0b0111: // BNONE
		candidates = append(candidates, rel8(rri8Imm(insn)))
	case op0 == 0b0110 && op1hi == 0b0001: // BT
		candidates = append(candidates, rel8(rri8Imm(insn)))

	case insn[0]&0b11_1111 == 0b00_0101, // CALL0
		insn[0]&0b11_1111 == 0b01_0101, // CALL4
		insn[0]&0b11_1111 == 0b10_0101, // CALL8
		insn[0]&0b11_1111 == 0b11_0101: // CALL12
		offset := callOffset(insn)
		target := uint32(int64(pc&^0b11) + int64(xsigned18(offset)+1)*4)
		candidates = append(candidates, target)

	case insn[0] == 0b1100_0000 && insn[1]&0xF0 == 0 && insn[2] == 0: // CALLX0
		candidates = append(candidates, regs.XtensaByA(r, callxTarget(insn)))
	case insn[0] == 0b1101_0000 && insn[1]&0xF0 == 0 && insn[2] == 0: // CALLX4
		candidates = append(candidates, regs.XtensaByA(r, callxTarget(insn)))
	case insn[0] == 0b1110_0000 && insn[1]&0xF0 == 0 && insn[2] == 0: // CALLX8
		candidates = append(candidates, regs.XtensaByA(r, callxTarget(insn)))
	case insn[0] == 0b1111_0000 && insn[1]&0xF0 == 0 && insn[2] == 0: // CALLX12
		candidates = append(candidates, regs.XtensaByA(r, callxTarget(insn)))

	case insn[0]&0b11_1111 == 0b00_0110: // J
		offset := callOffset(insn)
		candidates = append(candidates, uint32(int64(pc)+int64(xsigned18(offset))+4))

	case insn[0] == 0b1010_0000 && insn[1]&0xF0 == 0 && insn[2] == 0: // JX
		candidates = append(candidates, regs.XtensaByA(r, callxTarget(insn)))

	case insn[0] == 0b1000_0000 && insn[1] == 0 && insn[2] == 0: // RET / RETW
		candidates = append(candidates, r.A0)
	case insn[0] == 0b1000_0000 && insn[1] == 0b1111_0000: // RET.N
		candidates = append(candidates, r.A0)
	case insn[0] == 0b0001_1101 && insn[1] == 0b1111_0000: // RETW.N
		candidates = append(candidates, r.A0)
	}

	return candidates
}
