package regs

import "encoding/binary"

// Xtensa is the 54-register LX6/LX7 register file, physical order per spec
// §3: PC, PS, A0-A15, SAR, EXCCAUSE, EXCVADDR, LBEG, LEND, LCOUNT, THREADPTR,
// SCOMPARE1, BR, ACCLO, ACCHI, M0-M3, F64R_LO, F64R_HI, F64S, FCR, FSR,
// F0-F15.
type Xtensa struct {
	PC, PS                                                     uint32
	A0, A1, A2, A3, A4, A5, A6, A7, A8, A9, A10, A11, A12, A13, A14, A15 uint32
	SAR, EXCCAUSE, EXCVADDR                                    uint32
	LBEG, LEND, LCOUNT                                         uint32
	THREADPTR, SCOMPARE1, BR                                   uint32
	ACCLO, ACCHI                                               uint32
	M0, M1, M2, M3                                             uint32
	F64RLO, F64RHI, F64S                                       uint32
	FCR, FSR                                                   uint32
	F0, F1, F2, F3, F4, F5, F6, F7, F8, F9, F10, F11, F12, F13, F14, F15 uint32
}

// XtensaWireSize is the HIT_BREAKPOINT payload size for Xtensa chips: 54
// regs * 4 bytes, packed with no gaps (spec §3: "offset = field index * 4").
// The original implementation leaves a 2-byte gap before F0; that is a bug
// in the source we do not reproduce, per the spec's explicit packed-offset
// statement.
const XtensaWireSize = 54 * 4

func xtensaFields(r *Xtensa) [54]*uint32 {
	return [54]*uint32{
		&r.PC, &r.PS,
		&r.A0, &r.A1, &r.A2, &r.A3, &r.A4, &r.A5, &r.A6, &r.A7,
		&r.A8, &r.A9, &r.A10, &r.A11, &r.A12, &r.A13, &r.A14, &r.A15,
		&r.SAR, &r.EXCCAUSE, &r.EXCVADDR,
		&r.LBEG, &r.LEND, &r.LCOUNT,
		&r.THREADPTR, &r.SCOMPARE1, &r.BR,
		&r.ACCLO, &r.ACCHI,
		&r.M0, &r.M1, &r.M2, &r.M3,
		&r.F64RLO, &r.F64RHI, &r.F64S,
		&r.FCR, &r.FSR,
		&r.F0, &r.F1, &r.F2, &r.F3, &r.F4, &r.F5, &r.F6, &r.F7,
		&r.F8, &r.F9, &r.F10, &r.F11, &r.F12, &r.F13, &r.F14, &r.F15,
	}
}

// Bytes serializes r in physical wire order, little-endian, 4 bytes/field.
func (r Xtensa) Bytes() []byte {
	fields := xtensaFields(&r)
	buf := make([]byte, XtensaWireSize)
	for i, f := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], *f)
	}
	return buf
}

// XtensaFromBytes decodes a HIT_BREAKPOINT payload into an Xtensa register
// file.
func XtensaFromBytes(data []byte) Xtensa {
	var r Xtensa
	fields := xtensaFields(&r)
	for i, f := range fields {
		*f = binary.LittleEndian.Uint32(data[i*4:])
	}
	return r
}

// XtensaByA maps an a0-a15 window-relative register number to its live
// value, used by the step emulator to resolve CALLX/JX/RET targets (spec
// §4.7). Windowed registers beyond a15 are not modeled.
func XtensaByA(r Xtensa, num uint8) uint32 {
	switch num {
	case 0:
		return r.A0
	case 1:
		return r.A1
	case 2:
		return r.A2
	case 3:
		return r.A3
	case 4:
		return r.A4
	case 5:
		return r.A5
	case 6:
		return r.A6
	case 7:
		return r.A7
	case 8:
		return r.A8
	case 9:
		return r.A9
	case 10:
		return r.A10
	case 11:
		return r.A11
	case 12:
		return r.A12
	case 13:
		return r.A13
	case 14:
		return r.A14
	case 15:
		return r.A15
	default:
		panic("regs: invalid Xtensa address register number")
	}
}

// windowPad is the 48-word zero-padded placeholder GDB expects after a0-a15
// for the windowed register file GDB never actually reads over this link
// (the original writes ascending loop indices there instead of zero; we
// write zero, matching the spec's "padding for unsupported fields is all
// zero" and documented as a deliberate simplification in DESIGN.md).
func windowPad() []uint32 {
	return make([]uint32, 48)
}

func aRegs(r Xtensa) []uint32 {
	return []uint32{
		r.A0, r.A1, r.A2, r.A3, r.A4, r.A5, r.A6, r.A7,
		r.A8, r.A9, r.A10, r.A11, r.A12, r.A13, r.A14, r.A15,
	}
}

func fRegs(r Xtensa) []uint32 {
	return []uint32{
		r.F0, r.F1, r.F2, r.F3, r.F4, r.F5, r.F6, r.F7,
		r.F8, r.F9, r.F10, r.F11, r.F12, r.F13, r.F14, r.F15,
	}
}

// XtensaGDBOrderEsp32 is the 'g'-packet word order for plain ESP32 (original
// xtensa_esp32.rs gdb_serialize).
func XtensaGDBOrderEsp32(r Xtensa) []uint32 {
	out := []uint32{r.PC}
	out = append(out, aRegs(r)...)
	out = append(out, windowPad()...)
	out = append(out, r.LBEG, r.LEND, r.LCOUNT, r.SAR)
	out = append(out, 0, 0, 0, 0) // windowbase, windowstart, configid0, configid1
	out = append(out, r.PS, r.THREADPTR, 0 /* br */, r.SCOMPARE1)
	out = append(out, r.ACCLO, r.ACCHI)
	out = append(out, r.M0, r.M1, r.M2, r.M3)
	out = append(out, 0) // expstate
	out = append(out, r.F64RLO, r.F64RHI, r.F64S)
	out = append(out, fRegs(r)...)
	out = append(out, r.FCR, r.FSR)
	return out
}

// XtensaGDBOrderEsp32S2 is the 'g'-packet word order for ESP32-S2
// (xtensa_esp32s2.rs gdb_serialize): no loop/FP register set.
func XtensaGDBOrderEsp32S2(r Xtensa) []uint32 {
	out := []uint32{r.PC}
	out = append(out, aRegs(r)...)
	out = append(out, windowPad()...)
	out = append(out, r.SAR)
	out = append(out, 0, 0, 0, 0) // windowbase, windowstart, configid0, configid1
	out = append(out, r.PS, r.THREADPTR)
	out = append(out, 0) // gpio_out
	out = append(out, 0) // trailing pad
	return out
}

// XtensaGDBOrderEsp32S3 is the 'g'-packet word order for ESP32-S3
// (xtensa_esp32s3.rs gdb_serialize): loop/FP registers plus the S3-specific
// PIE tail (ACCX, QACC, FFT, Q registers).
func XtensaGDBOrderEsp32S3(r Xtensa) []uint32 {
	out := []uint32{r.PC}
	out = append(out, aRegs(r)...)
	out = append(out, windowPad()...)
	out = append(out, r.LBEG, r.LEND, r.LCOUNT, r.SAR)
	out = append(out, 0, 0, 0, 0) // windowbase, windowstart, configid0, configid1
	out = append(out, r.PS, r.THREADPTR, 0 /* br */, r.SCOMPARE1)
	out = append(out, r.ACCLO, r.ACCHI)
	out = append(out, r.M0, r.M1, r.M2, r.M3)
	out = append(out, 0) // gpio_out
	out = append(out, fRegs(r)...)
	out = append(out, r.FCR, r.FSR)
	out = append(out, 0) // gpio_out (again)
	out = append(out, 0, 0)       // accx_0, accx_1
	out = append(out, 0, 0, 0, 0) // qacc_h_0..3
	out = append(out, 0, 0, 0, 0) // qacc_l_0..3
	out = append(out, 0)          // sar_byte
	out = append(out, 0)          // fft_bit_width
	out = append(out, 0, 0, 0, 0) // ua_state_0..3
	out = append(out, 0, 0, 0, 0, 0, 0, 0, 0) // q0..q7
	out = append(out, 0)                      // trailing pad
	return out
}
