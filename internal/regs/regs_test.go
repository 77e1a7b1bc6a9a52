package regs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRiscvRoundTrip(t *testing.T) {
	r := Riscv{RA: 0x42008000, SP: 0x3fc90000, PC: 0x42000070, A0: 1, T3: 7}
	data := r.Bytes()
	require.Len(t, data, RiscvWireSize)
	got := RiscvFromBytes(data)
	require.Equal(t, r, got)
}

func TestRiscvByABINumber(t *testing.T) {
	r := Riscv{RA: 0x42008000, A0: 0x42000000}
	require.EqualValues(t, 0, RiscvByABINumber(r, 0))
	require.Equal(t, r.RA, RiscvByABINumber(r, 1))
	require.Equal(t, r.A0, RiscvByABINumber(r, 10))
}

func TestRiscvGDBOrderStartsWithZeroThenRA(t *testing.T) {
	r := Riscv{RA: 0x11, SP: 0x22, PC: 0x33}
	order := RiscvGDBOrder(r)
	require.Len(t, order, 33)
	require.EqualValues(t, 0, order[0])
	require.Equal(t, r.RA, order[1])
	require.Equal(t, r.PC, order[len(order)-1])
}

func TestXtensaRoundTrip(t *testing.T) {
	r := Xtensa{PC: 0x420000fe, A0: 0x42424242, FSR: 9}
	data := r.Bytes()
	require.Len(t, data, XtensaWireSize)
	got := XtensaFromBytes(data)
	require.Equal(t, r, got)
}

func TestXtensaGDBOrderLengths(t *testing.T) {
	var r Xtensa
	require.Len(t, XtensaGDBOrderEsp32(r), 105)
	require.Len(t, XtensaGDBOrderEsp32S2(r), 74)
	require.Len(t, XtensaGDBOrderEsp32S3(r), 128)
}

func TestXtensaByA(t *testing.T) {
	r := Xtensa{A4: 0x42424242}
	require.Equal(t, r.A4, XtensaByA(r, 4))
}
