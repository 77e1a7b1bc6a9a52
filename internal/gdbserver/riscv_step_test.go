package gdbserver

import (
	"testing"

	"github.com/esp-rs/esp-serial-dbg/internal/regs"
)

func TestRiscvNextPCs(t *testing.T) {
	cases := []struct {
		name string
		pc   uint32
		insn [4]byte
		regs regs.Riscv
		want []uint32
	}{
		{
			name: "non_branching_uncompressed",
			pc:   0x42000070,
			insn: [4]byte{0x97, 0x11, 0xc8, 0xfd},
			want: []uint32{0x42000074},
		},
		{
			name: "non_branching_compressed",
			pc:   0x42000060,
			insn: [4]byte{0x01, 0x4c, 0xff, 0xff},
			want: []uint32{0x42000062},
		},
		{
			name: "branching_uncompressed_jalr",
			pc:   0x42000024,
			insn: [4]byte{0x67, 0x80, 0x80, 0xca},
			regs: regs.Riscv{RA: 0x42008000},
			want: []uint32{0x42000028, 0x42007ca8},
		},
		{
			name: "branching_uncompressed_jal",
			pc:   0x42000308,
			insn: [4]byte{0xef, 0x00, 0xc0, 0x16},
			want: []uint32{0x4200030c, 0x42000474},
		},
		{
			name: "branching_uncompressed_beq",
			pc:   0x42000b74,
			insn: [4]byte{0x63, 0x05, 0xb5, 0x00},
			want: []uint32{0x42000b78, 0x42000b7e},
		},
		{
			name: "branching_uncompressed_bne",
			pc:   0x420000cc,
			insn: [4]byte{0x63, 0x18, 0xb5, 0x00},
			want: []uint32{0x420000d0, 0x420000dc},
		},
		{
			name: "branching_uncompressed_blt",
			pc:   0x4200125e,
			insn: [4]byte{0x63, 0x44, 0xb5, 0x00},
			want: []uint32{0x42001262, 0x42001266},
		},
		{
			name: "branching_compressed_j",
			pc:   0x42002322,
			insn: [4]byte{0x61, 0xbf, 0x00, 0x00},
			want: []uint32{0x42002324, 0x420022ba},
		},
		{
			name: "branching_compressed_jr",
			pc:   0x4200a992,
			insn: [4]byte{0x02, 0x85, 0x00, 0x00},
			regs: regs.Riscv{A0: 0x42000000},
			want: []uint32{0x4200a994, 0x42000000},
		},
		{
			name: "non_branching_compressed_sw",
			pc:   0x420022c8,
			insn: [4]byte{0x85, 0x45, 0x00, 0x00},
			regs: regs.Riscv{A0: 0x42000000},
			want: []uint32{0x420022ca},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := riscvNextPCs(tc.insn, tc.pc, tc.regs)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d candidates %#x, want %d %#x", len(got), got, len(tc.want), tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("candidate %d: got %#x, want %#x", i, got[i], tc.want[i])
				}
			}
		})
	}
}
