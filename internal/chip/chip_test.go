package chip

import (
	"testing"

	"github.com/esp-rs/esp-serial-dbg/internal/regs"
	"github.com/stretchr/testify/require"
)

func TestParseHyphenOptional(t *testing.T) {
	for _, s := range []string{"esp32c3", "esp32-c3", "ESP32-C3", "  esp32C3  "} {
		c, err := Parse(s)
		require.NoError(t, err)
		require.Equal(t, ESP32C3, c)
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("esp8266")
	require.Error(t, err)
}

func TestDescriptorsCoverAllChips(t *testing.T) {
	for _, c := range []Chip{ESP32, ESP32S2, ESP32S3, ESP32C3, ESP32C2, ESP32C6} {
		d := Describe(c)
		require.NotEmpty(t, d.MemoryMapXML)
		require.NotNil(t, d.GDBRegisterOrder)
	}
}

func TestRiscvChipsShareDescriptor(t *testing.T) {
	c3 := Describe(ESP32C3)
	c6 := Describe(ESP32C6)
	require.Equal(t, c3.HWBreakpointStart, c6.HWBreakpointStart)
	require.Equal(t, c3.HWBreakpointEnd, c6.HWBreakpointEnd)
	require.Equal(t, c3.SWBreakpoint, c6.SWBreakpoint)
}

func TestXtensaSWBreakpointOpcodeDiffersByChip(t *testing.T) {
	require.Equal(t, 3, Describe(ESP32).SWBreakpoint.Length)
	require.Equal(t, 2, Describe(ESP32S2).SWBreakpoint.Length)
	require.Equal(t, 2, Describe(ESP32S3).SWBreakpoint.Length)
}

func TestGDBRegisterOrderDispatch(t *testing.T) {
	r := regs.Riscv{PC: 0x42000000}
	order := Describe(ESP32C3).GDBRegisterOrder(r)
	require.Equal(t, r.PC, order[len(order)-1])
}
