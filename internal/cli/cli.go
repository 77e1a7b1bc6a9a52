// Package cli implements the line-oriented interactive debugging front-end
// (C8): a direct command loop over internal/hostconn, no GDB in the loop.
package cli

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/esp-rs/esp-serial-dbg/internal/hostconn"
)

// Run drives the REPL against conn until the user types "q" or EOF. Entering
// a command mutes stdout passthrough; an empty line unmutes it again (spec
// §4.8).
func Run(conn *hostconn.Connection, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "(espdbg) ",
		HistoryFile: "",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	conn.SetMuted(true)
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			conn.SetMuted(false)
			continue
		}
		conn.SetMuted(true)

		if quit := dispatch(conn, out, line); quit {
			return nil
		}
	}
}

func dispatch(conn *hostconn.Connection, out io.Writer, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "break":
		err = conn.BreakExecution()
	case "c":
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = conn.Resume(ctx)
	case "set-breakpoint":
		err = cmdSetBreakpoint(conn, args)
	case "clear-breakpoint":
		err = cmdClearBreakpoint(conn, args)
	case "read-memory":
		err = cmdReadMemory(conn, out, args)
	case "write-memory":
		err = cmdWriteMemory(conn, args)
	case "q":
		return true
	default:
		fmt.Fprintf(out, "unknown command: %s\n", cmd)
		return false
	}

	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
	}
	return false
}

func cmdSetBreakpoint(conn *hostconn.Connection, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set-breakpoint <addr> <id>")
	}
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return conn.SetBreakpoint(ctx, uint8(id), uint32(addr))
}

func cmdClearBreakpoint(conn *hostconn.Connection, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: clear-breakpoint <id>")
	}
	id, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return conn.ClearBreakpoint(ctx, uint8(id))
}

func cmdReadMemory(conn *hostconn.Connection, out io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: read-memory <addr> <len>")
	}
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return err
	}
	length, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := conn.ReadMemory(ctx, uint32(addr), uint32(length))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, formatHex(uint32(addr), data))
	return nil
}

func cmdWriteMemory(conn *hostconn.Connection, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write-memory <addr> <b0> <b1> ...")
	}
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return err
	}
	data := make([]byte, len(args)-1)
	for i, s := range args[1:] {
		b, err := strconv.ParseUint(s, 0, 8)
		if err != nil {
			return err
		}
		data[i] = byte(b)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return conn.WriteMemory(ctx, uint32(addr), data)
}

func formatHex(addr uint32, data []byte) string {
	var sb strings.Builder
	for i := 0; i < len(data); i += 4 {
		end := i + 4
		if end > len(data) {
			end = len(data)
		}
		word := make([]byte, 4)
		copy(word, data[i:end])
		fmt.Fprintf(&sb, "%08x: %08x\n", addr+uint32(i), binary.LittleEndian.Uint32(word))
	}
	return strings.TrimRight(sb.String(), "\n")
}
