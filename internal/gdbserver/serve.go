package gdbserver

import (
	"context"
	"log/slog"

	"github.com/esp-rs/esp-serial-dbg/internal/chip"
	"github.com/esp-rs/esp-serial-dbg/internal/hostconn"
	"github.com/esp-rs/esp-serial-dbg/internal/rsp"
)

// Run is the GDB subcommand's entry point: break the target in, build a
// Target adapter around it, and serve RSP on addr until the GDB client
// disconnects or ctx is cancelled. On return it clears every breakpoint it
// installed and resumes the target, best-effort, matching the spec's
// teardown contract (§5 "Cancellation").
func Run(ctx context.Context, conn *hostconn.Connection, c chip.Chip, addr string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	if err := conn.BreakExecution(); err != nil {
		return err
	}
	if _, err := conn.WaitHitBreakpoint(ctx); err != nil {
		return err
	}

	target := New(conn, c)
	log.Info("gdb target ready, waiting for client", "addr", addr)

	serveErr := make(chan error, 1)
	go func() { serveErr <- rsp.Serve(addr, target, log) }()

	select {
	case err := <-serveErr:
		target.shutdownCleanup(log)
		return err
	case <-ctx.Done():
		target.shutdownCleanup(log)
		return ctx.Err()
	}
}

// shutdownCleanup removes every installed breakpoint and resumes the
// target, ignoring failures (spec §5: "best-effort; failures ignored").
func (t *Target) shutdownCleanup(log *slog.Logger) {
	t.mu.Lock()
	sw := append([]swBreakpoint(nil), t.sw...)
	hw := append([]hwBreakpoint(nil), t.hw...)
	t.mu.Unlock()

	for _, bp := range sw {
		if err := t.removeSWBreakpoint(bp.addr); err != nil {
			log.Warn("shutdown: failed to remove software breakpoint", "addr", bp.addr, "err", err)
		}
	}
	for _, bp := range hw {
		if err := t.removeHWBreakpoint(bp.addr); err != nil {
			log.Warn("shutdown: failed to remove hardware breakpoint", "addr", bp.addr, "err", err)
		}
	}

	resumeCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := t.conn.Resume(resumeCtx); err != nil {
		log.Warn("shutdown: failed to resume target", "err", err)
	}
}
