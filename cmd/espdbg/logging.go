package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	slogmulti "github.com/samber/slog-multi"
)

// colorHandler renders log records the way the teacher's diagnostics did
// (a short, colorized line to stderr) but through slog so the rest of the
// program gets structured fields for free.
type colorHandler struct {
	out   io.Writer
	attrs []slog.Attr
}

func newColorHandler(out io.Writer) *colorHandler {
	return &colorHandler{out: out}
}

func (h *colorHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	level := levelColor(r.Level).Sprint(r.Level.String())
	fmt.Fprintf(h.out, "%s %s", level, r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.out, " %s=%v", a.Key, a.Value)
		return true
	})
	fmt.Fprintln(h.out)
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{out: h.out, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h *colorHandler) WithGroup(string) slog.Handler { return h }

func levelColor(l slog.Level) *color.Color {
	switch {
	case l >= slog.LevelError:
		return color.New(color.FgRed, color.Bold)
	case l >= slog.LevelWarn:
		return color.New(color.FgYellow)
	case l >= slog.LevelInfo:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}

// newLogger builds the program-wide logger: a colorized stderr sink, fanned
// out (via slog-multi) to a plain-text file sink whenever logFile is set.
func newLogger(levelName, logFile string) (*slog.Logger, error) {
	level := parseLevel(levelName)
	handlers := []slog.Handler{newColorHandler(os.Stderr)}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}

	fanout := slogmulti.Fanout(handlers...)
	return slog.New(fanout), nil
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
