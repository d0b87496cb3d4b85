package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// stdout carries a page of recognized text; anything past this is noise
	maxStdout = 16 << 20
	maxStderr = 64 << 10
	// time a cancelled tool gets to exit after SIGTERM before it is killed
	killGrace = 2 * time.Second
)

// ErrOutputTooLarge is returned when a tool writes more than the capture limit
// to stdout.
var ErrOutputTooLarge = errors.New("tool output exceeds capture limit")

// Runner executes the external OCR tools. Tests swap in a fake.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

// execRunner runs pdftoppm and tesseract as child processes bound to ctx.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	logger.Debug("running tool", "tool", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	// SIGTERM on cancel; Wait kills the process if it is still up after killGrace
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = killGrace

	out := &cappedBuffer{max: maxStdout}
	errb := &cappedBuffer{max: maxStderr}
	cmd.Stdout = out
	cmd.Stderr = errb

	err := cmd.Run()
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		err = fmt.Errorf("%s interrupted: %w", name, ctxErr)
	}
	if err == nil && out.dropped > 0 {
		err = fmt.Errorf("%s: %w (%d bytes dropped)", name, ErrOutputTooLarge, out.dropped)
	}
	dur := time.Since(start)

	if err != nil {
		logger.Error("tool failed",
			"tool", name,
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		logger.Debug("tool finished",
			"tool", name,
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

// cappedBuffer keeps the first max bytes written and counts the rest, so a
// runaway tool cannot grow memory without bound.
type cappedBuffer struct {
	buf     bytes.Buffer
	max     int
	dropped int64
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.dropped += int64(len(p))
		return len(p), nil
	}
	if len(p) > room {
		b.dropped += int64(len(p) - room)
		_, _ = b.buf.Write(p[:room])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *cappedBuffer) String() string { return b.buf.String() }
func (b *cappedBuffer) Len() int       { return b.buf.Len() }

// truncate clips s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.ToValidUTF8(s[:max], "") + "...(truncated)"
}
