// Package term implements spec.md §4.1: signal handling and TTY raw-mode
// lifecycle for the supervisor. Signals are handled at most once for the
// graceful path; a fourth signal forces an immediate, destructor-free exit.
package term

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	xterm "golang.org/x/term"
	"golang.org/x/sys/unix"
)

// exitSignalStorm is the fixed exit code spec.md §4.1 mandates for the
// fourth signal.
const exitSignalStorm = 123

// consoleWaitTimeout bounds how long Install's console-control-handler
// path busy-waits on Exited before giving up (spec.md §4.1, "~5 seconds").
const consoleWaitTimeout = 5 * time.Second

// ioctlGetTermios/ioctlSetTermios are the Linux termios ioctl requests;
// this package assumes Linux.
const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)

// Controller owns the process's signal handlers and the TTY's raw-mode
// state. Exactly one Controller should exist per process.
type Controller struct {
	sigCh chan os.Signal
	count atomic.Int32

	ttyMu    sync.Mutex
	ttyFd    int
	ttyHave  bool
	ttyState *xterm.State
	// ttyOrig is fetched via unix.IoctlGetTermios before raw mode is
	// entered and restored via unix.IoctlSetTermios directly — a
	// pre-registered restoration path that avoids xterm's allocation on
	// the signal-storm exit path (spec.md §9).
	ttyOrig *unix.Termios

	// Exited mirrors ffmpeg_exited: the console-control-handler path
	// busy-waits on this so the main goroutine gets a chance to finalize.
	Exited atomic.Bool

	stdinMu  sync.Mutex
	stdinBuf chan byte
}

// New returns an idle Controller. Call Install to begin handling signals.
func New() *Controller {
	return &Controller{}
}

// Install installs handlers for interrupt, termination, quit, and
// CPU-limit-exceeded signals, ignores broken-pipe, and returns a context
// canceled on the first signal received. On the fourth signal Install's
// goroutine writes a fixed diagnostic to stderr and calls os.Exit(123)
// directly — no deferred cleanup runs, matching spec.md's "without
// running destructors".
func (c *Controller) Install(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	c.sigCh = make(chan os.Signal, 8)
	signal.Notify(c.sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGXCPU)
	signal.Ignore(syscall.SIGPIPE)

	go func() {
		for range c.sigCh {
			n := c.count.Add(1)
			if n == 1 {
				c.RestoreTTY()
				cancel()
			}
			if n >= 4 {
				fmt.Fprintln(os.Stderr, "Received signal 4 times, forcing immediate exit")
				os.Exit(exitSignalStorm)
			}
		}
	}()

	return ctx, cancel
}

// SignalCount reports how many signals have been received so far.
func (c *Controller) SignalCount() int32 { return c.count.Load() }

// Interrupted reports whether at least one termination signal has arrived
// — the caller uses this to choose exit code 255 (spec.md §4.8).
func (c *Controller) Interrupted() bool { return c.count.Load() > 0 }

// EnableRawModeIfInteractive enters TTY raw mode on fd iff wantInteractive
// is true and fd refers to a terminal. It is a no-op otherwise. While raw
// mode is held a further call is a no-op; after RestoreTTY a call enters
// raw mode again (the console does this around its command prompt).
func (c *Controller) EnableRawModeIfInteractive(fd int, wantInteractive bool) error {
	if !wantInteractive || !xterm.IsTerminal(fd) {
		return nil
	}

	c.ttyMu.Lock()
	defer c.ttyMu.Unlock()
	if c.ttyHave {
		return nil
	}

	orig, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return fmt.Errorf("term: read termios: %w", err)
	}

	state, err := xterm.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("term: enter raw mode: %w", err)
	}
	c.ttyFd = fd
	c.ttyState = state
	c.ttyOrig = orig
	c.ttyHave = true
	return nil
}

// RestoreTTY restores the terminal to its pre-raw-mode state, if raw mode
// was ever entered. It is safe to call multiple times and from a signal
// handler goroutine — the guarded flag makes the first caller win and
// every exit path (normal, error, or signal) can call it unconditionally.
// It restores via a direct unix.IoctlSetTermios rather than xterm.Restore,
// using the termios snapshot taken before raw mode was entered — the
// pre-registered restoration path spec.md §9 calls for on the
// signal-storm exit, where nothing after the ioctl is trusted to run.
func (c *Controller) RestoreTTY() {
	c.ttyMu.Lock()
	defer c.ttyMu.Unlock()
	if !c.ttyHave {
		return
	}
	if c.ttyOrig != nil {
		_ = unix.IoctlSetTermios(c.ttyFd, ioctlSetTermios, c.ttyOrig)
	} else {
		_ = xterm.Restore(c.ttyFd, c.ttyState)
	}
	c.ttyHave = false
}

// WaitExited busy-waits up to consoleWaitTimeout for Exited to become
// true — the console-control-handler path spec.md §4.1 describes for
// platforms with one (e.g. a Windows service-style shutdown event),
// giving the main goroutine a chance to finalize before the handler
// returns control to the OS.
func (c *Controller) WaitExited() {
	deadline := time.Now().Add(consoleWaitTimeout)
	for !c.Exited.Load() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
}

// StartStdinReader begins a background read loop over fd so ReadByte can
// be non-blocking. Call once before any ReadByte call; safe to skip
// entirely if interactive console input was never requested.
func (c *Controller) StartStdinReader(f *os.File) {
	c.stdinMu.Lock()
	defer c.stdinMu.Unlock()
	if c.stdinBuf != nil {
		return
	}
	c.stdinBuf = make(chan byte, 64)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := f.Read(buf)
			if n == 1 {
				c.stdinBuf <- buf[0]
			}
			if err != nil {
				close(c.stdinBuf)
				return
			}
		}
	}()
}

// ReadByte performs a non-blocking read of one byte previously buffered
// by StartStdinReader. It returns -1 on EOF or when no byte is currently
// available (spec.md §4.1).
func (c *Controller) ReadByte() int {
	c.stdinMu.Lock()
	ch := c.stdinBuf
	c.stdinMu.Unlock()
	if ch == nil {
		return -1
	}
	select {
	case b, ok := <-ch:
		if !ok {
			return -1
		}
		return int(b)
	default:
		return -1
	}
}
