package reporter

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
)

// TerminalReporter writes human-facing progress to the terminal, in the
// same colorized style as the teacher's terminal reporter: each report
// line overwrites the previous one (carriage return, no newline) so the
// display behaves like ffmpeg's own single-line progress.
type TerminalReporter struct {
	mu   sync.Mutex
	last int // length of the last line written, for clean overwrite

	cyan   *color.Color
	yellow *color.Color
	red    *color.Color
	bold   *color.Color
}

// NewTerminalReporter returns a TerminalReporter writing to stderr.
func NewTerminalReporter() *TerminalReporter {
	return &TerminalReporter{
		cyan:   color.New(color.FgCyan, color.Bold),
		yellow: color.New(color.FgYellow, color.Bold),
		red:    color.New(color.FgRed, color.Bold),
		bold:   color.New(color.Bold),
	}
}

func (r *TerminalReporter) Report(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pad := r.last - len(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(os.Stderr, "\r%s%*s", line, pad, "")
	r.last = len(line)
}

func (r *TerminalReporter) Warning(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(os.Stderr)
	r.yellow.Fprintf(os.Stderr, "WARN: %s\n", message)
	r.last = 0
}

func (r *TerminalReporter) Fatal(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(os.Stderr)
	r.red.Fprintf(os.Stderr, "ERROR: %s\n", message)
	r.last = 0
}

func (r *TerminalReporter) Banner(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cyan.Fprintln(os.Stderr, message)
}

var _ Reporter = (*TerminalReporter)(nil)
