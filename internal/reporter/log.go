package reporter

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// LogReporter writes every report/warning/fatal/banner line to a log
// file, timestamped, in the teacher's plain-text log line style.
type LogReporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewLogReporter returns a LogReporter writing to w.
func NewLogReporter(w io.Writer) *LogReporter {
	return &LogReporter{w: w}
}

func (r *LogReporter) log(level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(r.w, "%s [%s] %s\n", timestamp, level, message)
}

func (r *LogReporter) Report(line string)     { r.log("INFO", line) }
func (r *LogReporter) Warning(message string) { r.log("WARN", message) }
func (r *LogReporter) Fatal(message string)   { r.log("ERROR", message) }
func (r *LogReporter) Banner(message string)  { r.log("INFO", message) }

var _ Reporter = (*LogReporter)(nil)
