// Package chooser implements spec.md §4.7: picking which OutputStream
// the supervisor should advance next.
package chooser

import (
	"math"
	"sync"

	"github.com/five82/xcore/internal/iter"
	"github.com/five82/xcore/internal/xcgraph"
)

// Status mirrors the three-way result of spec.md §4.7.
type Status int

const (
	StatusOK Status = iota
	StatusAgain
	StatusEOF
)

// unsetLogger makes the "log a debug message once" requirement testable
// without wiring a real logger package dependency into this narrowly
// scoped component.
type unsetLogger struct {
	mu     sync.Mutex
	warned map[*xcgraph.OutputStream]bool
}

func newUnsetLogger() *unsetLogger {
	return &unsetLogger{warned: make(map[*xcgraph.OutputStream]bool)}
}

func (l *unsetLogger) warnOnce(ost *xcgraph.OutputStream, emit func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.warned[ost] {
		return
	}
	l.warned[ost] = true
	if emit != nil {
		emit()
	}
}

// Chooser holds the once-only debug-log state across calls (spec.md
// §4.7's "log a debug message once" per stream).
type Chooser struct {
	logger  *unsetLogger
	OnUnset func(ost *xcgraph.OutputStream) // optional debug-log hook
}

// New returns a Chooser ready to scan reg's output streams.
func New() *Chooser {
	return &Chooser{logger: newUnsetLogger()}
}

// Choose scans every OutputStream in reg and returns the winner per
// spec.md §4.7's tie-break and minimum-metric rules.
func (c *Chooser) Choose(reg *xcgraph.Registry) (*xcgraph.OutputStream, Status) {
	var best *xcgraph.OutputStream
	bestMetric := math.Inf(1)
	found := false

	for ost := iter.OutputStreamIter(reg, nil); ost != nil; ost = iter.OutputStreamIter(reg, ost) {
		if ost.IsFinished() {
			continue
		}

		if !ost.Initialized() && !ost.InputsDone() {
			return ost, StatusOK
		}

		metric, ok := c.currentTime(ost)
		if !ok {
			continue
		}

		if !found || metric < bestMetric {
			best = ost
			bestMetric = metric
			found = true
		}
	}

	if best == nil {
		return nil, StatusEOF
	}
	if best.Unavailable() {
		return best, StatusAgain
	}
	return best, StatusOK
}

// currentTime computes an OutputStream's "current time" metric: the
// filter's last PTS if filter-backed (skipped if unset), otherwise
// last_mux_dts (treated as -inf, logged once, if never muxed).
func (c *Chooser) currentTime(ost *xcgraph.OutputStream) (float64, bool) {
	if ost.Filter != nil {
		pts, ok := ost.Filter.LastPTS()
		if !ok {
			return 0, false
		}
		return float64(pts), true
	}

	dts, ok := ost.LastMuxDTS()
	if !ok {
		c.logger.warnOnce(ost, func() {
			if c.OnUnset != nil {
				c.OnUnset(ost)
			}
		})
		return math.Inf(-1), true
	}
	return float64(dts), true
}
