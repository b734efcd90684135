package timing

import (
	"math"
	"time"

	"github.com/five82/xcore/internal/xcgraph"
)

// ReportPolicy gates print_report per spec.md §4.3.
type ReportPolicy struct {
	PrintStats   bool // stats printing enabled (print_stats != 0)
	HasProgress  bool // machine-readable progress sink is configured
	StatsPeriod  time.Duration

	startWall time.Time
	lastEmit  time.Time
	emitted   bool
	copyTS    CopyTSLatch
}

// NewReportPolicy constructs a policy; startWall should be the moment the
// transcode loop began (used for the speed = pts/elapsed computation).
func NewReportPolicy(printStats, hasProgress bool, statsPeriod time.Duration, startWall time.Time) *ReportPolicy {
	return &ReportPolicy{
		PrintStats:  printStats,
		HasProgress: hasProgress,
		StatsPeriod: statsPeriod,
		startWall:   startWall,
	}
}

// ShouldEmit reports whether a report should be produced right now, given
// the registry's dump state and whether this is the terminal report.
func (p *ReportPolicy) ShouldEmit(reg *xcgraph.Registry, isLast bool, now time.Time) bool {
	if !p.PrintStats && !p.HasProgress && !isLast {
		return false
	}

	if !p.emitted {
		// The very first report is suppressed until every output file
		// has reached initialized state.
		if !reg.AllOutputStreamsDumped() && !isLast {
			return false
		}
	} else if !isLast {
		if p.StatsPeriod > 0 && now.Sub(p.lastEmit) < p.StatsPeriod {
			return false
		}
	}

	return true
}

// MarkEmitted records that a report was just produced at `now`.
func (p *ReportPolicy) MarkEmitted(now time.Time) {
	p.emitted = true
	p.lastEmit = now
}

// PTSForDisplay computes the copy-ts-adjusted presentation time in
// microseconds from the registry's current max last_mux_dts, per §4.3:
// "if copy-timestamp mode is on, subtracts the first such observed PTS".
func (p *ReportPolicy) PTSForDisplay(reg *xcgraph.Registry, copyTS bool) int64 {
	raw := MaxLastMuxDTS(reg)
	if raw == Unset {
		return 0
	}
	p.copyTS.Observe(raw)
	adjusted := p.copyTS.Adjust(raw, copyTS)
	if adjusted < 0 {
		return 0
	}
	return adjusted
}

// Speed computes pts/AV_TIME_BASE/real_elapsed, or NaN if undeterminable.
func (p *ReportPolicy) Speed(ptsMicros int64, now time.Time) float64 {
	elapsed := now.Sub(p.startWall).Seconds()
	if elapsed <= 0 || ptsMicros <= 0 {
		return math.NaN()
	}
	return (float64(ptsMicros) / 1_000_000) / elapsed
}
