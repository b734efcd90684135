package timing

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/five82/xcore/internal/xcgraph"
)

func TestRescaleQIdentity(t *testing.T) {
	base := Rational{1, 1000}
	got := RescaleQ(1500, base, base)
	if got != 1500 {
		t.Fatalf("got %d, want 1500", got)
	}
}

func TestRescaleQToMicros(t *testing.T) {
	// 90kHz MPEG-TS time base -> microseconds.
	got := RescaleToMicros(90000, Rational{1, 90000})
	if got != 1_000_000 {
		t.Fatalf("got %d, want 1000000", got)
	}
}

func TestRescaleQUnsetPropagates(t *testing.T) {
	got := RescaleQ(Unset, Rational{1, 90000}, MicrosecondBase)
	if got != Unset {
		t.Fatalf("got %d, want Unset", got)
	}
}

func TestFormatTimestampZero(t *testing.T) {
	if got := FormatTimestamp(0); got != "00:00:00.000000" {
		t.Fatalf("got %q", got)
	}
	if got := FormatTimestampCenti(0); got != "00:00:00.00" {
		t.Fatalf("got %q", got)
	}
}

func TestCopyTSFirstPTSIsFirstNonSentinel(t *testing.T) {
	var l CopyTSLatch
	// A PTS of exactly 1 (the literal the spec warns against
	// transcribing) must latch just like any other real value.
	l.Observe(1)
	if !l.latched || l.firstPTS != 1 {
		t.Fatalf("expected latch at pts=1, got latched=%v first=%d", l.latched, l.firstPTS)
	}
	if got := l.Adjust(1, true); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestCopyTSLatchIgnoresSentinel(t *testing.T) {
	var l CopyTSLatch
	l.Observe(math.MinInt64 + 1)
	if l.latched {
		t.Fatal("sentinel value must not latch")
	}
	l.Observe(42)
	if !l.latched || l.firstPTS != 42 {
		t.Fatalf("expected latch at 42, got %+v", l)
	}
}

func TestFormatHumanLineUnknownValues(t *testing.T) {
	s := Snapshot{FrameCount: -1, FPS: math.NaN(), Speed: math.NaN()}
	line := FormatHumanLine(s, 0)
	if !strings.Contains(line, "frame=N/A") || !strings.Contains(line, "fps=N/A") || !strings.Contains(line, "speed=N/Ax") {
		t.Fatalf("expected N/A substitutions, got %q", line)
	}
}

func TestFormatHumanLineLastSuffix(t *testing.T) {
	s := Snapshot{FrameCount: 3, FPS: 1, IsLast: true}
	line := FormatHumanLine(s, 0)
	if !strings.HasSuffix(line, "L") {
		t.Fatalf("expected trailing L, got %q", line)
	}
}

func TestReportPolicySuppressesFirstReportUntilDumped(t *testing.T) {
	reg := xcgraph.NewRegistry()
	of := xcgraph.NewOutputFile(0)
	of.AddStream(xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo))
	reg.AddOutputFile(of)

	p := NewReportPolicy(true, false, time.Second, time.Now())
	if p.ShouldEmit(reg, false, time.Now()) {
		t.Fatal("expected suppression before any stream initialized")
	}

	of.StreamAt(0).SetInitialized(true)
	if !p.ShouldEmit(reg, false, time.Now()) {
		t.Fatal("expected report once all streams initialized")
	}
}

func TestReportPolicyRespectsStatsPeriod(t *testing.T) {
	reg := xcgraph.NewRegistry()
	p := NewReportPolicy(true, false, time.Hour, time.Now())
	now := time.Now()
	if !p.ShouldEmit(reg, false, now) {
		t.Fatal("expected first report to fire (no streams to wait on)")
	}
	p.MarkEmitted(now)
	if p.ShouldEmit(reg, false, now.Add(time.Second)) {
		t.Fatal("expected suppression within stats_period")
	}
	if !p.ShouldEmit(reg, false, now.Add(2*time.Hour)) {
		t.Fatal("expected report once stats_period has elapsed")
	}
}

func TestReportPolicyAlwaysEmitsFinalReport(t *testing.T) {
	reg := xcgraph.NewRegistry()
	p := NewReportPolicy(false, false, time.Hour, time.Now())
	if !p.ShouldEmit(reg, true, time.Now()) {
		t.Fatal("terminal report must always emit")
	}
}
