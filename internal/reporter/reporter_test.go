package reporter

import (
	"strings"
	"testing"
)

type recordingReporter struct {
	reports, warnings, fatals, banners []string
}

func (r *recordingReporter) Report(s string)  { r.reports = append(r.reports, s) }
func (r *recordingReporter) Warning(s string) { r.warnings = append(r.warnings, s) }
func (r *recordingReporter) Fatal(s string)   { r.fatals = append(r.fatals, s) }
func (r *recordingReporter) Banner(s string)  { r.banners = append(r.banners, s) }

func TestCompositeReporterFansOutToAllMembers(t *testing.T) {
	a, b := &recordingReporter{}, &recordingReporter{}
	c := NewCompositeReporter(a, b)

	c.Report("frame=1")
	c.Warning("low disk space")
	c.Fatal("decode error rate exceeded")
	c.Banner("xcore starting")

	for _, r := range []*recordingReporter{a, b} {
		if len(r.reports) != 1 || r.reports[0] != "frame=1" {
			t.Fatalf("expected Report forwarded, got %+v", r.reports)
		}
		if len(r.warnings) != 1 || len(r.fatals) != 1 || len(r.banners) != 1 {
			t.Fatalf("expected one of each call forwarded, got %+v", r)
		}
	}
}

func TestNullReporterDiscardsEverything(t *testing.T) {
	var n NullReporter
	n.Report("x")
	n.Warning("y")
	n.Fatal("z")
	n.Banner("w")
}

func TestLogReporterWritesTimestampedLines(t *testing.T) {
	var buf strings.Builder
	r := NewLogReporter(&buf)
	r.Report("frame=10 fps=30")
	r.Warning("stream unavailable")

	out := buf.String()
	if !strings.Contains(out, "[INFO] frame=10 fps=30") {
		t.Fatalf("expected an INFO line, got %q", out)
	}
	if !strings.Contains(out, "[WARN] stream unavailable") {
		t.Fatalf("expected a WARN line, got %q", out)
	}
}
