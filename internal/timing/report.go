package timing

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/five82/xcore/internal/xcgraph"
)

// QualitySample is one video output stream's contribution to the human
// report line (spec.md §4.3: "For video output streams the first one
// contributes frame/fps/quality; subsequent video streams contribute
// only q-values").
type QualitySample struct {
	FileIndex, StreamIndex int
	Quality                float64 // negative means unknown ("q=-1" -> N/A)
}

// Snapshot is everything print_report needs to render one report.
type Snapshot struct {
	FrameCount int64
	FPS        float64 // NaN if unknown
	Qualities  []QualitySample
	TotalSize  uint64
	DupFrames  int64
	DropFrames int64
	Speed      float64 // NaN if unknown
	IsLast     bool
}

// ProgressSink writes the machine-readable -progress block described in
// spec.md §6. One Write call emits one complete block, always ending
// with progress=continue or (on the final call) progress=end.
type ProgressSink struct {
	w io.Writer
}

func NewProgressSink(w io.Writer) *ProgressSink { return &ProgressSink{w: w} }

// Write renders one key=value block for the given snapshot and PTS
// (microseconds, already copy-ts-adjusted by the caller).
func (p *ProgressSink) Write(s Snapshot, ptsMicros int64) error {
	if p == nil || p.w == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "frame=%d\n", s.FrameCount)
	fmt.Fprintf(&b, "fps=%s\n", formatFloat(s.FPS, 1))
	for _, q := range s.Qualities {
		fmt.Fprintf(&b, "stream_%d_%d_q=%s\n", q.FileIndex, q.StreamIndex, formatFloat(q.Quality, 1))
	}
	fmt.Fprintf(&b, "bitrate=%s\n", formatBitrate(s.TotalSize, ptsMicros))
	fmt.Fprintf(&b, "total_size=%d\n", s.TotalSize)
	fmt.Fprintf(&b, "out_time_us=%d\n", ptsMicros)
	fmt.Fprintf(&b, "out_time_ms=%d\n", ptsMicros)
	fmt.Fprintf(&b, "out_time=%s\n", FormatTimestamp(ptsMicros))
	fmt.Fprintf(&b, "dup_frames=%d\n", s.DupFrames)
	fmt.Fprintf(&b, "drop_frames=%d\n", s.DropFrames)
	fmt.Fprintf(&b, "speed=%s\n", formatSpeed(s.Speed))
	if s.IsLast {
		b.WriteString("progress=end\n")
	} else {
		b.WriteString("progress=continue\n")
	}

	_, err := io.WriteString(p.w, b.String())
	return err
}

// FormatHumanLine renders the human-readable report line (spec.md §4.3):
//
//	frame=N fps=F q=Q size=SkB time=HH:MM:SS.cs bitrate=Rkbits/s [dup=D drop=X] speed=Sx
//
// with N/A substituted where values are unknown, and an "L" suffix on the
// final line.
func FormatHumanLine(s Snapshot, ptsMicros int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "frame=%s fps=%s", formatInt(s.FrameCount), formatFloat(s.FPS, 1))

	if len(s.Qualities) > 0 {
		fmt.Fprintf(&b, " q=%s", formatFloat(s.Qualities[0].Quality, 1))
	} else {
		fmt.Fprintf(&b, " q=N/A")
	}
	for _, q := range s.Qualities[minInt(1, len(s.Qualities)):] {
		fmt.Fprintf(&b, " q=%s", formatFloat(q.Quality, 1))
	}

	fmt.Fprintf(&b, " size=%skB", formatInt(int64(s.TotalSize/1000)))
	fmt.Fprintf(&b, " time=%s", FormatTimestampCenti(ptsMicros))
	fmt.Fprintf(&b, " bitrate=%skbits/s", formatBitrate(s.TotalSize, ptsMicros))

	if s.DupFrames != 0 || s.DropFrames != 0 {
		fmt.Fprintf(&b, " dup=%d drop=%d", s.DupFrames, s.DropFrames)
	}

	fmt.Fprintf(&b, " speed=%sx", formatSpeed(s.Speed))

	if s.IsLast {
		b.WriteString("L")
	}
	return b.String()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func formatInt(v int64) string {
	if v < 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d", v)
}

func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return fmt.Sprintf("%.*f", prec, v)
}

func formatBitrate(totalSize uint64, ptsMicros int64) string {
	if ptsMicros <= 0 {
		return "N/A"
	}
	bitrate := float64(totalSize) * 8 / (float64(ptsMicros) / 1000)
	return fmt.Sprintf("%.1f", bitrate)
}

func formatSpeed(v float64) string {
	return formatFloat(v, 2)
}

// FormatTimestamp renders microseconds as HH:MM:SS.µµµµµµ, the format
// used in the machine-readable out_time field.
func FormatTimestamp(us int64) string {
	if us < 0 {
		us = 0
	}
	d := time.Duration(us) * time.Microsecond
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	d -= sec * time.Second
	micros := d / time.Microsecond
	return fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, sec, micros)
}

// FormatTimestampCenti renders microseconds as HH:MM:SS.cs (centiseconds),
// the format used in the human-readable report line.
func FormatTimestampCenti(us int64) string {
	if us < 0 {
		us = 0
	}
	d := time.Duration(us) * time.Microsecond
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	d -= sec * time.Second
	centi := d / (10 * time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d.%02d", h, m, sec, centi)
}

// CopyTSLatch tracks the "first non-sentinel PTS" rule from spec.md §9's
// Open Question: the guard that used to read `pts > 1` is really asking
// "has a real PTS been observed yet", not comparing against the literal
// threshold 1.
type CopyTSLatch struct {
	firstPTS int64
	latched  bool
}

// Observe records ptsMicros as the copy-ts zero point the first time a
// non-sentinel value is seen. Subsequent calls are no-ops.
func (c *CopyTSLatch) Observe(ptsMicros int64) {
	if c.latched {
		return
	}
	if ptsMicros > math.MinInt64+1 {
		c.firstPTS = ptsMicros
		c.latched = true
	}
}

// Adjust subtracts the latched first PTS under copy_ts mode so displayed
// time starts at zero; returns ptsMicros unchanged if nothing has latched
// yet or copy_ts is off.
func (c *CopyTSLatch) Adjust(ptsMicros int64, copyTS bool) int64 {
	if !copyTS || !c.latched {
		return ptsMicros
	}
	return ptsMicros - c.firstPTS
}

// MaxLastMuxDTS computes spec.md §4.3's "presentation time" input: the
// max last_mux_dts across every output stream in the registry, or Unset
// if no stream has muxed anything yet.
func MaxLastMuxDTS(reg *xcgraph.Registry) int64 {
	max := Unset
	for _, f := range reg.OutputFilesSnapshot() {
		for i := 0; i < f.NumStreams(); i++ {
			s := f.StreamAt(i)
			if s == nil {
				continue
			}
			if dts, ok := s.LastMuxDTS(); ok && dts > max {
				max = dts
			}
		}
	}
	return max
}
