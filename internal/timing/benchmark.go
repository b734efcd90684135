package timing

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Usage is a snapshot of real/user/system microseconds, the three
// counters spec.md §4.3 says update_benchmark maintains.
type Usage struct {
	RealUs, UserUs, SysUs int64
}

// SampleUsage reads current process resource usage via getrusage(2), the
// same syscall-level approach the teacher uses for disk-space probing
// (golang.org/x/sys/unix.Statfs in internal/util/tempfile.go) generalized
// to CPU accounting.
func SampleUsage(startWall time.Time) Usage {
	var ru unix.Rusage
	_ = unix.Getrusage(unix.RUSAGE_SELF, &ru)
	return Usage{
		RealUs: time.Since(startWall).Microseconds(),
		UserUs: ru.Utime.Sec*1_000_000 + int64(ru.Utime.Usec),
		SysUs:  ru.Stime.Sec*1_000_000 + int64(ru.Stime.Usec),
	}
}

// Benchmarker maintains a running "since last call" snapshot per label,
// backing update_benchmark(label) from spec.md §4.3.
type Benchmarker struct {
	enabled  bool
	startWall time.Time
	last     map[string]Usage
	logf     func(format string, args ...any)
}

// NewBenchmarker creates a Benchmarker. enabled corresponds to
// do_benchmark_all; logf receives the formatted diff line when enabled.
func NewBenchmarker(enabled bool, logf func(format string, args ...any)) *Benchmarker {
	return &Benchmarker{
		enabled:   enabled,
		startWall: time.Now(),
		last:      make(map[string]Usage),
		logf:      logf,
	}
}

// Update snapshots the difference since the previous call with this label
// and logs it iff benchmarking-all is on. For the first call with a label
// it returns wall time since construction and the process's total user
// and system time so far.
func (b *Benchmarker) Update(label string) Usage {
	now := SampleUsage(b.startWall)
	prev, ok := b.last[label]
	b.last[label] = now

	diff := now
	if ok {
		diff = Usage{
			RealUs: now.RealUs - prev.RealUs,
			UserUs: now.UserUs - prev.UserUs,
			SysUs:  now.SysUs - prev.SysUs,
		}
	}

	if b.enabled && b.logf != nil {
		b.logf("bench: %-16s utime=%s stime=%s rtime=%s",
			label,
			fmtMicros(diff.UserUs), fmtMicros(diff.SysUs), fmtMicros(diff.RealUs))
	}

	return diff
}

func fmtMicros(us int64) string {
	return fmt.Sprintf("%.3fs", float64(us)/1_000_000)
}
