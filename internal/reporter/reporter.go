// Package reporter implements spec.md §4.3's human-facing output: the
// periodic report line, startup banner, and warning/error surfacing.
// The machine-readable progress sink is a distinct concern, handled by
// internal/timing.ProgressSink (SPEC_FULL.md §2).
package reporter

// Reporter is the narrow surface the supervisor and console need: one
// line per periodic report, plus warnings and fatal errors that don't
// fit the report line's fixed format.
type Reporter interface {
	// Report emits one fully formatted report line (spec.md §4.3),
	// replacing the previous line on a terminal or appending in a log.
	Report(line string)
	// Warning surfaces a non-fatal condition (e.g. a console command
	// naming an unknown target, spec.md §4.9).
	Warning(message string)
	// Fatal surfaces the line that precedes a non-zero exit (spec.md §9
	// scenario S4's decode-error-rate message, for example).
	Fatal(message string)
	// Banner prints the one-line startup banner shown before the first
	// report (spec.md §4.8's Run, when Interactive).
	Banner(message string)
}

// NullReporter discards everything; cmd/xcore uses it when print_stats
// is 0 (quiet).
type NullReporter struct{}

func (NullReporter) Report(string)  {}
func (NullReporter) Warning(string) {}
func (NullReporter) Fatal(string)   {}
func (NullReporter) Banner(string)  {}

var _ Reporter = NullReporter{}

// CompositeReporter fans a call out to every member reporter, in the
// teacher's CompositeReporter style (terminal + log simultaneously).
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter returns a Reporter that forwards every call to
// each of rs in order.
func NewCompositeReporter(rs ...Reporter) *CompositeReporter {
	return &CompositeReporter{reporters: rs}
}

func (c *CompositeReporter) Report(line string) {
	for _, r := range c.reporters {
		r.Report(line)
	}
}

func (c *CompositeReporter) Warning(message string) {
	for _, r := range c.reporters {
		r.Warning(message)
	}
}

func (c *CompositeReporter) Fatal(message string) {
	for _, r := range c.reporters {
		r.Fatal(message)
	}
}

func (c *CompositeReporter) Banner(message string) {
	for _, r := range c.reporters {
		r.Banner(message)
	}
}

var _ Reporter = (*CompositeReporter)(nil)
