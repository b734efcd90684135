// Package config provides configuration types and defaults for the
// transcode orchestrator (spec.md §6).
package config

import "fmt"

// Default constants (spec.md §6).
const (
	// DefaultStatsPeriod is the minimum gap between periodic reports
	// (spec.md §4.3), one second expressed in microseconds.
	DefaultStatsPeriod int64 = 1_000_000

	// DefaultMaxErrorRate disables the decode-error-rate ceiling.
	DefaultMaxErrorRate float64 = 0

	// PrintStatsQuiet, PrintStatsStderr, PrintStatsLog are the three
	// print_stats levels spec.md §6 names.
	PrintStatsQuiet  int = 0
	PrintStatsStderr int = 1
	PrintStatsLog    int = 2
)

// Config holds all configuration for one transcode run (spec.md §6).
type Config struct {
	// Log directory.
	LogDir string

	// Interactive console (spec.md §4.9).
	StdinInteraction bool

	// Benchmarking.
	DoBenchmark    bool
	DoBenchmarkAll bool

	// Reporting (spec.md §4.3).
	PrintStats  int
	StatsPeriod int64 // microseconds

	// Timestamp handling (spec.md §4.5, §9).
	CopyTS      bool
	StartAtZero bool

	// Error handling (spec.md §4.8).
	ExitOnError  bool
	MaxErrorRate float64

	// Machine-readable progress sink (spec.md §6); empty disables it.
	VstatsFilename string

	// RecordingTime caps how much presentation time of an input is read;
	// zero means unbounded (spec.md §3, InputFile.recording_time).
	RecordingTime int64 // microseconds, 0 = unbounded

	// Debug options.
	Verbose bool
}

// Option mutates a Config during construction, in the teacher's
// functional-options style.
type Option func(*Config)

// WithStdinInteraction toggles the interactive command console.
func WithStdinInteraction(enabled bool) Option {
	return func(c *Config) { c.StdinInteraction = enabled }
}

// WithBenchmark toggles benchmark mode (do_benchmark / do_benchmark_all).
func WithBenchmark(single, all bool) Option {
	return func(c *Config) { c.DoBenchmark = single; c.DoBenchmarkAll = all }
}

// WithPrintStats sets the print_stats level (0/1/2, spec.md §6).
func WithPrintStats(level int) Option {
	return func(c *Config) { c.PrintStats = level }
}

// WithStatsPeriod sets the minimum gap between periodic reports, in
// microseconds.
func WithStatsPeriod(us int64) Option {
	return func(c *Config) { c.StatsPeriod = us }
}

// WithCopyTS toggles copy_ts / start_at_zero together, since
// start_at_zero is only meaningful when copy_ts is set (spec.md §9).
func WithCopyTS(copyTS, startAtZero bool) Option {
	return func(c *Config) { c.CopyTS = copyTS; c.StartAtZero = startAtZero }
}

// WithExitOnError toggles exit_on_error.
func WithExitOnError(enabled bool) Option {
	return func(c *Config) { c.ExitOnError = enabled }
}

// WithMaxErrorRate sets the decode-error-rate ceiling in [0,1]; zero
// disables the check (spec.md §6).
func WithMaxErrorRate(rate float64) Option {
	return func(c *Config) { c.MaxErrorRate = rate }
}

// WithVstatsFilename sets the machine-readable progress sink path.
func WithVstatsFilename(path string) Option {
	return func(c *Config) { c.VstatsFilename = path }
}

// WithRecordingTime sets the recording-time cap in microseconds; zero
// means unbounded.
func WithRecordingTime(us int64) Option {
	return func(c *Config) { c.RecordingTime = us }
}

// NewConfig creates a Config with spec.md §6's defaults, then applies
// opts in order.
func NewConfig(logDir string, opts ...Option) *Config {
	c := &Config{
		LogDir:       logDir,
		PrintStats:   PrintStatsStderr,
		StatsPeriod:  DefaultStatsPeriod,
		MaxErrorRate: DefaultMaxErrorRate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.PrintStats < PrintStatsQuiet || c.PrintStats > PrintStatsLog {
		return fmt.Errorf("print_stats must be 0, 1, or 2, got %d", c.PrintStats)
	}
	if c.StatsPeriod < 0 {
		return fmt.Errorf("stats_period must be non-negative, got %d", c.StatsPeriod)
	}
	if c.MaxErrorRate < 0 || c.MaxErrorRate > 1 {
		return fmt.Errorf("max_error_rate must be in [0,1], got %g", c.MaxErrorRate)
	}
	if c.RecordingTime < 0 {
		return fmt.Errorf("recording_time must be non-negative, got %d", c.RecordingTime)
	}
	if c.StartAtZero && !c.CopyTS {
		return fmt.Errorf("start_at_zero requires copy_ts to be enabled")
	}
	return nil
}
