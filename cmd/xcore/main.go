// Package main provides the CLI entry point for xcore, the transcode
// scheduling orchestrator (spec.md, SPEC_FULL.md §2).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/five82/xcore/internal/chooser"
	"github.com/five82/xcore/internal/config"
	"github.com/five82/xcore/internal/console"
	"github.com/five82/xcore/internal/logging"
	"github.com/five82/xcore/internal/packet"
	"github.com/five82/xcore/internal/reporter"
	"github.com/five82/xcore/internal/supervisor"
	"github.com/five82/xcore/internal/syncqueue"
	"github.com/five82/xcore/internal/term"
	"github.com/five82/xcore/internal/timing"
	"github.com/five82/xcore/internal/xcgraph"
)

const (
	appName    = "xcore"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		code, err := runTranscode(os.Args[2:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(code)
	case "version", "--version", "-v":
		fmt.Printf("%s version %s\n", appName, appVersion)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - transcode scheduling orchestrator

Usage:
  %s <command> [options]

Commands:
  run       Run a transcode
  version   Print version information
  help      Show this help message

Run '%s run --help' for run command options.
`, appName, appName, appName)
}

// runArgs holds the parsed arguments for the run command.
type runArgs struct {
	inputs  stringList
	outputs stringList
	logDir  string
	verbose bool
	noLog   bool

	stdinInteraction bool
	doBenchmark      bool
	doBenchmarkAll   bool
	printStats       int
	statsPeriodUs    int64
	copyTS           bool
	startAtZero      bool
	exitOnError      bool
	maxErrorRate     float64
	vstatsFilename   string
	recordingTimeUs  int64
}

// stringList implements flag.Value to support repeatable -i/-o flags
// (spec.md §2: "-i/-input (repeatable), -o/-output (repeatable, paired
// positionally with inputs)").
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runTranscode(args []string) (int, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var ra runArgs
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Run a transcode.

Usage:
  %s run -i INPUT -o OUTPUT [-i INPUT -o OUTPUT ...] [options]

Required (repeatable, paired positionally):
  -i, -input <PATH>      Input file
  -o, -output <PATH>     Output file

Options:
  -l, -log-dir <PATH>    Log directory (defaults to ~/.local/state/xcore/logs)
  -v, -verbose           Enable verbose logging
  -no-log                Disable log file creation

Console and reporting (spec.md §4.9, §4.3, §6):
  -stdin                 Enable the interactive keyboard command console
  -benchmark             Sample resource usage at each checkpoint (do_benchmark); prints nothing on its own
  -benchmark-all         Log resource usage at every checkpoint (do_benchmark_all)
  -stats <0|1|2>         Periodic report level: 0 quiet, 1 stderr, 2 log. Default 1
  -stats-period <us>     Minimum microseconds between periodic reports. Default %d
  -copy-ts               Preserve original timestamps (copy_ts)
  -start-at-zero         Set start_at_zero (requires -copy-ts); report time already starts from zero under -copy-ts
  -exit-on-error         Treat decode errors as fatal (exit_on_error)
  -max-error-rate <R>    Fatal once decode_errors/(decoded+errors) exceeds R, in [0,1]; 0 disables the check
  -vstats <PATH>         Machine-readable -progress sink destination
  -recording-time <us>   Cap read presentation time per input; 0 = unbounded
`, appName, config.DefaultStatsPeriod)
	}

	fs.Var(&ra.inputs, "i", "Input file (repeatable)")
	fs.Var(&ra.inputs, "input", "Input file (repeatable)")
	fs.Var(&ra.outputs, "o", "Output file (repeatable)")
	fs.Var(&ra.outputs, "output", "Output file (repeatable)")
	fs.StringVar(&ra.logDir, "l", "", "Log directory")
	fs.StringVar(&ra.logDir, "log-dir", "", "Log directory")
	fs.BoolVar(&ra.verbose, "v", false, "Verbose logging")
	fs.BoolVar(&ra.verbose, "verbose", false, "Verbose logging")
	fs.BoolVar(&ra.noLog, "no-log", false, "Disable log file creation")

	fs.BoolVar(&ra.stdinInteraction, "stdin", false, "Enable interactive console")
	fs.BoolVar(&ra.doBenchmark, "benchmark", false, "Sample resource usage at each checkpoint")
	fs.BoolVar(&ra.doBenchmarkAll, "benchmark-all", false, "Log resource usage at every checkpoint")
	fs.IntVar(&ra.printStats, "stats", config.PrintStatsStderr, "Periodic report level 0/1/2")
	fs.Int64Var(&ra.statsPeriodUs, "stats-period", config.DefaultStatsPeriod, "Minimum microseconds between reports")
	fs.BoolVar(&ra.copyTS, "copy-ts", false, "Preserve original timestamps")
	fs.BoolVar(&ra.startAtZero, "start-at-zero", false, "Set start_at_zero (requires -copy-ts)")
	fs.BoolVar(&ra.exitOnError, "exit-on-error", false, "Treat decode errors as fatal")
	fs.Float64Var(&ra.maxErrorRate, "max-error-rate", config.DefaultMaxErrorRate, "Decode error-rate ceiling in [0,1]")
	fs.StringVar(&ra.vstatsFilename, "vstats", "", "Machine-readable -progress sink destination")
	fs.Int64Var(&ra.recordingTimeUs, "recording-time", 0, "Cap read presentation time per input (microseconds); 0 = unbounded")

	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if len(ra.inputs) == 0 || len(ra.outputs) == 0 {
		fs.Usage()
		return 2, fmt.Errorf("at least one -i/-o pair is required")
	}
	if len(ra.inputs) != len(ra.outputs) {
		return 2, fmt.Errorf("-i and -o must be given the same number of times (%d inputs, %d outputs)", len(ra.inputs), len(ra.outputs))
	}

	return executeRun(ra)
}

func executeRun(ra runArgs) (int, error) {
	logDir := ra.logDir
	if logDir == "" {
		logDir = logging.DefaultLogDir()
	}
	logger, err := logging.Setup(logDir, ra.verbose, ra.noLog, os.Args)
	if err != nil {
		return 1, fmt.Errorf("failed to setup logging: %w", err)
	}
	if logger != nil {
		defer func() { _ = logger.Close() }()
	}

	cfg := config.NewConfig(logDir,
		config.WithStdinInteraction(ra.stdinInteraction),
		config.WithBenchmark(ra.doBenchmark, ra.doBenchmarkAll),
		config.WithPrintStats(ra.printStats),
		config.WithStatsPeriod(ra.statsPeriodUs),
		config.WithCopyTS(ra.copyTS, ra.startAtZero),
		config.WithExitOnError(ra.exitOnError),
		config.WithMaxErrorRate(ra.maxErrorRate),
		config.WithVstatsFilename(ra.vstatsFilename),
		config.WithRecordingTime(ra.recordingTimeUs),
	)
	cfg.Verbose = ra.verbose
	if err := cfg.Validate(); err != nil {
		return 2, fmt.Errorf("invalid configuration: %w", err)
	}

	rep := buildReporter(cfg, logger)

	reg := buildRegistry(ra.inputs, ra.outputs, cfg)

	controller := term.New()
	ctx, cancel := controller.Install(context.Background())
	defer cancel()

	logLevel := new(atomic.Int32)
	var poller supervisor.KeyPoller
	if cfg.StdinInteraction {
		controller.StartStdinReader(os.Stdin)
		_ = controller.EnableRawModeIfInteractive(int(os.Stdin.Fd()), true)
		defer controller.RestoreTTY()

		c := console.New(controller, os.Stdin, logLevel)
		c.Help = func() { fmt.Fprint(os.Stderr, console.DefaultHelpText) }
		c.Dispatch = func(cmd console.Command) error {
			rep.Warning(fmt.Sprintf("console: %s %s %s (not wired to a filter graph backend)", cmd.Target, cmd.Command, cmd.Arg))
			return nil
		}
		poller = c
	}

	var bench *timing.Benchmarker
	if cfg.DoBenchmark || cfg.DoBenchmarkAll {
		logf := func(format string, args ...any) { rep.Report(fmt.Sprintf(format, args...)) }
		if logger != nil {
			logf = logger.Info
		}
		bench = timing.NewBenchmarker(cfg.DoBenchmarkAll, logf)
	}

	var progress *timing.ProgressSink
	if cfg.VstatsFilename != "" {
		f, err := os.Create(cfg.VstatsFilename)
		if err != nil {
			return 1, fmt.Errorf("failed to open -progress sink %s: %w", cfg.VstatsFilename, err)
		}
		defer f.Close()
		progress = timing.NewProgressSink(f)
	}

	sup := &supervisor.Supervisor{
		Reg:          reg,
		Chooser:      chooser.New(),
		Duration:     packet.DurationParams{CopyTS: cfg.CopyTS},
		Interactive:  cfg.StdinInteraction,
		Poller:       poller,
		Banner:       func() { rep.Banner(fmt.Sprintf("%s starting", appName)) },
		CopyTS:       cfg.CopyTS,
		PrintStats:   cfg.PrintStats != config.PrintStatsQuiet,
		StatsPeriod:  time.Duration(cfg.StatsPeriod) * time.Microsecond,
		Reporter:     rep.Report,
		Progress:     progress,
		MaxErrorRate: cfg.MaxErrorRate,
		Abort:        func(error) bool { return cfg.ExitOnError },
		Benchmark:    bench,
	}

	result, err := sup.Run(ctx)
	if err != nil {
		rep.Fatal(err.Error())
		return result.ExitCode(1), err
	}
	if result.ErrorRateExceeded && logger != nil {
		logger.ErrorRateExceeded(result.ErrorRate, cfg.MaxErrorRate)
	}
	return result.ExitCode(0), nil
}

func buildReporter(cfg *config.Config, logger *logging.Logger) reporter.Reporter {
	if cfg.PrintStats == config.PrintStatsQuiet {
		return reporter.NullReporter{}
	}
	termRep := reporter.NewTerminalReporter()
	if logger == nil {
		return termRep
	}
	logRep := reporter.NewLogReporter(logger.Writer())
	if cfg.PrintStats == config.PrintStatsLog {
		return logRep
	}
	return reporter.NewCompositeReporter(termRep, logRep)
}

// buildRegistry wires one InputFile/OutputFile pair per -i/-o pair, each
// carrying a video and an audio stream-copy track linked through an
// encode-side sync queue (internal/syncqueue) that records each track's
// muxed PTS and closure; nothing gates on its readiness (spec.md §3's
// OutputFile "owns an optional encode-side sync queue"). A real deployment plugs a demux/decode/filter/mux backend into
// the Supervisor's *Resolver fields (left nil here) — spec.md's Non-goals
// exclude implementing an actual codec/container stack, so xcore's CLI
// wires the scheduling core's data model and leaves those seams for the
// caller.
func buildRegistry(inputs, outputs []string, cfg *config.Config) *xcgraph.Registry {
	reg := xcgraph.NewRegistry()
	for i := range inputs {
		inFile := xcgraph.NewInputFile(i)
		if cfg.RecordingTime > 0 {
			inFile.RecordingTime = time.Duration(cfg.RecordingTime) * time.Microsecond
		}
		vist := inFile.AddStream(&xcgraph.InputStream{Type: xcgraph.StreamVideo})
		aist := inFile.AddStream(&xcgraph.InputStream{Type: xcgraph.StreamAudio})
		reg.AddInputFile(inFile)

		outFile := xcgraph.NewOutputFile(i)
		outFile.SyncQueue = syncqueue.New(2)

		vost := xcgraph.NewOutputStream(i, 0, xcgraph.StreamVideo)
		vost.BindStreamCopy(vist)
		vost.SQIdxEncode = 0
		outFile.AddStream(vost)

		aost := xcgraph.NewOutputStream(i, 1, xcgraph.StreamAudio)
		aost.BindStreamCopy(aist)
		aost.SQIdxEncode = 1
		outFile.AddStream(aost)

		reg.AddOutputFile(outFile)
	}
	return reg
}
