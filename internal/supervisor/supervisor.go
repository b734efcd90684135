// Package supervisor implements spec.md §4.8: the main transcode loop
// that repeatedly chooses an OutputStream and advances it one step, plus
// the post-loop flush/error-rate/trailer sequence.
package supervisor

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/xcore/internal/chooser"
	"github.com/five82/xcore/internal/decode"
	"github.com/five82/xcore/internal/filter"
	"github.com/five82/xcore/internal/input"
	"github.com/five82/xcore/internal/iter"
	"github.com/five82/xcore/internal/muxer"
	"github.com/five82/xcore/internal/packet"
	"github.com/five82/xcore/internal/timing"
	"github.com/five82/xcore/internal/xcgraph"
)

// pollDelay is the fixed sleep spec.md §5 names as the supervisor's only
// voluntary wait, taken when every output reports EAGAIN.
const pollDelay = 10 * time.Millisecond

// KeyPoller is the narrow contract the interactive command console
// (spec.md §4.9) exposes to the supervisor.
type KeyPoller interface {
	// Poll reads at most one pending key and reports whether the user
	// requested the transcode stop (the 'q' command).
	Poll(ctx context.Context) (exit bool)
}

// FilterResolver returns the runtime filter.Graph handle behind an
// OutputStream's FilterSource, or nil if ost is not filter-backed.
type FilterResolver func(*xcgraph.OutputStream) filter.Graph

// DemuxerResolver returns the Demuxer backing an InputFile.
type DemuxerResolver = input.DemuxerResolver

// Supervisor drives the registry through one transcode (spec.md §4.8).
type Supervisor struct {
	Reg *xcgraph.Registry

	Chooser    *chooser.Chooser
	DemuxerFor DemuxerResolver
	DecoderFor input.DecoderResolver
	FilterFor  FilterResolver
	MuxFor     packet.MuxerResolver
	Duration   packet.DurationParams
	Abort      input.Abort

	Interactive bool
	Poller      KeyPoller
	Banner      func()

	CopyTS      bool
	PrintStats  bool
	StatsPeriod time.Duration
	Reporter    func(line string)
	Progress    *timing.ProgressSink
	MaxErrorRate float64

	// Benchmark, when non-nil, receives update_benchmark(label) calls at
	// the same checkpoints ffmpeg's own transcode loop uses: once after
	// setup, once per transcode step, and once after the finalize
	// sequence (spec.md §4.3).
	Benchmark *timing.Benchmarker
}

// Result summarizes how the loop ended; the caller (spec.md §4.8's "the
// caller") uses it to compute the process exit code.
type Result struct {
	Interrupted       bool
	UserExit          bool
	ErrorRateExceeded bool
	// ErrorRate is the worst per-stream decode_errors/(decoded+errors)
	// ratio observed in finalize's error-rate pass, valid whenever
	// ErrorRateExceeded is true (spec.md §9 scenario S4).
	ErrorRate float64
}

// ExitCode computes the process exit code per spec.md §4.8: 255 if
// interrupted by signal, 69 if the error-rate ceiling was exceeded,
// otherwise fallback (the transcode's own return value).
func (r Result) ExitCode(fallback int) int {
	switch {
	case r.Interrupted:
		return 255
	case r.ErrorRateExceeded:
		return 69
	default:
		return fallback
	}
}

// Run executes the main loop until termination (ctx canceled, chooser
// reports EOF, or the interactive console requests exit), then the
// post-loop flush sequence.
func (s *Supervisor) Run(ctx context.Context) (Result, error) {
	if s.Interactive && s.Banner != nil {
		s.Banner()
	}
	if s.Benchmark != nil {
		s.Benchmark.Update("init")
	}

	policy := timing.NewReportPolicy(s.PrintStats, s.Progress != nil, s.StatsPeriod, time.Now())

	for {
		if ctx.Err() != nil {
			// Flush with a context that is not canceled, so collaborators
			// still get to write their trailers.
			result, err := s.finalize(context.WithoutCancel(ctx), policy)
			result.Interrupted = true
			return result, err
		}

		if s.Interactive && s.Poller != nil {
			if s.Poller.Poll(ctx) {
				result, err := s.finalize(ctx, policy)
				result.UserExit = true
				return result, err
			}
		}

		winner, status := s.Chooser.Choose(s.Reg)
		switch status {
		case chooser.StatusAgain:
			s.clearAllEAGAIN()
			time.Sleep(pollDelay)
			continue
		case chooser.StatusEOF:
			result, err := s.finalize(ctx, policy)
			return result, err
		}

		if err := s.transcodeStep(ctx, winner); err != nil {
			return Result{}, err
		}
		if s.Benchmark != nil {
			s.Benchmark.Update("transcode")
		}

		s.maybeReport(policy, false)
	}
}

// transcodeStep implements spec.md §4.8 step 5.
func (s *Supervisor) transcodeStep(ctx context.Context, ost *xcgraph.OutputStream) error {
	var needed *xcgraph.InputStream
	var graph filter.Graph

	if ost.Filter != nil {
		if s.FilterFor != nil {
			graph = s.FilterFor(ost)
		}
		if graph != nil {
			needed = graph.NeedsInput()
			if needed == nil {
				// The filter graph is itself waiting; nothing to do.
				return nil
			}
		}
	} else {
		needed = ost.Source
	}

	if needed == nil {
		return nil
	}

	inputFile := s.Reg.InputFileAt(needed.FileIndex)
	var dmx decode.Demuxer
	if inputFile != nil && s.DemuxerFor != nil {
		dmx = s.DemuxerFor(inputFile)
	}
	if dmx == nil {
		// Nothing can ever be read for this stream: close it so the
		// chooser stops selecting it and the loop reaches EOF.
		ost.CloseOutputStream()
		ost.SetInputsDone(true)
		return nil
	}

	status, err := input.ProcessInput(ctx, inputFile, dmx, s.DecoderFor, s.MuxFor, s.Duration, s.Abort, s.clearAllEAGAIN)
	if err != nil {
		return err
	}
	if status == input.StatusAgain && inputFile.EAGAIN() {
		ost.SetUnavailable(true)
		// The file the chosen stream needs is starved; rather than idle
		// until the next scheduling tick, opportunistically pull from
		// every other ready file so progress elsewhere isn't lost to the
		// poll delay (spec.md §5's single-threaded scheduling decision
		// still holds — only these collaborator calls run concurrently).
		return input.PrefetchReady(ctx, s.Reg.InputFilesSnapshot(), inputFile, s.DemuxerFor, s.DecoderFor, s.MuxFor, s.Duration, s.Abort)
	}
	ost.SetUnavailable(false)

	if graph != nil {
		return graph.ReapFilters(ctx, 0)
	}
	return nil
}

func (s *Supervisor) clearAllEAGAIN() {
	for _, f := range s.Reg.InputFilesSnapshot() {
		f.SetEAGAIN(false)
	}
	iter.ForEachOutputStream(s.Reg, func(ost *xcgraph.OutputStream) { ost.SetUnavailable(false) })
}

// finalize runs the post-loop sequence from spec.md §4.8: flush every
// InputStream whose file never reached EOF, compute per-stream decode
// error rates, flush encoders, write trailers, and print a final report.
func (s *Supervisor) finalize(ctx context.Context, policy *timing.ReportPolicy) (Result, error) {
	for ist := iter.InputStreamIter(s.Reg, nil); ist != nil; ist = iter.InputStreamIter(s.Reg, ist) {
		file := s.Reg.InputFileAt(ist.FileIndex)
		if file == nil || file.EOFReached() {
			continue
		}
		var dec decode.Decoder
		if s.DecoderFor != nil {
			dec = s.DecoderFor(ist)
		}
		if _, err := packet.Process(ctx, file, ist, dec, nil, false, s.Duration, s.MuxFor, s.Abort); err != nil {
			return Result{}, err
		}
	}

	errorRateExceeded := false
	worstRate := 0.0
	for ist := iter.InputStreamIter(s.Reg, nil); ist != nil; ist = iter.InputStreamIter(s.Reg, ist) {
		decoded := ist.FramesDecoded.Load()
		errs := ist.DecodeErrors.Load()
		total := decoded + errs
		if total == 0 {
			continue
		}
		rate := float64(errs) / float64(total)
		if rate > worstRate {
			worstRate = rate
		}
		if s.MaxErrorRate > 0 && rate > s.MaxErrorRate {
			errorRateExceeded = true
		}
	}

	// Teardown fan-out (spec.md §9 lifecycle: filter graphs → output
	// files → input files → hardware pool → allocator): every distinct
	// container is flushed, then trailer-written, concurrently within
	// each stage — a bounded fan-out since outputs is one entry per
	// container, not per stream.
	outputs := s.distinctOutputs()

	flushGroup, flushCtx := errgroup.WithContext(ctx)
	for _, out := range outputs {
		out := out
		flushGroup.Go(func() error { return out.EncFlush(flushCtx) })
	}
	if err := flushGroup.Wait(); err != nil {
		return Result{}, err
	}

	trailerGroup, trailerCtx := errgroup.WithContext(ctx)
	for _, out := range outputs {
		out := out
		trailerGroup.Go(func() error { return out.WriteTrailer(trailerCtx) })
	}
	if err := trailerGroup.Wait(); err != nil {
		return Result{}, err
	}

	s.maybeReport(policy, true)
	if s.Benchmark != nil {
		s.Benchmark.Update("finish")
	}

	return Result{ErrorRateExceeded: errorRateExceeded, ErrorRate: worstRate}, nil
}

// distinctOutputs collects every unique muxer.Output the registry's
// output streams resolve to, so EncFlush/WriteTrailer run once per
// container rather than once per stream.
func (s *Supervisor) distinctOutputs() []muxer.Output {
	if s.MuxFor == nil {
		return nil
	}
	seen := make(map[muxer.Output]struct{})
	var out []muxer.Output
	for _, of := range s.Reg.OutputFilesSnapshot() {
		for i := 0; i < of.NumStreams(); i++ {
			ost := of.StreamAt(i)
			if ost == nil {
				continue
			}
			o := s.MuxFor(ost)
			if o == nil {
				continue
			}
			if _, ok := seen[o]; ok {
				continue
			}
			seen[o] = struct{}{}
			out = append(out, o)
		}
	}
	return out
}

func (s *Supervisor) maybeReport(policy *timing.ReportPolicy, isLast bool) {
	now := time.Now()
	if !policy.ShouldEmit(s.Reg, isLast, now) {
		return
	}

	ptsMicros := policy.PTSForDisplay(s.Reg, s.CopyTS)
	snap := buildSnapshot(s.Reg, isLast)
	snap.Speed = policy.Speed(ptsMicros, now)

	if s.Reporter != nil {
		s.Reporter(timing.FormatHumanLine(snap, ptsMicros))
	}
	if s.Progress != nil {
		_ = s.Progress.Write(snap, ptsMicros)
	}

	policy.MarkEmitted(now)
}

// buildSnapshot aggregates the registry's current counters into the shape
// print_report needs (spec.md §4.3): the first video output contributes
// the frame count, every video output contributes a q= value. FPS is not
// computed and is always reported as unknown.
func buildSnapshot(reg *xcgraph.Registry, isLast bool) timing.Snapshot {
	snap := timing.Snapshot{IsLast: isLast, FPS: math.NaN()}

	var totalSize uint64
	var dup, drop int64
	var frames int64
	sawVideo := false

	for _, f := range reg.OutputFilesSnapshot() {
		for i := 0; i < f.NumStreams(); i++ {
			ost := f.StreamAt(i)
			if ost == nil {
				continue
			}
			totalSize += uint64(ost.BytesWritten())
			dup += ost.DupCount()
			drop += ost.DropCount()

			if ost.Type != xcgraph.StreamVideo {
				continue
			}
			if !sawVideo {
				frames = ost.PacketsWritten()
				sawVideo = true
			}
			snap.Qualities = append(snap.Qualities, timing.QualitySample{
				FileIndex:   ost.FileIndex,
				StreamIndex: ost.Index,
				Quality:     float64(ost.Quality),
			})
		}
	}

	if sawVideo {
		snap.FrameCount = frames
	} else {
		snap.FrameCount = -1
	}
	snap.TotalSize = totalSize
	snap.DupFrames = dup
	snap.DropFrames = drop
	return snap
}
