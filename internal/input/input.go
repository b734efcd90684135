// Package input implements spec.md §4.6: driving one InputFile's demuxer
// for a single packet, including the loop-restart, error, and true-EOF
// branches and the decode_flush routine they share.
package input

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/xcore/internal/decode"
	"github.com/five82/xcore/internal/packet"
	"github.com/five82/xcore/internal/subtitle"
	"github.com/five82/xcore/internal/xcgraph"
)

// Status is the three-way result process_input reports (spec.md §4.6).
type Status int

const (
	// StatusOK means exactly one packet was processed.
	StatusOK Status = iota
	// StatusAgain means the caller should try a different file; no
	// packet was processed. It is also returned on a genuine end of
	// file, with the file's EOF flag set.
	StatusAgain
	// StatusEOF is returned, always with a non-nil error, when processing
	// must stop: abort escalated a demuxer error, or the end-of-file
	// flush failed.
	StatusEOF
)

// DecoderResolver returns the Decoder backing an InputStream, or nil if
// the stream needs no decoding (pure stream-copy).
type DecoderResolver func(*xcgraph.InputStream) decode.Decoder

// DemuxerResolver returns the Demuxer backing an InputFile.
type DemuxerResolver func(*xcgraph.InputFile) decode.Demuxer

// Abort, when non-nil, is consulted after a demuxer error other than
// EAGAIN/loop-restart/EOF, or a per-packet decode error; returning true
// means the orchestrator should treat the error as fatal rather than
// merely closing this file's streams or tallying it into decode_errors
// (spec.md §4.6: "optionally abort (if configured)").
type Abort = packet.Abort

// ClearAllEAGAIN resets every tracked InputFile's EAGAIN flag — called on
// any successful packet, since progress on one file can unblock others
// waiting behind it in the chooser (spec.md §4.6).
type ClearAllEAGAIN func()

// ProcessInput implements process_input(file_index) from spec.md §4.6.
func ProcessInput(
	ctx context.Context,
	file *xcgraph.InputFile,
	demuxer decode.Demuxer,
	decoderFor DecoderResolver,
	muxFor packet.MuxerResolver,
	dp packet.DurationParams,
	abort Abort,
	clearAllEAGAIN ClearAllEAGAIN,
) (Status, error) {
	pkt, err := demuxer.GetPacket(ctx)

	switch {
	case errors.Is(err, decode.ErrAgain):
		file.SetEAGAIN(true)
		return StatusAgain, nil

	case errors.Is(err, decode.ErrLoopRestart):
		if ferr := decodeFlush(ctx, file, decoderFor, muxFor, dp, true, abort); ferr != nil {
			return StatusAgain, ferr
		}
		return StatusAgain, nil

	case err != nil:
		isEOF := errors.Is(err, io.EOF)
		if !isEOF {
			// The error is not logged; this only decides whether it
			// is terminal.
			if abort != nil && abort(err) {
				return StatusEOF, err
			}
		}
		if ferr := decodeFlush(ctx, file, decoderFor, muxFor, dp, false, abort); ferr != nil {
			return StatusEOF, ferr
		}
		file.SetEOF(true)
		return StatusAgain, nil

	default:
		file.SetEAGAIN(false)
		if clearAllEAGAIN != nil {
			clearAllEAGAIN()
		}

		subtitle.Heartbeat(file, pkt.PTS)

		ist := file.StreamAt(pkt.StreamIndex)
		if ist == nil {
			return StatusOK, nil
		}
		var dec decode.Decoder
		if decoderFor != nil {
			dec = decoderFor(ist)
		}
		if _, err := packet.Process(ctx, file, ist, dec, pkt, false, dp, muxFor, abort); err != nil {
			return StatusOK, err
		}
		return StatusOK, nil
	}
}

// PrefetchReady opportunistically advances every file in files that is
// not already known to be at EAGAIN or EOF, pulling one packet from each
// concurrently via golang.org/x/sync/errgroup. This is a scheduling
// optimization, not a scheduling decision: the chooser still picks which
// OutputStream runs next single-threadedly (spec.md §5); this only keeps
// other ready files from sitting idle while the supervisor is blocked
// waiting on the one file the chosen stream actually needs.
func PrefetchReady(
	ctx context.Context,
	files []*xcgraph.InputFile,
	except *xcgraph.InputFile,
	demuxerFor DemuxerResolver,
	decoderFor DecoderResolver,
	muxFor packet.MuxerResolver,
	dp packet.DurationParams,
	abort Abort,
) error {
	if demuxerFor == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range files {
		f := f
		if f == except || f.EAGAIN() || f.EOFReached() {
			continue
		}
		dmx := demuxerFor(f)
		if dmx == nil {
			continue
		}
		g.Go(func() error {
			_, err := ProcessInput(gctx, f, dmx, decoderFor, muxFor, dp, abort, nil)
			return err
		})
	}
	return g.Wait()
}

// decodeFlush flushes every non-discarded stream's decoder with a null
// packet (spec.md §4.5 applied with pkt=nil to every stream) and, for
// audio streams, forwards the accumulated last-frame duration over the
// stream's AudioDurationCh so the demuxer thread knows it is safe to
// stop (spec.md §4.6). noEOF suppresses closing stream-copy consumers —
// set for a mid-file loop restart, cleared for a genuine end-of-file.
func decodeFlush(
	ctx context.Context,
	file *xcgraph.InputFile,
	decoderFor DecoderResolver,
	muxFor packet.MuxerResolver,
	dp packet.DurationParams,
	noEOF bool,
	abort Abort,
) error {
	n := file.NumStreams()
	for i := 0; i < n; i++ {
		ist := file.StreamAt(i)
		if ist == nil || ist.Discard {
			continue
		}

		var dec decode.Decoder
		if decoderFor != nil {
			dec = decoderFor(ist)
		}
		if _, err := packet.Process(ctx, file, ist, dec, nil, noEOF, dp, muxFor, abort); err != nil {
			return err
		}

		if ist.Type == xcgraph.StreamAudio && ist.SampleRate > 0 {
			samples := ist.LastFrameSamples.Load()
			if samples > 0 {
				dur := sampleDuration(samples, ist.SampleRate)
				select {
				case file.AudioDurationCh <- dur:
				default:
					// Buffered channel full: the demuxer thread is not
					// keeping up: drop rather than block the flush path.
				}
			}
		}
	}
	return nil
}

// sampleDuration converts a sample count at the given sample rate (Hz)
// into a time.Duration.
func sampleDuration(samples int64, sampleRate int) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
