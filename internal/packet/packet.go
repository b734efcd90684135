// Package packet implements spec.md §4.5: feeding one input packet (or a
// flush) into a decoder, routing stream-copy outputs, and enforcing the
// per-file recording-time cap.
package packet

import (
	"context"
	"errors"
	"io"

	"github.com/five82/xcore/internal/decode"
	"github.com/five82/xcore/internal/muxer"
	"github.com/five82/xcore/internal/xcgraph"
)

// DurationParams controls how duration_exceeded is computed under
// copy_ts mode (spec.md §4.5 step 3).
type DurationParams struct {
	CopyTS                bool
	IncludeStartTimeEffective bool
}

// MuxerResolver returns the Output responsible for an OutputStream's
// container, so stream-copy consumers across different output files can
// each be routed correctly.
type MuxerResolver func(*xcgraph.OutputStream) muxer.Output

// Abort, when non-nil, is consulted after a per-packet decode error;
// returning true escalates it from a tallied decode_errors increment to
// a fatal error that aborts the run (spec.md §4.5, §9 scenario S4).
type Abort func(err error) bool

// Process feeds pkt (or nil, to flush) for ist into decoder if decoding
// is needed, routes any stream-copy consumers, and reports whether more
// data is likely (true) or EOF has been reached (false) — spec.md §4.5.
//
// A decode error (other than EOF) is counted into ist.DecodeErrors and
// processing continues; it only aborts the run if abort is non-nil and
// returns true for that error, matching how input.ProcessInput already
// treats demuxer errors. A successful decode increments ist.FramesDecoded.
func Process(
	ctx context.Context,
	file *xcgraph.InputFile,
	ist *xcgraph.InputStream,
	decoder decode.Decoder,
	pkt *decode.Packet,
	noEOF bool,
	dp DurationParams,
	muxFor MuxerResolver,
	abort Abort,
) (bool, error) {
	if ist.DecodingNeeded && decoder != nil {
		if err := decoder.Decode(ctx, pkt); err != nil {
			if errors.Is(err, io.EOF) {
				ist.SetDecodeEOF(true)
			} else {
				ist.DecodeErrors.Add(1)
				if abort != nil && abort(err) {
					return false, err
				}
			}
		} else {
			ist.FramesDecoded.Add(1)
		}
	}

	dtsEst, hasDTS := extractDTSEstimate(pkt)
	exceeded := durationExceeded(file, dtsEst, hasDTS, dp)

	for _, consumer := range ist.Consumers() {
		if consumer.FinishedBits().Has(xcgraph.EncoderFinished) {
			continue
		}

		switch {
		case pkt == nil:
			if !noEOF {
				consumer.CloseOutputStream()
				consumer.SetInputsDone(true)
				closeSyncQueue(consumer)
			}
		case exceeded:
			consumer.CloseOutputStream()
			consumer.SetInputsDone(true)
			closeSyncQueue(consumer)
		default:
			if muxFor == nil {
				continue
			}
			out := muxFor(consumer)
			if out == nil {
				continue
			}
			if err := out.StreamCopy(ctx, consumer, pkt, dtsEst); err != nil {
				return false, err
			}
			consumer.SetLastMuxDTS(dtsEst)
			consumer.IncPacketsWritten()
			consumer.AddBytesWritten(int64(len(pkt.Data)))
			// A successful mux is the stream-copy analogue of the muxer
			// writing its header: the output is now initialized.
			consumer.SetInitialized(true)
			pushSyncQueue(consumer, dtsEst)
		}
	}

	if pkt == nil {
		return noEOF, nil
	}
	return true, nil
}

// pushSyncQueue submits a stream-copied packet's PTS to consumer's output
// file sync queue, if one is linked (SQIdxEncode >= 0). The returned
// readiness is discarded: this processor writes stream-copy packets
// synchronously, the queue does not gate the write, and nothing else in
// the orchestrator (finalize included) reads the queue (spec.md §1, §3).
func pushSyncQueue(consumer *xcgraph.OutputStream, pts int64) {
	if consumer.SQIdxEncode < 0 || consumer.File == nil || consumer.File.SyncQueue == nil {
		return
	}
	consumer.File.SyncQueue.Push(consumer.SQIdxEncode, pts)
}

// closeSyncQueue marks consumer's slot in its output file's sync queue
// finished, so it stops gating the remaining linked streams' readiness.
func closeSyncQueue(consumer *xcgraph.OutputStream) {
	if consumer.SQIdxEncode < 0 || consumer.File == nil || consumer.File.SyncQueue == nil {
		return
	}
	consumer.File.SyncQueue.Close(consumer.SQIdxEncode)
}

func extractDTSEstimate(pkt *decode.Packet) (int64, bool) {
	if pkt == nil || !pkt.HasDTSEstimate {
		return 0, false
	}
	return pkt.DemuxDTSEstimate, true
}

// durationExceeded implements spec.md §4.5 step 3.
func durationExceeded(file *xcgraph.InputFile, dtsEst int64, hasDTS bool, dp DurationParams) bool {
	if !hasDTS || file.HasUnboundedRecordingTime() {
		return false
	}

	startTime := int64(0)
	if dp.CopyTS {
		startTime = file.StartTime.Microseconds()
		if dp.IncludeStartTimeEffective {
			startTime += file.StartTimeEffective.Microseconds()
		}
	}

	threshold := file.RecordingTime.Microseconds() + startTime
	return dtsEst >= threshold
}
