// Package decode describes the narrow contract spec.md §1 assigns to the
// demuxer (`ifile_get_packet`) and decoder (`dec_packet`) collaborators.
// Neither is implemented here — codec and container internals are
// explicitly out of scope (spec.md §1 Non-goals) — only the shapes the
// orchestrator depends on.
package decode

import (
	"context"
	"errors"

	"github.com/five82/xcore/internal/timing"
)

// Packet is one demuxed access unit, opaque payload aside.
type Packet struct {
	StreamIndex int
	PTS, DTS    int64
	TimeBase    timing.Rational
	Data        []byte
	Key         bool

	// DemuxDTSEstimate is the demuxer-side annotation spec.md §4.5 step 2
	// calls "the packet's opaque demux-side annotation", used to compute
	// dts_est for the recording-time check without requiring the
	// orchestrator to understand the container's own DTS semantics.
	DemuxDTSEstimate int64
	HasDTSEstimate   bool
}

// Sentinel errors returned by Demuxer.GetPacket, matching the three
// outcomes spec.md §4.6 distinguishes.
var (
	// ErrAgain means no packet is available yet; try again later.
	ErrAgain = errors.New("decode: demuxer not ready (EAGAIN)")
	// ErrLoopRestart is the distinguished "loop" return spec.md §4.6
	// calls out: the demuxer is about to restart from the beginning of
	// an input-looped file.
	ErrLoopRestart = errors.New("decode: demuxer loop restart")
)

// Demuxer yields the next packet for a file, or signals EAGAIN / loop
// restart / EOF (spec.md §1, §4.6). io.EOF signals end of file.
type Demuxer interface {
	GetPacket(ctx context.Context) (*Packet, error)
}

// Decoder consumes packets and emits decoded frames into attached filter
// graph sinks (spec.md §1, §4.5 step 1). A nil packet flushes the
// decoder; Decode returns io.EOF once fully flushed.
type Decoder interface {
	Decode(ctx context.Context, pkt *Packet) error
}
