// Package muxer describes the narrow contract spec.md §1 assigns to the
// encoder/muxer collaborator (`of_streamcopy`, `of_write_trailer`,
// `enc_flush`). Container and codec internals are out of scope.
package muxer

import (
	"context"

	"github.com/five82/xcore/internal/decode"
	"github.com/five82/xcore/internal/xcgraph"
)

// Output is the write side the packet processor and supervisor drive.
type Output interface {
	// StreamCopy forwards pkt to ost without decoding/re-encoding,
	// stamped with the estimated DTS (spec.md §4.5 step 4).
	StreamCopy(ctx context.Context, ost *xcgraph.OutputStream, pkt *decode.Packet, estDTS int64) error

	// EncFlush flushes every encoder backing an OutputStream in this
	// output file (spec.md §4.8, post-loop).
	EncFlush(ctx context.Context) error

	// WriteTrailer finalizes the container (spec.md §4.8, post-loop).
	WriteTrailer(ctx context.Context) error
}
