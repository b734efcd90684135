// Package filter describes the narrow contract spec.md §1 assigns to the
// filter graph collaborator (`fg_transcode_step`, `reap_filters`). Filter
// internals (the DAG of transformations) are out of scope; only the pull
// interface the supervisor drives is specified here.
package filter

import (
	"context"

	"github.com/five82/xcore/internal/xcgraph"
)

// Graph is the runtime handle for one FilterGraph (spec.md §3, §4.8).
type Graph interface {
	xcgraph.FilterSource

	// TranscodeStep pulls one unit of decoded input through the graph
	// toward the requested input stream's sink. Called by the
	// supervisor after the input driver advances that stream.
	TranscodeStep(ctx context.Context, needed *xcgraph.InputStream) error

	// ReapFilters drains any frames the graph has ready and forwards
	// them to attached encoders. timeoutUs of 0 means non-blocking.
	ReapFilters(ctx context.Context, timeoutUs int64) error

	// Command forwards an interactive console command (spec.md §4.9) to
	// this graph, either immediately (atUs < 0) or queued for a future
	// timestamp.
	Command(target, command, arg string, atUs int64) error
}

// SubtitleHeartbeat is the narrow sink interface the subtitle bridging
// heartbeat (spec.md §4.4) calls into; satisfied by any Graph sink
// attached to a subtitle InputStream.
type SubtitleHeartbeat interface {
	Heartbeat(ptsMicros int64)
}
