// Package xcgraph holds the orchestrator's data model: the bipartite graph
// of input streams, output streams, and filter graphs that the supervisor
// schedules across. Nothing in this package decodes, muxes, or filters
// anything; it only tracks identity, readiness, and lifecycle.
package xcgraph

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// StreamType classifies an elementary stream.
type StreamType int

const (
	StreamVideo StreamType = iota
	StreamAudio
	StreamSubtitle
	StreamData
)

func (t StreamType) String() string {
	switch t {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	case StreamSubtitle:
		return "subtitle"
	default:
		return "data"
	}
}

// Finished is a bitset of reasons an OutputStream has stopped accepting data.
type Finished uint32

const (
	// EncoderFinished is monotonic: once set it is never cleared.
	EncoderFinished Finished = 1 << iota
	MuxerFinished
)

// Has reports whether f contains all bits in mask.
func (f Finished) Has(mask Finished) bool { return f&mask == mask }

// InputFile is a demuxed source, owning an ordered, append-only array of
// InputStreams. Created by option parsing, mutated only by the input
// driver, destroyed at teardown.
type InputFile struct {
	Index int
	ID    uuid.UUID

	// RecordingTime is the max presentation time to read from this file,
	// or -1 for unbounded.
	RecordingTime time.Duration
	StartTime     time.Duration
	// StartTimeEffective is the demuxer-reported effective start, used
	// under copy_ts to compute the duration_exceeded threshold.
	StartTimeEffective time.Duration

	// eagain is set when the last demux attempt returned "no data yet".
	eagain atomic.Bool
	// eofReached is set once the demuxer has nothing further to offer.
	eofReached atomic.Bool

	mu      sync.RWMutex
	Streams []*InputStream

	// AudioDurationCh carries the last-frame duration of flushed audio
	// streams back to the demuxer thread so it knows it is safe to stop.
	// Buffered so decode_flush never blocks on a slow demuxer.
	AudioDurationCh chan time.Duration
}

// NewInputFile constructs an InputFile with an unbounded recording time.
func NewInputFile(index int) *InputFile {
	return &InputFile{
		Index:           index,
		ID:              uuid.New(),
		RecordingTime:   -1,
		AudioDurationCh: make(chan time.Duration, 8),
	}
}

func (f *InputFile) SetEAGAIN(v bool)  { f.eagain.Store(v) }
func (f *InputFile) EAGAIN() bool      { return f.eagain.Load() }
func (f *InputFile) SetEOF(v bool)     { f.eofReached.Store(v) }
func (f *InputFile) EOFReached() bool  { return f.eofReached.Load() }

// HasUnboundedRecordingTime reports whether this file has no recording cap.
func (f *InputFile) HasUnboundedRecordingTime() bool { return f.RecordingTime < 0 }

// AddStream appends a stream and returns it. Append-only: never call once
// the transcode loop has started iterating (see internal/iter).
func (f *InputFile) AddStream(s *InputStream) *InputStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.FileIndex = f.Index
	s.Index = len(f.Streams)
	f.Streams = append(f.Streams, s)
	return s
}

// StreamAt returns the stream at position idx, or nil if out of range.
func (f *InputFile) StreamAt(idx int) *InputStream {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if idx < 0 || idx >= len(f.Streams) {
		return nil
	}
	return f.Streams[idx]
}

// NumStreams returns the number of streams currently attached.
func (f *InputFile) NumStreams() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.Streams)
}

// InputStream is one elementary track inside an InputFile.
type InputStream struct {
	FileIndex int
	Index     int
	Type      StreamType

	DecodingNeeded bool
	Discard        bool

	// TimeBase is the stream's own (num, den) rational time base.
	TimeBaseNum, TimeBaseDen int64

	mu          sync.Mutex
	filterSinks []FilterSink
	consumers   []*OutputStream

	FramesDecoded atomic.Int64
	DecodeErrors  atomic.Int64
	NumSamples    atomic.Int64

	// SampleRate and LastFrameSamples support decode_flush's last-frame
	// duration computation for audio streams (spec.md §4.6).
	SampleRate       int
	LastFrameSamples atomic.Int64

	// Subtitle-only fields.
	FixSubDuration bool
	prevSub        *Subtitle

	decodeEOF atomic.Bool
}

// SetDecodeEOF records that the decoder backing this stream has been
// fully flushed (spec.md §4.5 step 1).
func (s *InputStream) SetDecodeEOF(v bool) { s.decodeEOF.Store(v) }

// DecodeEOF reports whether the decoder has been fully flushed.
func (s *InputStream) DecodeEOF() bool { return s.decodeEOF.Load() }

// FilterSink is the minimal contract an InputFilter exposes to the
// subtitle heartbeat and decoder routing paths (spec.md §4.4, §1).
type FilterSink interface {
	// SendHeartbeat refreshes a sparse sink's effective timestamp without
	// delivering real data.
	SendHeartbeat(ptsMicros int64)
}

// AddFilterSink attaches a filter graph input sink to this stream.
func (s *InputStream) AddFilterSink(f FilterSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterSinks = append(s.filterSinks, f)
}

// FilterSinks returns a snapshot of attached sinks.
func (s *InputStream) FilterSinks() []FilterSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FilterSink, len(s.filterSinks))
	copy(out, s.filterSinks)
	return out
}

// AddConsumer registers an OutputStream that stream-copies from this
// InputStream directly (no decode, no filter graph).
func (s *InputStream) AddConsumer(o *OutputStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumers = append(s.consumers, o)
}

// Consumers returns a snapshot of stream-copy consumers.
func (s *InputStream) Consumers() []*OutputStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*OutputStream, len(s.consumers))
	copy(out, s.consumers)
	return out
}

// PrevSub returns the cached previous subtitle, or nil.
func (s *InputStream) PrevSub() *Subtitle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prevSub
}

// SetPrevSub stores the cached previous subtitle. Callers must uphold the
// invariant that PTS is monotonically non-decreasing across calls when
// FixSubDuration is set.
func (s *InputStream) SetPrevSub(sub *Subtitle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prevSub = sub
}

// Subtitle is a minimal decoded subtitle event, enough to support the
// fix-sub-duration heartbeat and deep-copy described in spec.md §4.4.
type Subtitle struct {
	PTS   int64 // canonical (microsecond) time base
	Start uint32
	End   uint32
	Rects []SubtitleRect
}

// SubtitleRectType distinguishes bitmap subtitles (with a palette) from
// text/ASS ones.
type SubtitleRectType int

const (
	SubtitleText SubtitleRectType = iota
	SubtitleASS
	SubtitleBitmap
)

// SubtitleRect mirrors the scalar + plane-data shape of a decoded subtitle
// rectangle; see internal/subtitle for the deep-copy rule that special-
// cases plane index 1 of bitmap rects as a 256-entry RGBA palette.
type SubtitleRect struct {
	Type             SubtitleRectType
	X, Y, W, H       int
	Text, ASS        string
	Linesize         [4]int
	Data             [4][]byte
}

// OutputStream is one elementary track inside an OutputFile.
type OutputStream struct {
	FileIndex int
	Index     int
	Type      StreamType
	ID        uuid.UUID

	// Source is set for stream-copy; Filter is set when fed by a filter
	// graph. Exactly one of the two may be non-nil (spec.md §3 invariant).
	Source *InputStream
	Filter FilterSource

	Quality int

	packetsWritten atomic.Int64
	bytesWritten   atomic.Int64
	dupCount       atomic.Int64
	dropCount      atomic.Int64
	lastMuxDTS     atomic.Int64 // microseconds; unsetDTS means unset
	lastDropped    atomic.Bool

	SQIdxEncode int // index inside the output file's sync queue, or -1

	// File backs SQIdxEncode: the OutputFile this stream belongs to, so a
	// stream-copy consumer can reach its file's sync queue without the
	// caller threading a Registry lookup through every collaborator.
	File *OutputFile

	mu          sync.Mutex
	initialized bool
	inputsDone  bool
	unavailable bool
	finished    Finished
}

// FilterSource is the minimal contract a FilterGraph output exposes to the
// chooser and supervisor (spec.md §4.7, §4.8).
type FilterSource interface {
	// LastPTS returns the most recent frame's presentation time in the
	// canonical (microsecond) base, and whether any frame has been seen.
	LastPTS() (pts int64, ok bool)
	// NeedsInput returns the InputStream this filter graph needs more
	// data from next, or nil if the filter graph is not currently
	// waiting on upstream input (e.g. it has buffered frames to reap).
	NeedsInput() *InputStream
}

const unsetDTS = int64(-1) << 62

// NewOutputStream constructs an OutputStream with no source bound yet.
func NewOutputStream(fileIndex, index int, typ StreamType) *OutputStream {
	o := &OutputStream{FileIndex: fileIndex, Index: index, Type: typ, ID: uuid.New(), SQIdxEncode: -1}
	o.lastMuxDTS.Store(unsetDTS)
	return o
}

// BindStreamCopy attaches a direct InputStream source (no decode).
func (o *OutputStream) BindStreamCopy(in *InputStream) {
	o.Source = in
	in.AddConsumer(o)
}

// BindFilter attaches a filter-graph source.
func (o *OutputStream) BindFilter(f FilterSource) { o.Filter = f }

// LastMuxDTS returns the last muxed DTS in microseconds, or (0, false) if
// unset.
func (o *OutputStream) LastMuxDTS() (int64, bool) {
	v := o.lastMuxDTS.Load()
	if v == unsetDTS {
		return 0, false
	}
	return v, true
}

// SetLastMuxDTS records a new DTS. Callers must never decrease it
// (spec.md invariant: last_mux_dts is monotonic non-decreasing).
func (o *OutputStream) SetLastMuxDTS(dts int64) {
	for {
		cur := o.lastMuxDTS.Load()
		if cur != unsetDTS && dts < cur {
			dts = cur // never regress
		}
		if o.lastMuxDTS.CompareAndSwap(cur, dts) {
			return
		}
	}
}

func (o *OutputStream) IncPacketsWritten() int64 { return o.packetsWritten.Add(1) }
func (o *OutputStream) PacketsWritten() int64    { return o.packetsWritten.Load() }
func (o *OutputStream) SetLastDropped(v bool)    { o.lastDropped.Store(v) }
func (o *OutputStream) LastDropped() bool        { return o.lastDropped.Load() }

// AddBytesWritten accumulates bytes muxed, for the report line's size=
// and bitrate= fields (spec.md §4.3).
func (o *OutputStream) AddBytesWritten(n int64) int64 { return o.bytesWritten.Add(n) }
func (o *OutputStream) BytesWritten() int64           { return o.bytesWritten.Load() }

// IncDup/IncDrop count duplicated/dropped frames; the encoder/filter
// collaborator (out of scope) is the natural caller, exposed here only so
// the report line's optional "dup=D drop=X" suffix has somewhere to read
// from (spec.md §4.3).
func (o *OutputStream) IncDup() int64  { return o.dupCount.Add(1) }
func (o *OutputStream) IncDrop() int64 { return o.dropCount.Add(1) }
func (o *OutputStream) DupCount() int64  { return o.dupCount.Load() }
func (o *OutputStream) DropCount() int64 { return o.dropCount.Load() }

func (o *OutputStream) Initialized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialized
}

func (o *OutputStream) SetInitialized(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.initialized = v
}

func (o *OutputStream) InputsDone() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inputsDone
}

func (o *OutputStream) SetInputsDone(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inputsDone = v
}

func (o *OutputStream) Unavailable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unavailable
}

func (o *OutputStream) SetUnavailable(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unavailable = v
}

// FinishedBits reports the current finished bitset.
func (o *OutputStream) FinishedBits() Finished {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished
}

// MarkFinished ORs bits into the finished bitset. Monotonic: never
// clears a bit that is already set.
func (o *OutputStream) MarkFinished(bits Finished) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished |= bits
}

// IsFinished reports whether ENCODER_FINISHED has been set.
func (o *OutputStream) IsFinished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished.Has(EncoderFinished)
}

// CloseOutputStream marks the stream finished without writing a trailer entry; used
// by the packet processor when a recording-time cap is exceeded
// (spec.md §4.5 step 4).
func (o *OutputStream) CloseOutputStream() {
	o.MarkFinished(EncoderFinished | MuxerFinished)
}

// OutputFile groups OutputStreams and owns an optional encode-side sync
// queue (see internal/syncqueue).
type OutputFile struct {
	Index int
	ID    uuid.UUID

	mu      sync.RWMutex
	Streams []*OutputStream

	SyncQueue SyncQueue // nil if this file has no cross-stream sync needs

	dumped atomic.Bool // set only through SetDumped; AllDumped checks the streams directly
}

// SyncQueue is the cross-stream synchronization primitive named (but not
// specified) in spec.md §1; see internal/syncqueue for a reference impl.
type SyncQueue interface {
	// Push submits a packet for stream idx; it may be buffered until
	// every linked stream has something to compare against.
	Push(streamIdx int, pts int64) (ready bool)
	Close(streamIdx int)
}

func NewOutputFile(index int) *OutputFile {
	return &OutputFile{Index: index, ID: uuid.New()}
}

func (f *OutputFile) AddStream(s *OutputStream) *OutputStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.FileIndex = f.Index
	s.Index = len(f.Streams)
	s.File = f
	f.Streams = append(f.Streams, s)
	return s
}

func (f *OutputFile) NumStreams() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.Streams)
}

func (f *OutputFile) StreamAt(idx int) *OutputStream {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if idx < 0 || idx >= len(f.Streams) {
		return nil
	}
	return f.Streams[idx]
}

// AllDumped reports whether every stream in this file has initialized.
func (f *OutputFile) AllDumped() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.Streams {
		if !s.Initialized() {
			return false
		}
	}
	return true
}

func (f *OutputFile) SetDumped(v bool) { f.dumped.Store(v) }
func (f *OutputFile) Dumped() bool     { return f.dumped.Load() }

// FilterGraph is a user-constructed DAG of transformations over decoded
// frames. Its runtime handle and "simple" classification are tracked here;
// the actual graph execution lives behind internal/filter.Graph.
type FilterGraph struct {
	Index  int
	ID     uuid.UUID
	Simple bool // one input, one output, straight-line

	Runtime FilterSource // nil until the runtime graph is built
}

func NewFilterGraph(index int, simple bool) *FilterGraph {
	return &FilterGraph{Index: index, ID: uuid.New(), Simple: simple}
}
