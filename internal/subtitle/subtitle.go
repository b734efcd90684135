// Package subtitle implements spec.md §4.4: sub2video heartbeats that
// keep filter graphs fed from sparse subtitle tracks, the fix-sub-duration
// retroactive extension, and the subtitle deep-copy rule.
package subtitle

import (
	"errors"

	"github.com/five82/xcore/internal/xcgraph"
)

// PaletteBytes is the fixed size of a bitmap subtitle's palette: 256
// entries of 4 bytes (RGBA) each. spec.md §4.4 and §9 both call out that
// plane index 1 of a SUBTITLE_BITMAP rect must be copied as exactly this
// many bytes, never as h*linesize[1].
const PaletteBytes = 256 * 4

// ErrOutOfMemory is returned by DeepCopy when an allocation fails; per
// spec.md §4.4, every partial allocation made so far must be released
// before returning it.
var ErrOutOfMemory = errors.New("subtitle: out of memory during deep copy")

// Heartbeat walks every subtitle InputStream in file and sends a
// heartbeat to each attached filter sink, so that sparse subtitle tracks
// never stall a filter graph waiting on real data (spec.md §4.4).
func Heartbeat(file *xcgraph.InputFile, ptsMicros int64) {
	for i := 0; i < file.NumStreams(); i++ {
		ist := file.StreamAt(i)
		if ist == nil || ist.Type != xcgraph.StreamSubtitle {
			continue
		}
		for _, sink := range ist.FilterSinks() {
			sink.SendHeartbeat(ptsMicros)
		}
	}
}

// Resubmitter re-enters the subtitle processing path for a synthesized
// event; supplied by the caller (the packet processor / supervisor),
// since the actual path is an external collaborator (spec.md §1).
type Resubmitter func(ist *xcgraph.InputStream, sub *xcgraph.Subtitle) error

// FixSubDurationHeartbeat implements the companion heartbeat from
// spec.md §4.4: on a key packet leaving keyOst at newPTSMicros, for every
// other OutputStream in the same OutputFile sourced from a decoded
// subtitle InputStream with FixSubDuration set, if that stream's cached
// previous subtitle predates newPTSMicros, clone it with the new PTS and
// resubmit it — retroactively extending its displayed duration.
func FixSubDurationHeartbeat(of *xcgraph.OutputFile, keyOst *xcgraph.OutputStream, newPTSMicros int64, resubmit Resubmitter) error {
	for i := 0; i < of.NumStreams(); i++ {
		ost := of.StreamAt(i)
		if ost == nil || ost == keyOst {
			continue
		}
		ist := ost.Source
		if ist == nil || ist.Type != xcgraph.StreamSubtitle || !ist.DecodingNeeded || !ist.FixSubDuration {
			continue
		}

		prev := ist.PrevSub()
		if prev == nil || prev.PTS >= newPTSMicros {
			continue
		}

		clone, err := DeepCopy(prev)
		if err != nil {
			return err
		}
		clone.PTS = newPTSMicros

		if resubmit != nil {
			if err := resubmit(ist, clone); err != nil {
				return err
			}
		}

		// The invariant (prev_sub.pts monotonic non-decreasing) is
		// upheld by advancing the cache to the synthesized event.
		ist.SetPrevSub(clone)
	}
	return nil
}

// DeepCopy duplicates a Subtitle event: every scalar field, a fresh Rects
// slice, and for each rect its scalar metadata, its Text/ASS strings, and
// its four data planes. Plane index 1 of a SUBTITLE_BITMAP rect is copied
// as exactly PaletteBytes, regardless of H*Linesize[1] (spec.md §4.4, §9).
// On any failure every partial allocation is released and ErrOutOfMemory
// is returned.
func DeepCopy(s *xcgraph.Subtitle) (out *xcgraph.Subtitle, err error) {
	if s == nil {
		return nil, nil
	}

	out = &xcgraph.Subtitle{
		PTS:   s.PTS,
		Start: s.Start,
		End:   s.End,
	}

	defer func() {
		if err != nil {
			out = nil
		}
	}()

	out.Rects = make([]xcgraph.SubtitleRect, len(s.Rects))
	for i, r := range s.Rects {
		nr := xcgraph.SubtitleRect{
			Type:     r.Type,
			X:        r.X,
			Y:        r.Y,
			W:        r.W,
			H:        r.H,
			Text:     r.Text,
			ASS:      r.ASS,
			Linesize: r.Linesize,
		}

		for j := 0; j < 4; j++ {
			if r.Data[j] == nil {
				continue
			}

			var n int
			if r.Type == xcgraph.SubtitleBitmap && j == 1 {
				n = PaletteBytes
			} else {
				n = r.H * r.Linesize[j]
			}
			if n < 0 || n > len(r.Data[j]) {
				return nil, ErrOutOfMemory
			}

			buf := make([]byte, n)
			copy(buf, r.Data[j][:n])
			nr.Data[j] = buf
		}

		out.Rects[i] = nr
	}

	return out, nil
}
