package subtitle

import (
	"bytes"
	"testing"

	"github.com/five82/xcore/internal/xcgraph"
)

func makeBitmapSub() *xcgraph.Subtitle {
	plane0 := bytes.Repeat([]byte{0xAB}, 10*4) // h*linesize[0]
	palette := bytes.Repeat([]byte{0xCD}, PaletteBytes)
	// Oversized plane1 buffer: a naive h*linesize[1] copy would grab more
	// than the palette and corrupt it, per spec.md §9.
	oversizedPlane1 := append(append([]byte{}, palette...), bytes.Repeat([]byte{0xFF}, 100)...)

	return &xcgraph.Subtitle{
		PTS: 1_000_000,
		Rects: []xcgraph.SubtitleRect{
			{
				Type:     xcgraph.SubtitleBitmap,
				H:        10,
				Linesize: [4]int{4, len(oversizedPlane1), 0, 0},
				Data:     [4][]byte{plane0, oversizedPlane1, nil, nil},
			},
		},
	}
}

func TestDeepCopyPaletteSpecialCase(t *testing.T) {
	src := makeBitmapSub()
	clone, err := DeepCopy(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plane1 := clone.Rects[0].Data[1]
	if len(plane1) != PaletteBytes {
		t.Fatalf("got plane1 length %d, want %d", len(plane1), PaletteBytes)
	}
	want := bytes.Repeat([]byte{0xCD}, PaletteBytes)
	if !bytes.Equal(plane1, want) {
		t.Fatalf("palette bytes corrupted")
	}
}

func TestDeepCopyNonBitmapPlaneUsesLinesize(t *testing.T) {
	data := bytes.Repeat([]byte{0x11}, 5*3)
	src := &xcgraph.Subtitle{
		Rects: []xcgraph.SubtitleRect{
			{Type: xcgraph.SubtitleText, H: 5, Linesize: [4]int{3, 0, 0, 0}, Data: [4][]byte{data, nil, nil, nil}},
		},
	}
	clone, err := DeepCopy(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clone.Rects[0].Data[0]) != 15 {
		t.Fatalf("got %d, want 15", len(clone.Rects[0].Data[0]))
	}
}

func TestDeepCopyIsIdempotentUnderComposition(t *testing.T) {
	src := makeBitmapSub()

	once, err := DeepCopy(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := DeepCopy(once)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if once.PTS != twice.PTS {
		t.Fatalf("PTS mismatch: %d vs %d", once.PTS, twice.PTS)
	}
	if len(once.Rects) != len(twice.Rects) {
		t.Fatalf("rect count mismatch")
	}
	for i := range once.Rects {
		for j := 0; j < 4; j++ {
			if !bytes.Equal(once.Rects[i].Data[j], twice.Rects[i].Data[j]) {
				t.Fatalf("plane %d mismatch at rect %d", j, i)
			}
		}
	}
}

func TestDeepCopyNil(t *testing.T) {
	clone, err := DeepCopy(nil)
	if err != nil || clone != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", clone, err)
	}
}

func TestFixSubDurationHeartbeatAdvancesMonotonicPrevSub(t *testing.T) {
	of := xcgraph.NewOutputFile(0)
	subIst := &xcgraph.InputStream{Type: xcgraph.StreamSubtitle, DecodingNeeded: true, FixSubDuration: true}
	subIst.SetPrevSub(&xcgraph.Subtitle{PTS: 1_000_000})

	keyOst := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	of.AddStream(keyOst)

	subOst := xcgraph.NewOutputStream(0, 1, xcgraph.StreamSubtitle)
	subOst.BindStreamCopy(subIst)
	of.AddStream(subOst)

	var resubmitted *xcgraph.Subtitle
	err := FixSubDurationHeartbeat(of, keyOst, 2_000_000, func(ist *xcgraph.InputStream, sub *xcgraph.Subtitle) error {
		resubmitted = sub
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resubmitted == nil || resubmitted.PTS != 2_000_000 {
		t.Fatalf("expected resubmitted subtitle at pts=2000000, got %+v", resubmitted)
	}
	if got := subIst.PrevSub().PTS; got != 2_000_000 {
		t.Fatalf("prev_sub not advanced: got %d", got)
	}
}

func TestFixSubDurationHeartbeatSkipsWhenNotStrictlyLess(t *testing.T) {
	of := xcgraph.NewOutputFile(0)
	subIst := &xcgraph.InputStream{Type: xcgraph.StreamSubtitle, DecodingNeeded: true, FixSubDuration: true}
	subIst.SetPrevSub(&xcgraph.Subtitle{PTS: 2_000_000})

	keyOst := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	of.AddStream(keyOst)
	subOst := xcgraph.NewOutputStream(0, 1, xcgraph.StreamSubtitle)
	subOst.BindStreamCopy(subIst)
	of.AddStream(subOst)

	called := false
	err := FixSubDurationHeartbeat(of, keyOst, 2_000_000, func(*xcgraph.InputStream, *xcgraph.Subtitle) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("expected no resubmission when prev.pts is not strictly less than new pts")
	}
}
