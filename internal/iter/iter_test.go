package iter

import (
	"testing"

	"github.com/five82/xcore/internal/xcgraph"
)

func buildRegistry(t *testing.T, fileStreamCounts ...int) *xcgraph.Registry {
	t.Helper()
	reg := xcgraph.NewRegistry()
	for fi, n := range fileStreamCounts {
		f := xcgraph.NewOutputFile(fi)
		for si := 0; si < n; si++ {
			f.AddStream(xcgraph.NewOutputStream(fi, si, xcgraph.StreamVideo))
		}
		reg.AddOutputFile(f)
	}
	return reg
}

func TestOutputStreamIterVisitsEveryStreamOnce(t *testing.T) {
	reg := buildRegistry(t, 2, 0, 3)

	var seen [][2]int
	for s := OutputStreamIter(reg, nil); s != nil; s = OutputStreamIter(reg, s) {
		seen = append(seen, [2]int{s.FileIndex, s.Index})
	}

	want := [][2]int{{0, 0}, {0, 1}, {2, 0}, {2, 1}, {2, 2}}
	if len(seen) != len(want) {
		t.Fatalf("got %d streams, want %d: %v", len(seen), len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("position %d: got %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestOutputStreamIterEmptyRegistry(t *testing.T) {
	reg := xcgraph.NewRegistry()
	if s := OutputStreamIter(reg, nil); s != nil {
		t.Fatalf("expected nil on empty registry, got %v", s)
	}
}

func TestOutputStreamIterStableUnderAppend(t *testing.T) {
	reg := buildRegistry(t, 1)
	first := OutputStreamIter(reg, nil)
	if first == nil {
		t.Fatal("expected first stream")
	}

	// Appending a new stream to a later file must not disturb a
	// traversal already in progress from an earlier cursor position.
	f := xcgraph.NewOutputFile(1)
	f.AddStream(xcgraph.NewOutputStream(1, 0, xcgraph.StreamAudio))
	reg.AddOutputFile(f)

	second := OutputStreamIter(reg, first)
	if second == nil || second.FileIndex != 1 {
		t.Fatalf("expected newly appended stream to be visited next, got %v", second)
	}
}

func TestForEachInputStream(t *testing.T) {
	reg := xcgraph.NewRegistry()
	f0 := xcgraph.NewInputFile(0)
	f0.AddStream(&xcgraph.InputStream{Type: xcgraph.StreamVideo})
	f0.AddStream(&xcgraph.InputStream{Type: xcgraph.StreamAudio})
	reg.AddInputFile(f0)

	var count int
	iterSeen := map[int]bool{}
	ForEachInputStream(reg, func(s *xcgraph.InputStream) {
		count++
		iterSeen[s.Index] = true
	})

	if count != 2 {
		t.Fatalf("got %d visits, want 2", count)
	}
	if !iterSeen[0] || !iterSeen[1] {
		t.Fatalf("expected indices 0 and 1 visited, got %v", iterSeen)
	}
}
