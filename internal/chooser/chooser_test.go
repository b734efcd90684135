package chooser

import (
	"testing"

	"github.com/five82/xcore/internal/xcgraph"
)

type fakeFilter struct {
	pts    int64
	hasPTS bool
	needed *xcgraph.InputStream
}

func (f *fakeFilter) LastPTS() (int64, bool)          { return f.pts, f.hasPTS }
func (f *fakeFilter) NeedsInput() *xcgraph.InputStream { return f.needed }

func newRegWithOutputs(streams ...*xcgraph.OutputStream) *xcgraph.Registry {
	reg := xcgraph.NewRegistry()
	of := xcgraph.NewOutputFile(0)
	for _, s := range streams {
		of.AddStream(s)
	}
	reg.AddOutputFile(of)
	return reg
}

func TestChooseEOFWhenNoCandidates(t *testing.T) {
	reg := xcgraph.NewRegistry()
	c := New()
	_, status := c.Choose(reg)
	if status != StatusEOF {
		t.Fatalf("expected StatusEOF, got %v", status)
	}
}

func TestChooseImmediateBreakOnUninitializedStream(t *testing.T) {
	a := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	a.SetLastMuxDTS(5000)
	a.SetInitialized(true)
	a.SetInputsDone(true)

	b := xcgraph.NewOutputStream(0, 1, xcgraph.StreamVideo)
	// b stays uninitialized and inputs not done: must win immediately.

	reg := newRegWithOutputs(a, b)
	c := New()
	winner, status := c.Choose(reg)
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if winner != b {
		t.Fatal("expected the uninitialized stream to win immediately")
	}
}

func TestChooseMinimumMetricAmongInitializedStreams(t *testing.T) {
	a := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	a.SetInitialized(true)
	a.SetInputsDone(true)
	a.SetLastMuxDTS(10_000)

	b := xcgraph.NewOutputStream(0, 1, xcgraph.StreamVideo)
	b.SetInitialized(true)
	b.SetInputsDone(true)
	b.SetLastMuxDTS(2_000)

	reg := newRegWithOutputs(a, b)
	c := New()
	winner, status := c.Choose(reg)
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if winner != b {
		t.Fatal("expected the stream with the smaller last_mux_dts to win")
	}
}

func TestChooseUnavailableWinnerReturnsAgain(t *testing.T) {
	a := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	a.SetInitialized(true)
	a.SetInputsDone(true)
	a.SetLastMuxDTS(1000)
	a.SetUnavailable(true)

	reg := newRegWithOutputs(a)
	c := New()
	winner, status := c.Choose(reg)
	if status != StatusAgain {
		t.Fatalf("expected StatusAgain, got %v", status)
	}
	if winner != a {
		t.Fatal("expected the unavailable stream returned as the (non-ready) winner")
	}
}

func TestChooseSkipsFinishedStreams(t *testing.T) {
	a := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	a.CloseOutputStream()

	reg := newRegWithOutputs(a)
	c := New()
	_, status := c.Choose(reg)
	if status != StatusEOF {
		t.Fatalf("expected StatusEOF when every stream is finished, got %v", status)
	}
}

func TestChooseUnsetLastMuxDTSTreatedAsNegativeInfinityAndLogsOnce(t *testing.T) {
	a := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	a.SetInitialized(true)
	a.SetInputsDone(true)
	// last_mux_dts left unset.

	b := xcgraph.NewOutputStream(0, 1, xcgraph.StreamVideo)
	b.SetInitialized(true)
	b.SetInputsDone(true)
	b.SetLastMuxDTS(-1_000_000)

	reg := newRegWithOutputs(a, b)
	c := New()
	var warnCount int
	c.OnUnset = func(*xcgraph.OutputStream) { warnCount++ }

	winner, status := c.Choose(reg)
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if winner != a {
		t.Fatal("expected the never-muxed stream (-inf metric) to win over a very negative but real dts")
	}

	if _, status = c.Choose(reg); status != StatusOK {
		t.Fatalf("expected StatusOK on second scan, got %v", status)
	}
	if warnCount != 1 {
		t.Fatalf("expected the unset-metric debug log to fire exactly once, got %d", warnCount)
	}
}

func TestChooseFilterBackedSkippedWhenLastPTSUnset(t *testing.T) {
	a := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	a.SetInitialized(true)
	a.SetInputsDone(true)
	a.BindFilter(&fakeFilter{hasPTS: false})

	reg := newRegWithOutputs(a)
	c := New()
	_, status := c.Choose(reg)
	if status != StatusEOF {
		t.Fatalf("expected StatusEOF when the only stream's filter has no PTS yet, got %v", status)
	}
}

func TestChooseFilterBackedUsesLastPTS(t *testing.T) {
	a := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	a.SetInitialized(true)
	a.SetInputsDone(true)
	a.BindFilter(&fakeFilter{hasPTS: true, pts: 500})

	b := xcgraph.NewOutputStream(0, 1, xcgraph.StreamVideo)
	b.SetInitialized(true)
	b.SetInputsDone(true)
	b.SetLastMuxDTS(9000)

	reg := newRegWithOutputs(a, b)
	c := New()
	winner, status := c.Choose(reg)
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if winner != a {
		t.Fatal("expected the filter-backed stream with the smaller metric to win")
	}
}
