package input

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/five82/xcore/internal/decode"
	"github.com/five82/xcore/internal/packet"
	"github.com/five82/xcore/internal/xcgraph"
)

type scriptedDemuxer struct {
	pkts []*decode.Packet
	errs []error
	i    int
}

func (d *scriptedDemuxer) GetPacket(ctx context.Context) (*decode.Packet, error) {
	if d.i >= len(d.pkts) {
		return nil, errors.New("scriptedDemuxer exhausted")
	}
	p, e := d.pkts[d.i], d.errs[d.i]
	d.i++
	return p, e
}

func TestProcessInputAgainSetsFileEAGAIN(t *testing.T) {
	file := xcgraph.NewInputFile(0)
	dmx := &scriptedDemuxer{pkts: []*decode.Packet{nil}, errs: []error{decode.ErrAgain}}

	status, err := ProcessInput(context.Background(), file, dmx, nil, nil, packet.DurationParams{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusAgain {
		t.Fatalf("expected StatusAgain, got %v", status)
	}
	if !file.EAGAIN() {
		t.Fatal("expected file EAGAIN flag set")
	}
}

func TestProcessInputSuccessClearsEAGAINGlobally(t *testing.T) {
	file := xcgraph.NewInputFile(0)
	file.AddStream(&xcgraph.InputStream{})
	dmx := &scriptedDemuxer{
		pkts: []*decode.Packet{{StreamIndex: 0, HasDTSEstimate: true, DemuxDTSEstimate: 1000}},
		errs: []error{nil},
	}

	var cleared bool
	status, err := ProcessInput(context.Background(), file, dmx, nil, nil, packet.DurationParams{}, nil, func() { cleared = true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
	if file.EAGAIN() {
		t.Fatal("expected file EAGAIN cleared on success")
	}
	if !cleared {
		t.Fatal("expected ClearAllEAGAIN callback invoked")
	}
}

func TestProcessInputEOFFlushesAndMarksFileEOF(t *testing.T) {
	file := xcgraph.NewInputFile(0)
	ist := file.AddStream(&xcgraph.InputStream{})
	ost := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	ost.BindStreamCopy(ist)

	dmx := &scriptedDemuxer{pkts: []*decode.Packet{nil}, errs: []error{io.EOF}}

	status, err := ProcessInput(context.Background(), file, dmx, nil, nil, packet.DurationParams{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusAgain {
		t.Fatalf("expected StatusAgain (give other files a turn), got %v", status)
	}
	if !file.EOFReached() {
		t.Fatal("expected file marked eof_reached")
	}
	if !ost.FinishedBits().Has(xcgraph.EncoderFinished) {
		t.Fatal("expected downstream output stream closed on genuine EOF")
	}
}

func TestProcessInputOtherErrorAbortedWhenConfigured(t *testing.T) {
	file := xcgraph.NewInputFile(0)
	dmx := &scriptedDemuxer{pkts: []*decode.Packet{nil}, errs: []error{errors.New("corrupt stream")}}

	status, err := ProcessInput(context.Background(), file, dmx, nil, nil, packet.DurationParams{}, func(error) bool { return true }, nil)
	if err == nil {
		t.Fatal("expected the abort-configured error to propagate")
	}
	if status != StatusEOF {
		t.Fatalf("expected StatusEOF on abort, got %v", status)
	}
}

func TestProcessInputLoopRestartFlushesWithoutClosingConsumers(t *testing.T) {
	file := xcgraph.NewInputFile(0)
	ist := file.AddStream(&xcgraph.InputStream{})
	ost := xcgraph.NewOutputStream(0, 0, xcgraph.StreamVideo)
	ost.BindStreamCopy(ist)

	dmx := &scriptedDemuxer{pkts: []*decode.Packet{nil}, errs: []error{decode.ErrLoopRestart}}

	status, err := ProcessInput(context.Background(), file, dmx, nil, nil, packet.DurationParams{}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusAgain {
		t.Fatalf("expected StatusAgain, got %v", status)
	}
	if ost.FinishedBits().Has(xcgraph.EncoderFinished) {
		t.Fatal("loop restart must not close stream-copy consumers mid-file")
	}
	if file.EOFReached() {
		t.Fatal("loop restart must not mark the file eof_reached")
	}
}

func TestPrefetchReadySkipsExceptAndStarvedFiles(t *testing.T) {
	except := xcgraph.NewInputFile(0)
	except.SetEAGAIN(true) // pretend this is the file the caller is already stuck on

	starved := xcgraph.NewInputFile(1)
	starved.SetEAGAIN(true)

	ready := xcgraph.NewInputFile(2)
	ready.AddStream(&xcgraph.InputStream{})
	readyDmx := &scriptedDemuxer{
		pkts: []*decode.Packet{{StreamIndex: 0, HasDTSEstimate: true, DemuxDTSEstimate: 500}},
		errs: []error{nil},
	}

	demuxerFor := func(f *xcgraph.InputFile) decode.Demuxer {
		if f == ready {
			return readyDmx
		}
		t.Fatalf("expected only the ready file to be dialed, got file index %d", f.Index)
		return nil
	}

	err := PrefetchReady(context.Background(), []*xcgraph.InputFile{except, starved, ready}, except, demuxerFor, nil, nil, packet.DurationParams{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if readyDmx.i != 1 {
		t.Fatalf("expected exactly one packet pulled from the ready file, got %d", readyDmx.i)
	}
}

func TestDecodeFlushForwardsAudioDuration(t *testing.T) {
	file := xcgraph.NewInputFile(0)
	ist := file.AddStream(&xcgraph.InputStream{Type: xcgraph.StreamAudio, SampleRate: 48000})
	ist.LastFrameSamples.Store(48000) // exactly one second

	if err := decodeFlush(context.Background(), file, nil, nil, packet.DurationParams{}, false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case d := <-file.AudioDurationCh:
		if d != time.Second {
			t.Fatalf("expected 1s duration, got %v", d)
		}
	default:
		t.Fatal("expected a duration forwarded on AudioDurationCh")
	}
}
