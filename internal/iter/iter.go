// Package iter provides stable cursors over the flattened input/output
// stream space, as described in spec.md §4.2. Traversal order is
// lexicographic (file_index, index); arrays are assumed append-only for
// the duration of a traversal.
package iter

import "github.com/five82/xcore/internal/xcgraph"

// OutputStreamIter returns the next OutputStream after prev in
// (file_index, index) order, or nil when exhausted. Pass nil for prev to
// start from the beginning.
func OutputStreamIter(reg *xcgraph.Registry, prev *xcgraph.OutputStream) *xcgraph.OutputStream {
	files := reg.OutputFilesSnapshot()

	startFile, startIdx := 0, 0
	if prev != nil {
		startFile, startIdx = prev.FileIndex, prev.Index+1
	}

	for fi := startFile; fi < len(files); fi++ {
		f := files[fi]
		from := 0
		if fi == startFile {
			from = startIdx
		}
		for si := from; si < f.NumStreams(); si++ {
			if s := f.StreamAt(si); s != nil {
				return s
			}
		}
	}
	return nil
}

// InputStreamIter returns the next InputStream after prev in
// (file_index, index) order, or nil when exhausted.
func InputStreamIter(reg *xcgraph.Registry, prev *xcgraph.InputStream) *xcgraph.InputStream {
	files := reg.InputFilesSnapshot()

	startFile, startIdx := 0, 0
	if prev != nil {
		startFile, startIdx = prev.FileIndex, prev.Index+1
	}

	for fi := startFile; fi < len(files); fi++ {
		f := files[fi]
		from := 0
		if fi == startFile {
			from = startIdx
		}
		for si := from; si < f.NumStreams(); si++ {
			if s := f.StreamAt(si); s != nil {
				return s
			}
		}
	}
	return nil
}

// ForEachOutputStream visits every OutputStream exactly once, in order.
func ForEachOutputStream(reg *xcgraph.Registry, fn func(*xcgraph.OutputStream)) {
	for s := OutputStreamIter(reg, nil); s != nil; s = OutputStreamIter(reg, s) {
		fn(s)
	}
}

// ForEachInputStream visits every InputStream exactly once, in order.
func ForEachInputStream(reg *xcgraph.Registry, fn func(*xcgraph.InputStream)) {
	for s := InputStreamIter(reg, nil); s != nil; s = InputStreamIter(reg, s) {
		fn(s)
	}
}
