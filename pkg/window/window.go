// package window materializes an index-addressable window of records
// around an anchor by issuing cursor page queries.
package window

import (
	"github.com/sour-is/pager/pkg/anchor"
)

type block[T any] struct {
	first   int64
	records []T
}

// Window is a snapshot of the currently loaded records, addressable
// by global index. It is contiguous for forward and backward anchors
// and split-contiguous for a permalink anchor while its halves are
// still settling.
type Window[T any] struct {
	anchor  anchor.Anchor
	blocks  []block[T]
	loaded  int
	issued  int
	settled int

	atStart, atEnd    bool
	permalinkNotFound bool
}

// Anchor the window was materialized against.
func (w Window[T]) Anchor() anchor.Anchor { return w.anchor }

// FirstIndex is the global index of the first loaded record. It can
// be negative when a backward-extending fetch loaded more records
// than the anchor's index accounted for.
func (w Window[T]) FirstIndex() int64 {
	if len(w.blocks) == 0 {
		if w.anchor == nil {
			return 0
		}
		return w.anchor.Index()
	}
	return w.blocks[0].first
}

// Len is the count of loaded records.
func (w Window[T]) Len() int { return w.loaded }

// At returns the record at global index i, if loaded.
func (w Window[T]) At(i int64) (T, bool) {
	for _, b := range w.blocks {
		if i >= b.first && i < b.first+int64(len(b.records)) {
			return b.records[i-b.first], true
		}
	}
	var zero T
	return zero, false
}

// Complete reports whether every query issued for the current anchor
// and page size has settled.
func (w Window[T]) Complete() bool {
	return w.issued > 0 && w.settled == w.issued
}

// Empty reports a settled window with no records.
func (w Window[T]) Empty() bool { return w.Complete() && w.loaded == 0 }

// AtStart and AtEnd report boundaries observed by this window's own
// queries, not the sticky session-level flags.
func (w Window[T]) AtStart() bool { return w.atStart }
func (w Window[T]) AtEnd() bool   { return w.atEnd }

// PermalinkNotFound reports a terminal, non-retried miss of the
// permalink target. Distinct from loading.
func (w Window[T]) PermalinkNotFound() bool { return w.permalinkNotFound }

func (w *Window[T]) insert(b block[T]) {
	if len(b.records) == 0 {
		return
	}
	at := len(w.blocks)
	for i := range w.blocks {
		if b.first < w.blocks[i].first {
			at = i
			break
		}
	}
	w.blocks = append(w.blocks, block[T]{})
	copy(w.blocks[at+1:], w.blocks[at:])
	w.blocks[at] = b
	w.loaded += len(b.records)
	w.coalesce()
}

func (w *Window[T]) coalesce() {
	out := w.blocks[:0]
	for _, b := range w.blocks {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if prev.first+int64(len(prev.records)) == b.first {
				prev.records = append(prev.records, b.records...)
				continue
			}
		}
		out = append(out, b)
	}
	w.blocks = out
}

func (w *Window[T]) rebase(offset int64) {
	w.anchor = anchor.Rebase(w.anchor, offset)
	for i := range w.blocks {
		w.blocks[i].first += offset
	}
}
