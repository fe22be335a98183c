// package anchor holds the reference point for a materialized window
// and the paging state machine that moves it.
package anchor

import (
	"fmt"

	"github.com/sour-is/pager/pkg/source"
)

// Anchor is where the currently materialized window begins or
// centers. Exactly one anchor is active per list-context; an anchor
// plus a page size fully determines which page queries execute.
type Anchor interface {
	Index() int64
	isAnchor()
}

// Forward anchors a window starting at At, iterating oldest-first
// from Cursor. A nil cursor starts at the beginning of the sequence.
type Forward struct {
	At     int64
	Cursor source.Cursor
}

// Backward anchors a window ending just before At, fetched backward
// from Cursor. The cursor is required.
type Backward struct {
	At     int64
	Cursor source.Cursor
}

// Permalink centers the window so the record identified by RecordID
// occupies slot At. Halves before and after are fetched independently.
type Permalink struct {
	At       int64
	RecordID string
}

func (a Forward) Index() int64   { return a.At }
func (a Backward) Index() int64  { return a.At }
func (a Permalink) Index() int64 { return a.At }

func (Forward) isAnchor()   {}
func (Backward) isAnchor()  {}
func (Permalink) isAnchor() {}

func (a Forward) String() string   { return fmt.Sprintf("forward(%d)", a.At) }
func (a Backward) String() string  { return fmt.Sprintf("backward(%d)", a.At) }
func (a Permalink) String() string { return fmt.Sprintf("permalink(%d, %s)", a.At, a.RecordID) }

// Top returns the start-of-sequence anchor.
func Top() Anchor { return Forward{} }

// Rebase shifts an anchor's index by offset without changing which
// record it names.
func Rebase(a Anchor, offset int64) Anchor {
	switch a := a.(type) {
	case Forward:
		a.At += offset
		return a
	case Backward:
		a.At += offset
		return a
	case Permalink:
		a.At += offset
		return a
	}
	return a
}

// Equal reports whether two anchors would execute the same queries.
func Equal(a, b Anchor) bool {
	switch a := a.(type) {
	case Forward:
		b, ok := b.(Forward)
		return ok && a.At == b.At && string(a.Cursor) == string(b.Cursor)
	case Backward:
		b, ok := b.(Backward)
		return ok && a.At == b.At && string(a.Cursor) == string(b.Cursor)
	case Permalink:
		b, ok := b.(Permalink)
		return ok && a.At == b.At && a.RecordID == b.RecordID
	case nil:
		return b == nil
	}
	return false
}
