// package session persists the scroll session of a list-context so a
// later mount can restore anchor, scroll offset and totals without
// re-deriving them.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/sour-is/pager/pkg/anchor"
	"github.com/sour-is/pager/pkg/source"
)

// Snapshot is the five-field persistence payload. It round-trips
// through JSON as plain structured data.
type Snapshot struct {
	Anchor          Anchor `json:"anchor"`
	ScrollOffset    int64  `json:"scroll_offset"`
	EstimatedTotal  int64  `json:"estimated_total"`
	HasReachedStart bool   `json:"has_reached_start"`
	HasReachedEnd   bool   `json:"has_reached_end"`
}

// Anchor is the wire form of an anchor.Anchor, tagged by kind.
type Anchor struct {
	Kind     string        `json:"kind"`
	Index    int64         `json:"index"`
	Cursor   source.Cursor `json:"cursor,omitempty"`
	RecordID string        `json:"record_id,omitempty"`
}

const (
	kindForward   = "forward"
	kindBackward  = "backward"
	kindPermalink = "permalink"
)

// EncodeAnchor projects an anchor into its wire form.
func EncodeAnchor(a anchor.Anchor) Anchor {
	switch a := a.(type) {
	case anchor.Forward:
		return Anchor{Kind: kindForward, Index: a.At, Cursor: a.Cursor}
	case anchor.Backward:
		return Anchor{Kind: kindBackward, Index: a.At, Cursor: a.Cursor}
	case anchor.Permalink:
		return Anchor{Kind: kindPermalink, Index: a.At, RecordID: a.RecordID}
	case nil:
		return Anchor{Kind: kindForward}
	}
	panic(fmt.Sprintf("session: unknown anchor %T", a))
}

// DecodeAnchor rebuilds an anchor from its wire form.
func DecodeAnchor(a Anchor) (anchor.Anchor, error) {
	switch a.Kind {
	case kindForward, "":
		return anchor.Forward{At: a.Index, Cursor: a.Cursor}, nil
	case kindBackward:
		if a.Cursor == nil {
			return nil, fmt.Errorf("%w: backward anchor without cursor", ErrBadSnapshot)
		}
		return anchor.Backward{At: a.Index, Cursor: a.Cursor}, nil
	case kindPermalink:
		if a.RecordID == "" {
			return nil, fmt.Errorf("%w: permalink anchor without record id", ErrBadSnapshot)
		}
		return anchor.Permalink{At: a.Index, RecordID: a.RecordID}, nil
	}
	return nil, fmt.Errorf("%w: kind %q", ErrBadSnapshot, a.Kind)
}

func (s Snapshot) MarshalBinary() ([]byte, error)  { return json.Marshal(s) }
func (s *Snapshot) UnmarshalBinary(b []byte) error { return json.Unmarshal(b, s) }
