package anchor

import (
	"fmt"

	"github.com/sour-is/pager/pkg/math"
)

// Phase gates scroll compensation. A correction moves the state from
// Idle to Adjusting; applying it moves to Skipping for one full cycle
// before edge detection resumes. This keeps at most one correction
// outstanding and prevents the correction from racing the edge
// detection that caused it.
type Phase int

const (
	Idle Phase = iota
	Adjusting
	Skipping
)

func (p Phase) String() string {
	switch p {
	case Adjusting:
		return "adjusting"
	case Skipping:
		return "skipping"
	}
	return "idle"
}

// State is the paging state for one list-context. It is a plain
// value; all mutation goes through Apply.
type State struct {
	EstimatedTotal  int64
	HasReachedStart bool
	HasReachedEnd   bool

	Anchor Anchor
	// QueryContext tags the anchor with the list-context it was
	// computed against.
	QueryContext string

	Phase                   Phase
	PendingScrollAdjustment int64
}

// NewState returns the state for a freshly mounted list-context.
func NewState(queryContext string, a Anchor) State {
	if a == nil {
		a = Top()
	}
	return State{Anchor: a, QueryContext: queryContext}
}

// ExactTotal is known only once both boundaries have been observed.
func (s State) ExactTotal() (int64, bool) {
	if s.HasReachedStart && s.HasReachedEnd {
		return s.EstimatedTotal, true
	}
	return 0, false
}

// Action is a state transition input. Transitions are total: an
// action either replaces fields wholesale or leaves the state intact.
type Action interface{ isAction() }

type ReachedStart struct{}
type ReachedEnd struct{}
type UpdateEstimatedTotal struct{ Total int64 }
type UpdateAnchor struct{ To Anchor }

// ShiftAnchorDown replaces the anchor and schedules a scroll
// compensation of Offset rows, pushing visible content down so the
// same records stay under the viewport while the coordinate system
// shifts.
type ShiftAnchorDown struct {
	Offset int64
	To     Anchor
}

// ResetToTop re-anchors at the start of the sequence and schedules
// the same compensation for the case where the start was already
// loaded but indexed wrong.
type ResetToTop struct{ Offset int64 }

type ScrollAdjusted struct{}
type PagingComplete struct{}

// Reset atomically replaces the whole state for a list-context change
// or a session restore.
type Reset struct {
	Total        int64
	ReachedStart bool
	ReachedEnd   bool
	To           Anchor
	QueryContext string
}

func (ReachedStart) isAction()         {}
func (ReachedEnd) isAction()           {}
func (UpdateEstimatedTotal) isAction() {}
func (UpdateAnchor) isAction()         {}
func (ShiftAnchorDown) isAction()      {}
func (ResetToTop) isAction()           {}
func (ScrollAdjusted) isAction()       {}
func (PagingComplete) isAction()       {}
func (Reset) isAction()                {}

// Apply returns the state after the given actions. The receiver is
// never modified.
func (s State) Apply(actions ...Action) State {
	for _, action := range actions {
		switch action := action.(type) {
		case ReachedStart:
			s.HasReachedStart = true
		case ReachedEnd:
			s.HasReachedEnd = true
		case UpdateEstimatedTotal:
			s.EstimatedTotal = math.Max(s.EstimatedTotal, action.Total)
		case UpdateAnchor:
			s.Anchor = action.To
		case ShiftAnchorDown:
			s.Anchor = action.To
			s.PendingScrollAdjustment = action.Offset
			s.Phase = Adjusting
		case ResetToTop:
			s.Anchor = Top()
			s.HasReachedStart = true
			s.PendingScrollAdjustment = action.Offset
			s.Phase = Adjusting
		case ScrollAdjusted:
			s.EstimatedTotal = math.Max(s.EstimatedTotal, s.EstimatedTotal+s.PendingScrollAdjustment)
			s.PendingScrollAdjustment = 0
			s.Phase = Skipping
		case PagingComplete:
			if s.Phase == Skipping {
				s.Phase = Idle
			}
		case Reset:
			to := action.To
			if to == nil {
				to = Top()
			}
			s = State{
				EstimatedTotal:  action.Total,
				HasReachedStart: action.ReachedStart,
				HasReachedEnd:   action.ReachedEnd,
				Anchor:          to,
				QueryContext:    action.QueryContext,
			}
		default:
			panic(fmt.Sprintf("anchor: unknown action %T", action))
		}
	}
	return s
}
