package pager

import (
	"context"
	"time"

	"github.com/sour-is/pager/internal/lg"
	"github.com/sour-is/pager/pkg/session"
)

// WindowAt returns the record at global index i, if loaded. Absent
// records render as placeholders in the host.
func (p *Pager[T]) WindowAt(ctx context.Context, i int64) (T, bool) {
	w, err := p.mat.Window(ctx)
	if err != nil {
		var zero T
		return zero, false
	}
	return w.At(i)
}

// WindowBounds returns the first loaded index and the loaded count.
func (p *Pager[T]) WindowBounds(ctx context.Context) (first int64, count int) {
	w, err := p.mat.Window(ctx)
	if err != nil {
		return 0, 0
	}
	return w.FirstIndex(), w.Len()
}

// EstimatedTotal is a monotonically non-decreasing lower bound on the
// sequence length for the active list-context.
func (p *Pager[T]) EstimatedTotal(ctx context.Context) int64 {
	st, err := p.state.Copy(ctx)
	if err != nil {
		return 0
	}
	return st.machine.EstimatedTotal
}

// ExactTotal is known only once both sequence boundaries have been
// observed, and then equals EstimatedTotal.
func (p *Pager[T]) ExactTotal(ctx context.Context) (int64, bool) {
	st, err := p.state.Copy(ctx)
	if err != nil {
		return 0, false
	}
	return st.machine.ExactTotal()
}

// DisplayTotal returns a presentable total: the exact count when
// known, otherwise the estimate rounded down to a coarse granularity
// so it does not visibly tick upward as pages settle.
func (p *Pager[T]) DisplayTotal(ctx context.Context) (int64, bool) {
	st, err := p.state.Copy(ctx)
	if err != nil {
		return 0, false
	}
	if exact, ok := st.machine.ExactTotal(); ok {
		return exact, true
	}
	estimate := st.machine.EstimatedTotal
	if estimate > 100 {
		estimate -= estimate % 50
	}
	return estimate, false
}

// Complete reports whether every query for the active anchor settled.
func (p *Pager[T]) Complete(ctx context.Context) bool {
	w, err := p.mat.Window(ctx)
	return err == nil && w.Complete()
}

// Empty reports a settled window over an empty sequence.
func (p *Pager[T]) Empty(ctx context.Context) bool {
	w, err := p.mat.Window(ctx)
	return err == nil && w.Empty()
}

// PermalinkNotFound reports a terminal miss of the permalink target.
func (p *Pager[T]) PermalinkNotFound(ctx context.Context) bool {
	w, err := p.mat.Window(ctx)
	return err == nil && w.PermalinkNotFound()
}

// Err surfaces the most recent query failure, which otherwise leaves
// the window pending. Reload re-issues the failed queries.
func (p *Pager[T]) Err(ctx context.Context) error { return p.mat.Err(ctx) }

// Reload re-issues the active anchor's queries.
func (p *Pager[T]) Reload(ctx context.Context) error { return p.mat.Reload(ctx) }

// Snapshot captures the session for the active list-context.
func (p *Pager[T]) Snapshot(ctx context.Context) (session.Snapshot, error) {
	st, err := p.state.Copy(ctx)
	if err != nil {
		return session.Snapshot{}, err
	}
	return snapshotOf(&st), nil
}

func snapshotOf(st *coordState) session.Snapshot {
	return session.Snapshot{
		Anchor:          session.EncodeAnchor(st.machine.Anchor),
		ScrollOffset:    st.scrollOffset,
		EstimatedTotal:  st.machine.EstimatedTotal,
		HasReachedStart: st.machine.HasReachedStart,
		HasReachedEnd:   st.machine.HasReachedEnd,
	}
}

// scheduleSnapshot coalesces snapshot emission: the timer resets on
// every change, emitting once the state has been quiet for the
// debounce interval. Called with the state lock held.
func (p *Pager[T]) scheduleSnapshot(st *coordState) {
	if !st.mounted || !st.dirty || (p.cfg.store == nil && p.cfg.persist == nil) {
		return
	}
	st.dirty = false

	listCtx := st.listCtx
	snap := snapshotOf(st)

	if st.snapTimer != nil {
		st.snapTimer.Stop()
	}
	st.snapTimer = time.AfterFunc(p.cfg.persistDebounce, func() {
		p.emitSnapshot(listCtx, snap)
	})
}

func (p *Pager[T]) emitSnapshot(listCtx string, snap session.Snapshot) {
	ctx, span := lg.Span(context.Background())
	defer span.End()

	if p.cfg.store != nil {
		if err := p.cfg.store.Save(ctx, listCtx, snap); err != nil {
			span.RecordError(err)
		}
	}
	if p.cfg.persist != nil {
		p.cfg.persist(listCtx, snap)
	}
}
