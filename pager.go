// package pager keeps a finite, scrollable window of records
// materialized over a logically unbounded, cursor-ordered source,
// re-anchoring as the viewport moves and holding the visual scroll
// position stable while the window shifts underneath it.
package pager

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric/instrument/syncint64"
	"go.uber.org/multierr"

	"github.com/sour-is/pager/internal/lg"
	"github.com/sour-is/pager/pkg/anchor"
	"github.com/sour-is/pager/pkg/locker"
	"github.com/sour-is/pager/pkg/math"
	"github.com/sour-is/pager/pkg/session"
	"github.com/sour-is/pager/pkg/source"
	"github.com/sour-is/pager/pkg/window"
)

// Viewport is the engine's handle on the host's scroll position. The
// host pushes geometry in through Resize and Scroll; the engine
// pushes compensation out through ScrollTo.
type Viewport interface {
	// ScrollTo sets the scroll offset in viewport units. It is called
	// synchronously with the state change that shifted the window, so
	// the host can apply it before the next paint.
	ScrollTo(offset int64)
}

// PersistFunc receives the debounced session snapshot.
type PersistFunc func(listCtx string, snap session.Snapshot)

type coordState struct {
	machine anchor.State
	listCtx string

	pageSize     int
	viewportRows int64
	scrollOffset int64

	renderedFirst int64
	renderedLast  int64
	haveRendered  bool

	mounted  bool
	restored bool
	dirty    bool

	snapTimer *time.Timer
}

// Pager coordinates the paging state machine and the window
// materializer for one list-context at a time. All mutation happens
// in response to discrete events, serialized by the state lock.
type Pager[T any] struct {
	src     source.Source[T]
	extract source.ExtractCursor[T]
	mat     *window.Materializer[T]
	cfg     config
	state   *locker.Locked[coordState]
	updates chan struct{}
	wake    chan struct{}

	m_reanchor syncint64.Counter
	m_adjust   syncint64.Counter
}

const (
	defaultRowHeight       = 1
	defaultMinPageSize     = 100
	defaultRecenterFactor  = 2
	defaultSkeletonRows    = 1
	defaultPersistDebounce = 100 * time.Millisecond
)

func New[T any](ctx context.Context, src source.Source[T], extract source.ExtractCursor[T], opts ...Option) (*Pager[T], error) {
	ctx, span := lg.Span(ctx)
	defer span.End()

	cfg := config{
		rowHeight:       defaultRowHeight,
		minPageSize:     defaultMinPageSize,
		recenterFactor:  defaultRecenterFactor,
		skeletonRows:    defaultSkeletonRows,
		persistDebounce: defaultPersistDebounce,
	}
	for _, o := range opts {
		o.Apply(&cfg)
	}
	cfg.minPageSize = int(math.NextEven(cfg.minPageSize))

	var errs error
	mat, err := window.New(ctx, src, extract)
	errs = multierr.Append(errs, err)

	p := &Pager[T]{
		src:     src,
		extract: extract,
		mat:     mat,
		cfg:     cfg,
		state:   locker.New(&coordState{pageSize: cfg.minPageSize}),
		updates: make(chan struct{}, 1),
		wake:    make(chan struct{}, 1),
	}

	meter := lg.Meter(ctx)

	p.m_reanchor, err = meter.SyncInt64().Counter("pager_reanchor")
	errs = multierr.Append(errs, err)

	p.m_adjust, err = meter.SyncInt64().Counter("pager_scroll_adjust")
	errs = multierr.Append(errs, err)

	go p.run(ctx)

	return p, errs
}

// Updates signals after the engine reacts to a settled query, so the
// host knows to re-render. The signal coalesces.
func (p *Pager[T]) Updates() <-chan struct{} { return p.updates }

// Mount activates a list-context. A stored snapshot for the context
// wins over permalinkID; with neither the window anchors at the top
// of the sequence. Mounting while another context is active replaces
// the whole paging state in one transition, so no query can pair an
// old anchor with the new context.
func (p *Pager[T]) Mount(ctx context.Context, listCtx string, permalinkID string) error {
	ctx, span := lg.Span(ctx)
	defer span.End()

	span.SetAttributes(
		lg.NewAttr("listCtx", listCtx),
		lg.NewAttr("permalink", permalinkID),
	)

	var snap session.Snapshot
	var haveSnap bool
	if p.cfg.store != nil {
		var err error
		snap, haveSnap, err = p.cfg.store.Load(ctx, listCtx)
		if err != nil {
			span.RecordError(err)
			haveSnap = false
		}
	}

	return p.state.Modify(ctx, func(ctx context.Context, st *coordState) error {
		st.mounted = true
		st.listCtx = listCtx
		st.haveRendered = false
		st.dirty = false

		switch {
		case haveSnap:
			to, err := session.DecodeAnchor(snap.Anchor)
			if err != nil {
				span.RecordError(err)
				to = anchor.Top()
				snap = session.Snapshot{}
			}
			st.machine = anchor.State{}.Apply(anchor.Reset{
				Total:        snap.EstimatedTotal,
				ReachedStart: snap.HasReachedStart,
				ReachedEnd:   snap.HasReachedEnd,
				To:           to,
				QueryContext: listCtx,
			})
			st.scrollOffset = snap.ScrollOffset
			st.restored = true
			p.scrollTo(st.scrollOffset)

		case permalinkID != "":
			// Reserve room for one placeholder row above the target.
			at := p.cfg.skeletonRows
			st.machine = anchor.State{}.Apply(anchor.Reset{
				Total:        at + 1,
				To:           anchor.Permalink{At: at, RecordID: permalinkID},
				QueryContext: listCtx,
			})
			st.scrollOffset = at * p.cfg.rowHeight
			p.scrollTo(st.scrollOffset)

		default:
			st.machine = anchor.NewState(listCtx, anchor.Top())
			st.scrollOffset = 0
			p.scrollTo(0)
		}

		return p.mat.Begin(ctx, st.machine.Anchor, st.pageSize, listCtx)
	})
}

// SetContext discards the active paging state wholesale and mounts
// the new list-context.
func (p *Pager[T]) SetContext(ctx context.Context, listCtx string, permalinkID string) error {
	return p.Mount(ctx, listCtx, permalinkID)
}

// Resize reports the viewport height in viewport units. The derived
// page size covers about three viewports and only grows.
func (p *Pager[T]) Resize(ctx context.Context, height int64) error {
	ctx, span := lg.Span(ctx)
	defer span.End()

	err := p.state.Modify(ctx, func(ctx context.Context, st *coordState) error {
		st.viewportRows = math.CeilDiv(height, p.cfg.rowHeight)
		target := math.NextEven(math.Max(p.cfg.minPageSize, 3*int(st.viewportRows)))
		if target <= st.pageSize {
			return nil
		}
		st.pageSize = target
		if st.machine.Anchor == nil {
			return nil
		}
		return p.mat.Begin(ctx, st.machine.Anchor, st.pageSize, st.listCtx)
	})
	if err != nil {
		return err
	}
	return p.cycle(ctx)
}

// Scroll reports the viewport scroll offset and the index range the
// host is actually rendering.
func (p *Pager[T]) Scroll(ctx context.Context, offset int64, firstVisible, lastVisible int64) error {
	err := p.state.Modify(ctx, func(_ context.Context, st *coordState) error {
		st.scrollOffset = offset
		st.renderedFirst = firstVisible
		st.renderedLast = lastVisible
		st.haveRendered = true
		st.dirty = true
		return nil
	})
	if err != nil {
		return err
	}
	return p.cycle(ctx)
}

// run consumes materializer updates, feeding each settled query back
// through one coordination cycle.
func (p *Pager[T]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.mat.Updates():
		case <-p.wake:
		}
		if err := p.cycle(ctx); err != nil {
			continue
		}
		select {
		case p.updates <- struct{}{}:
		default:
		}
	}
}

// cycle runs one pass of the coordinator: apply any pending scroll
// compensation, settle the compensation grace period, fold the
// window's totals and boundaries into the state machine, correct a
// negative first index, and re-anchor when the rendered range nears
// an un-reached window edge.
func (p *Pager[T]) cycle(ctx context.Context) error {
	ctx, span := lg.Span(ctx)
	defer span.End()

	w, err := p.mat.Window(ctx)
	if err != nil {
		return err
	}

	return p.state.Modify(ctx, func(ctx context.Context, st *coordState) error {
		defer p.scheduleSnapshot(st)

		if !st.mounted {
			return nil
		}

		// A pending compensation applies before anything else, in the
		// same pass as the layout change that would otherwise show
		// shifted content.
		if st.machine.Phase == anchor.Adjusting {
			adjust := st.machine.PendingScrollAdjustment
			st.scrollOffset += adjust * p.cfg.rowHeight
			p.scrollTo(st.scrollOffset)
			st.machine = st.machine.Apply(anchor.ScrollAdjusted{})
			st.dirty = true
			p.m_adjust.Add(ctx, 1, lg.NewAttr("rows", adjust))
			p.kick()
			return nil
		}

		if !anchor.Equal(w.Anchor(), st.machine.Anchor) {
			// Window belongs to a superseded anchor; wait for the
			// current one to settle.
			return nil
		}

		// One full settle cycle passes between a compensation and the
		// next edge detection.
		if st.machine.Phase == anchor.Skipping {
			if w.Complete() {
				st.machine = st.machine.Apply(anchor.PagingComplete{})
				p.kick()
			}
			return nil
		}

		if !w.Complete() {
			return nil
		}

		if w.AtStart() && !st.machine.HasReachedStart {
			st.machine = st.machine.Apply(anchor.ReachedStart{})
			st.dirty = true
		}
		if w.AtEnd() && !st.machine.HasReachedEnd {
			st.machine = st.machine.Apply(anchor.ReachedEnd{})
			st.dirty = true
		}

		if first := w.FirstIndex(); first < 0 {
			// The window extended before what the anchor claimed;
			// shift the coordinate system so indexes stay global.
			offset := -first
			if st.machine.HasReachedStart {
				st.machine = st.machine.Apply(anchor.ResetToTop{Offset: offset})
			} else {
				offset += p.cfg.skeletonRows
				to := anchor.Rebase(st.machine.Anchor, offset)
				st.machine = st.machine.Apply(anchor.ShiftAnchorDown{Offset: offset, To: to})
			}
			st.dirty = true
			if err := p.mat.Rebase(ctx, offset, st.machine.Anchor); err != nil {
				return err
			}
			// Compensation applies on the next cycle.
			p.kick()
			return nil
		}

		st.machine = st.machine.Apply(anchor.UpdateEstimatedTotal{
			Total: w.FirstIndex() + int64(w.Len()),
		})
		st.dirty = true

		if st.restored {
			// A restored session keeps its exact position for one
			// cycle before edge detection resumes.
			st.restored = false
			return nil
		}

		return p.detectEdges(ctx, st, w)
	})
}

// detectEdges re-anchors when the rendered range comes within
// ceil(pageSize/10) of an un-reached window boundary, seeding the new
// anchor recenterFactor thresholds past the far rendered edge so the
// loaded window stays ahead of the scroll direction.
func (p *Pager[T]) detectEdges(ctx context.Context, st *coordState, w window.Window[T]) error {
	if !st.haveRendered || w.Len() == 0 {
		return nil
	}

	threshold := math.CeilDiv(int64(st.pageSize), 10)
	margin := p.cfg.recenterFactor * threshold
	wFirst := w.FirstIndex()
	wLast := wFirst + int64(w.Len()) - 1

	if st.renderedFirst-wFirst <= threshold && !w.AtStart() && !st.machine.HasReachedStart {
		at := math.Clamp(st.renderedLast+margin, wFirst+1, wLast)
		record, ok := w.At(at)
		if !ok {
			return nil
		}
		to := anchor.Backward{At: at, Cursor: p.extract(record)}
		return p.reanchor(ctx, st, to)
	}

	if wLast-st.renderedLast <= threshold && !w.AtEnd() && !st.machine.HasReachedEnd {
		at := math.Clamp(st.renderedFirst-margin, wFirst+1, wLast)
		if at <= 0 {
			return p.reanchor(ctx, st, anchor.Top())
		}
		record, ok := w.At(at - 1)
		if !ok {
			return nil
		}
		to := anchor.Forward{At: at, Cursor: p.extract(record)}
		return p.reanchor(ctx, st, to)
	}

	return nil
}

func (p *Pager[T]) reanchor(ctx context.Context, st *coordState, to anchor.Anchor) error {
	if anchor.Equal(to, st.machine.Anchor) {
		return nil
	}
	st.machine = st.machine.Apply(anchor.UpdateAnchor{To: to})
	st.dirty = true
	p.m_reanchor.Add(ctx, 1)
	return p.mat.Begin(ctx, to, st.pageSize, st.listCtx)
}

func (p *Pager[T]) scrollTo(offset int64) {
	if p.cfg.viewport != nil {
		p.cfg.viewport.ScrollTo(offset)
	}
}

// kick schedules another cycle without a new query settling.
func (p *Pager[T]) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}
