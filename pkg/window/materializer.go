package window

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric/instrument/syncint64"
	"go.uber.org/multierr"

	"github.com/sour-is/pager/internal/lg"
	"github.com/sour-is/pager/pkg/anchor"
	"github.com/sour-is/pager/pkg/locker"
	"github.com/sour-is/pager/pkg/source"
)

type matState[T any] struct {
	gen      uint64
	pageSize int
	listCtx  string
	window   Window[T]
	lastErr  error
}

// Materializer issues the page queries an anchor requires and folds
// their results into a Window. Queries settle asynchronously and in
// any order; a result whose generation no longer matches the active
// anchor is dropped on arrival.
type Materializer[T any] struct {
	src     source.Source[T]
	extract source.ExtractCursor[T]
	state   *locker.Locked[matState[T]]
	updates chan struct{}

	m_fetch syncint64.Counter
	m_stale syncint64.Counter
}

func New[T any](ctx context.Context, src source.Source[T], extract source.ExtractCursor[T]) (*Materializer[T], error) {
	_, span := lg.Span(ctx)
	defer span.End()

	m := &Materializer[T]{
		src:     src,
		extract: extract,
		state:   locker.New(&matState[T]{}),
		updates: make(chan struct{}, 1),
	}

	var err, errs error
	meter := lg.Meter(ctx)

	m.m_fetch, err = meter.SyncInt64().Counter("pager_fetch")
	errs = multierr.Append(errs, err)

	m.m_stale, err = meter.SyncInt64().Counter("pager_fetch_stale")
	errs = multierr.Append(errs, err)

	return m, errs
}

// Updates signals after every settled query. The signal coalesces;
// consumers snapshot the window on receipt.
func (m *Materializer[T]) Updates() <-chan struct{} { return m.updates }

// Begin supersedes any in-flight queries and materializes a fresh
// window for the anchor. Results of superseded queries are discarded
// when they land. The page size must be positive and even; a
// backward anchor must carry a cursor. Violations are programming
// errors and panic.
func (m *Materializer[T]) Begin(ctx context.Context, a anchor.Anchor, pageSize int, listCtx string) error {
	ctx, span := lg.Span(ctx)
	defer span.End()

	if pageSize <= 0 || pageSize%2 != 0 {
		panic(fmt.Sprintf("window: page size must be positive and even, got %d", pageSize))
	}
	if a == nil {
		a = anchor.Top()
	}
	if b, ok := a.(anchor.Backward); ok && b.Cursor == nil {
		panic("window: backward anchor requires a cursor")
	}

	span.SetAttributes(
		lg.NewAttr("anchor", fmt.Sprint(a)),
		lg.NewAttr("pageSize", pageSize),
		lg.NewAttr("listCtx", listCtx),
	)

	var gen uint64
	err := m.state.Modify(ctx, func(_ context.Context, st *matState[T]) error {
		st.gen++
		gen = st.gen
		st.pageSize = pageSize
		st.listCtx = listCtx
		st.lastErr = nil
		st.window = Window[T]{anchor: a}

		switch a.(type) {
		case anchor.Forward, anchor.Backward:
			st.window.issued = 1
		case anchor.Permalink:
			st.window.issued = 1 // before/after follow once the target resolves
		}
		return nil
	})
	if err != nil {
		return err
	}

	fetchCtx := lg.Fork(ctx)
	switch a := a.(type) {
	case anchor.Forward:
		go m.fetchEdge(fetchCtx, gen, a.Cursor, source.Forward, pageSize)
	case anchor.Backward:
		go m.fetchEdge(fetchCtx, gen, a.Cursor, source.Backward, pageSize)
	case anchor.Permalink:
		go m.fetchExact(fetchCtx, gen, a)
	}

	return nil
}

// Reload re-issues the current anchor's queries, for host-driven
// retry after a transport failure.
func (m *Materializer[T]) Reload(ctx context.Context) error {
	st, err := m.state.Copy(ctx)
	if err != nil {
		return err
	}
	if st.window.anchor == nil || st.pageSize == 0 {
		return nil
	}
	return m.Begin(ctx, st.window.anchor, st.pageSize, st.listCtx)
}

// Window snapshots the current materialized state.
func (m *Materializer[T]) Window(ctx context.Context) (Window[T], error) {
	var w Window[T]
	err := m.state.Modify(ctx, func(_ context.Context, st *matState[T]) error {
		w = st.window
		w.blocks = append([]block[T](nil), st.window.blocks...)
		return nil
	})
	return w, err
}

// Rebase shifts the window's coordinate system down by offset rows,
// after the coordinator discovers the first index went negative.
// Every loaded block moves together so no record changes identity; to
// replaces the anchor so it tracks the state machine's.
func (m *Materializer[T]) Rebase(ctx context.Context, offset int64, to anchor.Anchor) error {
	ctx, span := lg.Span(ctx)
	defer span.End()

	return m.state.Modify(ctx, func(_ context.Context, st *matState[T]) error {
		st.window.rebase(offset)
		if to != nil {
			st.window.anchor = to
		}
		return nil
	})
}

// Err returns the most recent query failure for the active anchor,
// if any. A failed query stays pending; Reload re-issues it.
func (m *Materializer[T]) Err(ctx context.Context) error {
	st, err := m.state.Copy(ctx)
	if err != nil {
		return err
	}
	return st.lastErr
}

func (m *Materializer[T]) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

// fetchEdge runs the single page query of a forward or backward
// anchor. The limit carries one look-ahead record for boundary
// detection.
func (m *Materializer[T]) fetchEdge(ctx context.Context, gen uint64, cursor source.Cursor, dir source.Direction, pageSize int) {
	ctx, span := lg.Span(ctx)
	defer span.End()

	records, err := m.src.FetchPage(ctx, pageSize+1, cursor, dir)
	m.m_fetch.Add(ctx, 1, lg.NewAttr("dir", dir.String()))
	if err != nil {
		span.RecordError(err)
		m.recordErr(ctx, gen, err)
		return
	}

	m.apply(ctx, gen, func(st *matState[T]) {
		a := st.window.anchor
		got := len(records)
		boundary := got <= pageSize
		if !boundary {
			records = records[:pageSize]
		}

		switch dir {
		case source.Forward:
			st.window.atEnd = boundary
			if f, ok := a.(anchor.Forward); ok && f.Cursor == nil {
				st.window.atStart = true
			}
			st.window.insert(block[T]{first: a.Index(), records: records})
		case source.Backward:
			st.window.atStart = boundary
			reverse(records)
			st.window.insert(block[T]{first: a.Index() - int64(len(records)), records: records})
		}
		st.window.settled++
	})
}

// fetchExact resolves a permalink target, then fans out the before
// and after halves seeded from the target's cursor.
func (m *Materializer[T]) fetchExact(ctx context.Context, gen uint64, a anchor.Permalink) {
	ctx, span := lg.Span(ctx)
	defer span.End()

	record, found, err := m.src.FetchByID(ctx, a.RecordID)
	m.m_fetch.Add(ctx, 1, lg.NewAttr("dir", "exact"))
	if err != nil {
		span.RecordError(err)
		m.recordErr(ctx, gen, err)
		return
	}

	var half int
	var cursor source.Cursor
	if found {
		cursor = m.extract(record)
	}
	applied := m.apply(ctx, gen, func(st *matState[T]) {
		st.window.settled++
		if !found {
			st.window.permalinkNotFound = true
			return
		}
		st.window.insert(block[T]{first: a.At, records: []T{record}})
		st.window.issued += 2
		half = st.pageSize / 2
	})
	if !applied || !found {
		return
	}

	go m.fetchHalf(ctx, gen, cursor, source.Backward, half)
	go m.fetchHalf(ctx, gen, cursor, source.Forward, half)
}

// fetchHalf runs one side of a permalink split. The before side
// carries the look-ahead record; the after side detects the end by
// coming up short.
func (m *Materializer[T]) fetchHalf(ctx context.Context, gen uint64, cursor source.Cursor, dir source.Direction, half int) {
	ctx, span := lg.Span(ctx)
	defer span.End()

	limit := half
	if dir == source.Backward {
		limit = half + 1
	}

	records, err := m.src.FetchPage(ctx, limit, cursor, dir)
	m.m_fetch.Add(ctx, 1, lg.NewAttr("dir", dir.String()))
	if err != nil {
		span.RecordError(err)
		m.recordErr(ctx, gen, err)
		return
	}

	m.apply(ctx, gen, func(st *matState[T]) {
		at := st.window.anchor.Index()
		got := len(records)

		switch dir {
		case source.Backward:
			st.window.atStart = got <= half
			if got > half {
				records = records[:half]
			}
			reverse(records)
			st.window.insert(block[T]{first: at - int64(len(records)), records: records})
		case source.Forward:
			st.window.atEnd = got < half
			st.window.insert(block[T]{first: at + 1, records: records})
		}
		st.window.settled++
	})
}

// apply runs fn under the state lock if gen still names the active
// anchor, then signals an update. Stale completions are counted and
// dropped.
func (m *Materializer[T]) apply(ctx context.Context, gen uint64, fn func(*matState[T])) bool {
	stale := false
	m.state.Modify(ctx, func(_ context.Context, st *matState[T]) error {
		if st.gen != gen {
			stale = true
			return nil
		}
		fn(st)
		return nil
	})
	if stale {
		m.m_stale.Add(ctx, 1)
		return false
	}
	m.notify()
	return true
}

func (m *Materializer[T]) recordErr(ctx context.Context, gen uint64, err error) {
	m.apply(ctx, gen, func(st *matState[T]) {
		st.lastErr = multierr.Append(st.lastErr, err)
	})
}

func reverse[T any](s []T) {
	first, last := 0, len(s)-1
	for first < last {
		s[first], s[last] = s[last], s[first]
		first++
		last--
	}
}
