package window_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/matryer/is"

	memsource "github.com/sour-is/pager/driver/mem-source"
	"github.com/sour-is/pager/pkg/anchor"
	"github.com/sour-is/pager/pkg/source"
	"github.com/sour-is/pager/pkg/window"
)

type entry struct {
	ID string
	N  int
}

func entries(n int) []entry {
	lis := make([]entry, n)
	for i := range lis {
		lis[i] = entry{ID: fmt.Sprintf("r-%03d", i), N: i}
	}
	return lis
}

func newLog(n int) *memsource.Log[entry] {
	return memsource.New(func(e entry) string { return e.ID }, entries(n)...)
}

func settle[T any](t *testing.T, m *window.Materializer[T]) window.Window[T] {
	t.Helper()
	ctx := context.Background()

	deadline := time.Now().Add(2 * time.Second)
	for {
		w, err := m.Window(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if w.Complete() {
			return w
		}
		if time.Now().After(deadline) {
			t.Fatal("window never settled")
		}
		select {
		case <-m.Updates():
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestForwardFromTop(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(10)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	is.NoErr(m.Begin(ctx, anchor.Top(), 4, "demo"))
	w := settle(t, m)

	is.Equal(w.FirstIndex(), int64(0))
	is.Equal(w.Len(), 4)
	is.True(w.AtStart())
	is.True(!w.AtEnd()) // look-ahead record came back, more remains

	r, ok := w.At(0)
	is.True(ok)
	is.Equal(r.N, 0)
	r, ok = w.At(3)
	is.True(ok)
	is.Equal(r.N, 3)
	_, ok = w.At(4)
	is.True(!ok)
}

func TestForwardReachesEnd(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(3)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	is.NoErr(m.Begin(ctx, anchor.Top(), 4, "demo"))
	w := settle(t, m)

	is.Equal(w.Len(), 3)
	is.True(w.AtStart())
	is.True(w.AtEnd())
}

func TestForwardFromCursor(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(10)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	a := anchor.Forward{At: 5, Cursor: source.Cursor("r-004")}
	is.NoErr(m.Begin(ctx, a, 4, "demo"))
	w := settle(t, m)

	is.Equal(w.FirstIndex(), int64(5))
	is.True(!w.AtStart()) // cursor anchors never observe the start

	r, ok := w.At(5)
	is.True(ok)
	is.Equal(r.N, 5)
}

func TestBackwardTrimsLookAhead(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(10)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	a := anchor.Backward{At: 6, Cursor: source.Cursor("r-006")}
	is.NoErr(m.Begin(ctx, a, 4, "demo"))
	w := settle(t, m)

	is.Equal(w.FirstIndex(), int64(2))
	is.Equal(w.Len(), 4)
	is.True(!w.AtStart())

	// records sit in ascending order below the anchor
	r, ok := w.At(2)
	is.True(ok)
	is.Equal(r.N, 2)
	r, ok = w.At(5)
	is.True(ok)
	is.Equal(r.N, 5)
	_, ok = w.At(6)
	is.True(!ok)
}

func TestBackwardObservesStart(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(10)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	a := anchor.Backward{At: 3, Cursor: source.Cursor("r-003")}
	is.NoErr(m.Begin(ctx, a, 4, "demo"))
	w := settle(t, m)

	is.Equal(w.FirstIndex(), int64(0))
	is.Equal(w.Len(), 3)
	is.True(w.AtStart())
}

func TestPermalinkCentersTarget(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(20)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	is.NoErr(m.Begin(ctx, anchor.Permalink{At: 1, RecordID: "r-010"}, 4, "demo"))
	w := settle(t, m)

	r, ok := w.At(1)
	is.True(ok)
	is.Equal(r.N, 10)

	// half a page each side, contiguous through the target
	is.Equal(w.FirstIndex(), int64(-1))
	is.Equal(w.Len(), 5)
	r, ok = w.At(-1)
	is.True(ok)
	is.Equal(r.N, 8)
	r, ok = w.At(3)
	is.True(ok)
	is.Equal(r.N, 12)

	is.True(!w.AtStart())
	is.True(!w.AtEnd())
	is.True(!w.PermalinkNotFound())
}

func TestPermalinkNearEnd(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(12)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	is.NoErr(m.Begin(ctx, anchor.Permalink{At: 1, RecordID: "r-011"}, 4, "demo"))
	w := settle(t, m)

	is.Equal(w.Len(), 3) // two before, the target, nothing after
	is.True(w.AtEnd())
	is.True(!w.AtStart())
}

func TestPermalinkNotFound(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(5)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	is.NoErr(m.Begin(ctx, anchor.Permalink{At: 1, RecordID: "missing"}, 4, "demo"))
	w := settle(t, m)

	is.True(w.PermalinkNotFound())
	is.Equal(w.Len(), 0)
	is.True(w.Complete()) // terminal, no half queries issued
}

func TestEmptyDataset(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(0)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	is.NoErr(m.Begin(ctx, anchor.Top(), 4, "demo"))
	w := settle(t, m)

	is.True(w.Empty())
	is.True(w.AtStart())
	is.True(w.AtEnd())
}

func TestRebaseShiftsBlocksAndAnchor(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(20)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	is.NoErr(m.Begin(ctx, anchor.Permalink{At: 1, RecordID: "r-010"}, 4, "demo"))
	w := settle(t, m)
	is.Equal(w.FirstIndex(), int64(-1))

	to := anchor.Permalink{At: 3, RecordID: "r-010"}
	is.NoErr(m.Rebase(ctx, 2, to))

	w, err = m.Window(ctx)
	is.NoErr(err)
	is.Equal(w.FirstIndex(), int64(1))
	is.True(anchor.Equal(w.Anchor(), to))

	r, ok := w.At(3) // same record, new coordinates
	is.True(ok)
	is.Equal(r.N, 10)
}

// gatedSource holds every FetchPage until released, so tests control
// the order results land in.
type gatedSource struct {
	inner *memsource.Log[entry]
	gate  chan struct{}
}

func (g *gatedSource) FetchPage(ctx context.Context, limit int, cursor source.Cursor, dir source.Direction) ([]entry, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.FetchPage(ctx, limit, cursor, dir)
}

func (g *gatedSource) FetchByID(ctx context.Context, id string) (entry, bool, error) {
	return g.inner.FetchByID(ctx, id)
}

func TestSupersededResultsAreDropped(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := &gatedSource{inner: newLog(10), gate: make(chan struct{})}
	m, err := window.New[entry](ctx, src, src.inner.ExtractCursor)
	is.NoErr(err)

	// First anchor's query blocks on the gate; the second Begin
	// supersedes it before any result lands.
	is.NoErr(m.Begin(ctx, anchor.Top(), 4, "demo"))
	a := anchor.Forward{At: 5, Cursor: source.Cursor("r-004")}
	is.NoErr(m.Begin(ctx, a, 4, "demo"))

	close(src.gate)
	w := settle(t, m)

	is.True(anchor.Equal(w.Anchor(), a))
	is.Equal(w.FirstIndex(), int64(5))
	_, ok := w.At(0) // the stale top page never entered the window
	is.True(!ok)
}

var errUnavailable = errors.New("source unavailable")

type flakySource struct {
	inner *memsource.Log[entry]
	fail  bool
}

func (f *flakySource) FetchPage(ctx context.Context, limit int, cursor source.Cursor, dir source.Direction) ([]entry, error) {
	if f.fail {
		return nil, errUnavailable
	}
	return f.inner.FetchPage(ctx, limit, cursor, dir)
}

func (f *flakySource) FetchByID(ctx context.Context, id string) (entry, bool, error) {
	if f.fail {
		return entry{}, false, errUnavailable
	}
	return f.inner.FetchByID(ctx, id)
}

func TestFailedQueryStaysPendingUntilReload(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := &flakySource{inner: newLog(10), fail: true}
	m, err := window.New[entry](ctx, src, src.inner.ExtractCursor)
	is.NoErr(err)

	is.NoErr(m.Begin(ctx, anchor.Top(), 4, "demo"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := m.Err(ctx); err != nil {
			is.True(errors.Is(err, errUnavailable))
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("error never surfaced")
		}
		time.Sleep(time.Millisecond)
	}

	w, err := m.Window(ctx)
	is.NoErr(err)
	is.True(!w.Complete()) // the failed query never settles

	src.fail = false
	is.NoErr(m.Reload(ctx))
	w = settle(t, m)
	is.Equal(w.Len(), 4)

	err = m.Err(ctx)
	is.NoErr(err) // Reload cleared the recorded failure
}

func TestBeginContractViolationsPanic(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := newLog(5)
	m, err := window.New[entry](ctx, src, src.ExtractCursor)
	is.NoErr(err)

	panics := func(fn func()) (paniced bool) {
		defer func() { paniced = recover() != nil }()
		fn()
		return
	}

	is.True(panics(func() { m.Begin(ctx, anchor.Top(), 5, "demo") }))
	is.True(panics(func() { m.Begin(ctx, anchor.Top(), 0, "demo") }))
	is.True(panics(func() { m.Begin(ctx, anchor.Backward{At: 3}, 4, "demo") }))
}
