// package memsource provides an in-memory cursor-ordered source,
// used in tests and demos.
package memsource

import (
	"context"
	"errors"
	"fmt"

	"github.com/sour-is/pager/internal/lg"
	"github.com/sour-is/pager/pkg/locker"
	"github.com/sour-is/pager/pkg/math"
	"github.com/sour-is/pager/pkg/source"
)

type state[T any] struct {
	records []T
	byKey   map[string]int
}

// Log is a source.Source backed by an ordered slice. The cursor for a
// record is its key; iteration resumes from the key's position.
type Log[T any] struct {
	key   source.RowKey[T]
	state *locker.Locked[state[T]]
}

func New[T any](key source.RowKey[T], records ...T) *Log[T] {
	s := &state[T]{byKey: make(map[string]int, len(records))}
	l := &Log[T]{key: key, state: locker.New(s)}
	for _, r := range records {
		s.byKey[key(r)] = len(s.records)
		s.records = append(s.records, r)
	}
	return l
}

var ErrBadCursor = errors.New("bad cursor")

var _ source.Source[any] = (*Log[any])(nil)

// ExtractCursor projects a record to its resumable cursor.
func (l *Log[T]) ExtractCursor(record T) source.Cursor {
	return source.Cursor(l.key(record))
}

// Append adds records to the end of the sequence.
func (l *Log[T]) Append(ctx context.Context, records ...T) error {
	ctx, span := lg.Span(ctx)
	defer span.End()

	return l.state.Modify(ctx, func(_ context.Context, st *state[T]) error {
		for _, r := range records {
			st.byKey[l.key(r)] = len(st.records)
			st.records = append(st.records, r)
		}
		return nil
	})
}

func (l *Log[T]) FetchPage(ctx context.Context, limit int, cursor source.Cursor, dir source.Direction) ([]T, error) {
	ctx, span := lg.Span(ctx)
	defer span.End()

	span.SetAttributes(
		lg.NewAttr("limit", limit),
		lg.NewAttr("dir", dir.String()),
	)

	var page []T
	err := l.state.Modify(ctx, func(_ context.Context, st *state[T]) error {
		at := -1
		if cursor != nil {
			i, ok := st.byKey[string(cursor)]
			if !ok {
				return fmt.Errorf("%w: %q", ErrBadCursor, string(cursor))
			}
			at = i
		} else if dir == source.Backward {
			return fmt.Errorf("%w: backward without cursor", ErrBadCursor)
		}

		switch dir {
		case source.Forward:
			lo := at + 1
			hi := math.Min(lo+limit, len(st.records))
			if lo < hi {
				page = append(page, st.records[lo:hi]...)
			}
		case source.Backward:
			hi := at
			lo := math.Max(hi-limit, 0)
			// nearest record first
			for i := hi - 1; i >= lo; i-- {
				page = append(page, st.records[i])
			}
		}
		return nil
	})
	return page, err
}

func (l *Log[T]) FetchByID(ctx context.Context, id string) (T, bool, error) {
	ctx, span := lg.Span(ctx)
	defer span.End()

	var record T
	var found bool
	err := l.state.Modify(ctx, func(_ context.Context, st *state[T]) error {
		if i, ok := st.byKey[id]; ok {
			record = st.records[i]
			found = true
		}
		return nil
	})
	return record, found, err
}
