// package walsource provides a source backed by an append-only
// write-ahead log on disk.
package walsource

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/wal"
	"go.opentelemetry.io/otel/metric/instrument/syncint64"
	"go.uber.org/multierr"

	"github.com/sour-is/pager/internal/lg"
	"github.com/sour-is/pager/pkg/locker"
	"github.com/sour-is/pager/pkg/math"
	"github.com/sour-is/pager/pkg/source"
)

var ErrBadCursor = errors.New("bad cursor")

// Codec marshals records in and out of log entries.
type Codec[T any] struct {
	Key    source.RowKey[T]
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

type state struct {
	log   *wal.Log
	byKey map[string]uint64
}

// Log is a source.Source over a wal segment directory. Sequence order
// is append order; the cursor for a record is its key.
type Log[T any] struct {
	codec Codec[T]
	state *locker.Locked[state]

	m_open  syncint64.Counter
	m_read  syncint64.Counter
	m_write syncint64.Counter
}

var _ source.Source[any] = (*Log[any])(nil)

// Open opens or creates the log at path and indexes its keys.
func Open[T any](ctx context.Context, path string, codec Codec[T]) (*Log[T], error) {
	ctx, span := lg.Span(ctx)
	defer span.End()

	l := &Log[T]{codec: codec}

	var err, errs error
	meter := lg.Meter(ctx)

	l.m_open, err = meter.SyncInt64().Counter("walsource_open")
	errs = multierr.Append(errs, err)

	l.m_read, err = meter.SyncInt64().Counter("walsource_read")
	errs = multierr.Append(errs, err)

	l.m_write, err = meter.SyncInt64().Counter("walsource_write")
	errs = multierr.Append(errs, err)

	if errs != nil {
		return nil, errs
	}

	w, err := wal.Open(path, wal.DefaultOptions)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	l.m_open.Add(ctx, 1)

	st := &state{log: w, byKey: make(map[string]uint64)}
	first, err := w.FirstIndex()
	if err != nil {
		return nil, multierr.Append(err, w.Close())
	}
	last, err := w.LastIndex()
	if err != nil {
		return nil, multierr.Append(err, w.Close())
	}
	for i := first; first > 0 && i <= last; i++ {
		b, err := w.Read(i)
		if err != nil {
			return nil, multierr.Append(err, w.Close())
		}
		record, err := codec.Decode(b)
		if err != nil {
			return nil, multierr.Append(err, w.Close())
		}
		st.byKey[codec.Key(record)] = i
	}

	l.state = locker.New(st)
	return l, nil
}

func (l *Log[T]) Close(ctx context.Context) error {
	return l.state.Modify(ctx, func(_ context.Context, st *state) error {
		return st.log.Close()
	})
}

// ExtractCursor projects a record to its resumable cursor.
func (l *Log[T]) ExtractCursor(record T) source.Cursor {
	return source.Cursor(l.codec.Key(record))
}

// Append writes records to the end of the sequence.
func (l *Log[T]) Append(ctx context.Context, records ...T) error {
	ctx, span := lg.Span(ctx)
	defer span.End()

	return l.state.Modify(ctx, func(ctx context.Context, st *state) error {
		last, err := st.log.LastIndex()
		if err != nil {
			return err
		}
		for _, record := range records {
			b, err := l.codec.Encode(record)
			if err != nil {
				return err
			}
			last++
			if err := st.log.Write(last, b); err != nil {
				span.RecordError(err)
				return err
			}
			l.m_write.Add(ctx, 1)
			st.byKey[l.codec.Key(record)] = last
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
	err := l.state.Modify(ctx, func(ctx context.Context, st *state) error {
		first, err := st.log.FirstIndex()
		if err != nil {
			return err
		}
		last, err := st.log.LastIndex()
		if err != nil {
			return err
		}
		if last == 0 {
			return nil
		}

		var at uint64
		if cursor != nil {
			i, ok := st.byKey[string(cursor)]
			if !ok {
				return fmt.Errorf("%w: %q", ErrBadCursor, string(cursor))
			}
			at = i
		} else if dir == source.Backward {
			return fmt.Errorf("%w: backward without cursor", ErrBadCursor)
		} else {
			at = first - 1
		}

		read := func(i uint64) error {
			b, err := st.log.Read(i)
			if err != nil {
				span.RecordError(err)
				return err
			}
			l.m_read.Add(ctx, 1)
			record, err := l.codec.Decode(b)
			if err != nil {
				return err
			}
			page = append(page, record)
			return nil
		}

		switch dir {
		case source.Forward:
			hi := math.Min(at+uint64(limit), last)
			for i := at + 1; i <= hi; i++ {
				if err := read(i); err != nil {
					return err
				}
			}
		case source.Backward:
			lo := first
			if at > uint64(limit) {
				lo = math.Max(lo, at-uint64(limit))
			}
			// nearest record first
			for i := at; i > lo && i-1 >= first; i-- {
				if err := read(i - 1); err != nil {
					return err
				}
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
	err := l.state.Modify(ctx, func(ctx context.Context, st *state) error {
		i, ok := st.byKey[id]
		if !ok {
			return nil
		}
		b, err := st.log.Read(i)
		if err != nil {
			span.RecordError(err)
			return err
		}
		l.m_read.Add(ctx, 1)
		record, err = l.codec.Decode(b)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return record, found, err
}
