// package source defines the contracts a host supplies for reading
// pages out of a cursor-ordered sequence of records.
package source

import "context"

// Direction of iteration relative to a cursor.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Cursor is an opaque projection of a record sufficient to resume
// ordered iteration from just past that record. Cursors are produced
// by the host and never interpreted by the engine.
type Cursor []byte

// Source reads ordered records for one list-context. The filter and
// sort parameters that make up the list-context are baked into the
// Source by the host; a Source must be stable-ordered for its
// lifetime.
type Source[T any] interface {
	// FetchPage returns up to limit records adjacent to cursor in the
	// given direction, nearest record first. A nil cursor with
	// Forward starts at the beginning of the sequence. A nil cursor
	// with Backward is invalid.
	FetchPage(ctx context.Context, limit int, cursor Cursor, dir Direction) ([]T, error)

	// FetchByID looks up a single record by identity. The second
	// return reports whether the record exists.
	FetchByID(ctx context.Context, id string) (T, bool, error)
}

// ExtractCursor projects a loaded record to a resumable cursor.
type ExtractCursor[T any] func(T) Cursor

// RowKey returns a stable identity for a record.
type RowKey[T any] func(T) string
