package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/sour-is/pager/pkg/anchor"
	"github.com/sour-is/pager/pkg/session"
	"github.com/sour-is/pager/pkg/source"
)

func TestAnchorWireForm(t *testing.T) {
	is := is.New(t)

	for _, a := range []anchor.Anchor{
		anchor.Top(),
		anchor.Forward{At: 40, Cursor: source.Cursor("c-40")},
		anchor.Backward{At: 9, Cursor: source.Cursor("c-9")},
		anchor.Permalink{At: 51, RecordID: "r-100"},
	} {
		got, err := session.DecodeAnchor(session.EncodeAnchor(a))
		is.NoErr(err)
		is.True(anchor.Equal(a, got))
	}

	// nil encodes as the start of the sequence
	got, err := session.DecodeAnchor(session.EncodeAnchor(nil))
	is.NoErr(err)
	is.True(anchor.Equal(got, anchor.Top()))
}

func TestDecodeAnchorRejectsMalformed(t *testing.T) {
	is := is.New(t)

	_, err := session.DecodeAnchor(session.Anchor{Kind: "backward", Index: 3})
	is.True(errors.Is(err, session.ErrBadSnapshot))

	_, err = session.DecodeAnchor(session.Anchor{Kind: "permalink", Index: 3})
	is.True(errors.Is(err, session.ErrBadSnapshot))

	_, err = session.DecodeAnchor(session.Anchor{Kind: "sideways"})
	is.True(errors.Is(err, session.ErrBadSnapshot))
}

func TestSnapshotRoundTrip(t *testing.T) {
	is := is.New(t)

	snap := session.Snapshot{
		Anchor:          session.EncodeAnchor(anchor.Permalink{At: 51, RecordID: "r-100"}),
		ScrollOffset:    1020,
		EstimatedTotal:  256,
		HasReachedStart: true,
	}

	b, err := snap.MarshalBinary()
	is.NoErr(err)

	var got session.Snapshot
	is.NoErr(got.UnmarshalBinary(b))
	is.Equal(got, snap)
}

func TestStoreKeysByListContext(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	store := session.NewStore(time.Minute)

	snap := session.Snapshot{ScrollOffset: 77, EstimatedTotal: 100}
	is.NoErr(store.Save(ctx, "channel:a", snap))

	got, ok, err := store.Load(ctx, "channel:a")
	is.NoErr(err)
	is.True(ok)
	is.Equal(got, snap)

	_, ok, err = store.Load(ctx, "channel:b")
	is.NoErr(err)
	is.True(!ok)

	// latest save wins
	snap.ScrollOffset = 99
	is.NoErr(store.Save(ctx, "channel:a", snap))
	got, ok, err = store.Load(ctx, "channel:a")
	is.NoErr(err)
	is.True(ok)
	is.Equal(got.ScrollOffset, int64(99))
}
