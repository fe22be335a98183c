package memsource_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/matryer/is"

	memsource "github.com/sour-is/pager/driver/mem-source"
	"github.com/sour-is/pager/pkg/source"
)

type entry struct {
	ID string
	N  int
}

func key(e entry) string { return e.ID }

func seed(n int) []entry {
	lis := make([]entry, n)
	for i := range lis {
		lis[i] = entry{ID: fmt.Sprintf("r-%03d", i), N: i}
	}
	return lis
}

func TestForwardPaging(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := memsource.New(key, seed(10)...)

	// nil cursor starts at the beginning
	page, err := src.FetchPage(ctx, 3, nil, source.Forward)
	is.NoErr(err)
	is.Equal(len(page), 3)
	is.Equal(page[0].N, 0)
	is.Equal(page[2].N, 2)

	// a cursor resumes after its record
	page, err = src.FetchPage(ctx, 3, src.ExtractCursor(page[2]), source.Forward)
	is.NoErr(err)
	is.Equal(page[0].N, 3)
	is.Equal(page[2].N, 5)

	// short page at the end
	page, err = src.FetchPage(ctx, 5, source.Cursor("r-007"), source.Forward)
	is.NoErr(err)
	is.Equal(len(page), 2)
	is.Equal(page[0].N, 8)
	is.Equal(page[1].N, 9)
}

func TestBackwardPagingIsNearestFirst(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := memsource.New(key, seed(10)...)

	page, err := src.FetchPage(ctx, 3, source.Cursor("r-005"), source.Backward)
	is.NoErr(err)
	is.Equal(len(page), 3)
	is.Equal(page[0].N, 4)
	is.Equal(page[1].N, 3)
	is.Equal(page[2].N, 2)

	// short page at the start
	page, err = src.FetchPage(ctx, 5, source.Cursor("r-002"), source.Backward)
	is.NoErr(err)
	is.Equal(len(page), 2)
	is.Equal(page[0].N, 1)
	is.Equal(page[1].N, 0)
}

func TestBadCursor(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := memsource.New(key, seed(3)...)

	_, err := src.FetchPage(ctx, 3, source.Cursor("nope"), source.Forward)
	is.True(errors.Is(err, memsource.ErrBadCursor))

	_, err = src.FetchPage(ctx, 3, nil, source.Backward)
	is.True(errors.Is(err, memsource.ErrBadCursor))
}

func TestFetchByID(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := memsource.New(key, seed(5)...)

	r, found, err := src.FetchByID(ctx, "r-003")
	is.NoErr(err)
	is.True(found)
	is.Equal(r.N, 3)

	_, found, err = src.FetchByID(ctx, "missing")
	is.NoErr(err)
	is.True(!found)
}

func TestAppendExtendsSequence(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := memsource.New(key, seed(2)...)
	is.NoErr(src.Append(ctx, entry{ID: "r-002", N: 2}))

	page, err := src.FetchPage(ctx, 5, source.Cursor("r-001"), source.Forward)
	is.NoErr(err)
	is.Equal(len(page), 1)
	is.Equal(page[0].N, 2)
}
