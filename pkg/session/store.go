package session

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sour-is/pager/internal/lg"
)

var ErrBadSnapshot = errors.New("bad snapshot")

// Store holds one snapshot per list-context.
type Store interface {
	Save(ctx context.Context, listCtx string, snap Snapshot) error
	Load(ctx context.Context, listCtx string) (Snapshot, bool, error)
}

// memStore keeps snapshots in process memory with an expiry, for
// cross-navigation restore within one run of the host.
type memStore struct {
	cache *gocache.Cache
}

const DefaultTTL = 30 * time.Minute

// NewStore returns an expiring in-memory Store. A zero ttl uses
// DefaultTTL.
func NewStore(ttl time.Duration) Store {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &memStore{cache: gocache.New(ttl, ttl)}
}

func (s *memStore) Save(ctx context.Context, listCtx string, snap Snapshot) error {
	_, span := lg.Span(ctx)
	defer span.End()

	span.SetAttributes(lg.NewAttr("listCtx", listCtx))

	s.cache.SetDefault(listCtx, snap)
	return nil
}

func (s *memStore) Load(ctx context.Context, listCtx string) (Snapshot, bool, error) {
	_, span := lg.Span(ctx)
	defer span.End()

	span.SetAttributes(lg.NewAttr("listCtx", listCtx))

	if v, ok := s.cache.Get(listCtx); ok {
		if snap, ok := v.(Snapshot); ok {
			return snap, true, nil
		}
	}
	return Snapshot{}, false, nil
}
