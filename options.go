package pager

import (
	"time"

	"github.com/sour-is/pager/pkg/session"
)

type config struct {
	rowHeight       int64
	minPageSize     int
	recenterFactor  int64
	skeletonRows    int64
	persistDebounce time.Duration
	store           session.Store
	persist         PersistFunc
	viewport        Viewport
}

type Option interface {
	Apply(*config)
}

type optionFn func(*config)

func (fn optionFn) Apply(c *config) { fn(c) }

// WithRowHeight sets the fixed row height in viewport units.
func WithRowHeight(px int64) Option {
	return optionFn(func(c *config) { c.rowHeight = px })
}

// WithMinPageSize sets the floor for the derived page size. It is
// rounded up to even.
func WithMinPageSize(n int) Option {
	return optionFn(func(c *config) { c.minPageSize = n })
}

// WithRecenterFactor tunes how far past a detected edge the anchor
// re-centers, in multiples of the edge threshold. Higher trades
// re-fetch frequency for smoothness.
func WithRecenterFactor(n int64) Option {
	return optionFn(func(c *config) { c.recenterFactor = n })
}

// WithViewport supplies the scroll-offset sink used for compensation.
func WithViewport(v Viewport) Option {
	return optionFn(func(c *config) { c.viewport = v })
}

// WithSessionStore supplies the snapshot store consulted on mount and
// written on the debounce interval.
func WithSessionStore(s session.Store) Option {
	return optionFn(func(c *config) { c.store = s })
}

// WithPersist supplies an additional snapshot sink.
func WithPersist(fn PersistFunc) Option {
	return optionFn(func(c *config) { c.persist = fn })
}

// WithPersistDebounce tunes the snapshot coalescing interval.
func WithPersistDebounce(d time.Duration) Option {
	return optionFn(func(c *config) { c.persistDebounce = d })
}
