// Package dedupe tracks purge event ids so a redelivered notification is
// applied once.
package dedupe

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
)

const defaultMaxSize = 100000

// Deduper records seen event IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a failed event can be delivered again.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps the most recent maxSize ids. Lookups never refresh an
// id, so the oldest recorded id is evicted first.
type inMemoryDeduper struct {
	maxSize int
	seen    *lru.Cache
}

// NewInMemoryDeduper creates a bounded deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	cache, err := lru.New(d.maxSize)
	if err != nil {
		// only fails for a non-positive size, which WithMaxSize rejects
		panic(err)
	}
	d.seen = cache
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	seen, _ := d.seen.ContainsOrAdd(id, struct{}{})
	return seen
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.seen.Remove(id)
}

func (d *inMemoryDeduper) Size() int64 {
	return int64(d.seen.Len())
}
