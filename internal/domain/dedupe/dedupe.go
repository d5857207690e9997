// Package dedupe suppresses redelivered bus messages.
//
// QoS 1 delivery is at-least-once, so the same sensor payload may reach the
// service more than once. Messages are keyed by topic and payload hash and
// the most recent keys are remembered in a bounded LRU.
package dedupe

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxSize is the number of keys remembered when no size is given.
const DefaultMaxSize = 1024

// Deduper records message keys to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded, recording it
	// if not.
	SeenAndRecord(ctx context.Context, key string) bool
	Size() int64
}

type lruDeduper struct {
	maxSize int
	seen    *lru.Cache[string, struct{}]
}

// New creates a bounded Deduper. The oldest key is evicted once the cache is
// full; lookups do not refresh a key's position.
func New(opts ...Option) Deduper {
	d := &lruDeduper{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	// lru.New only fails for a non-positive size, which the option guards.
	cache, _ := lru.New[string, struct{}](d.maxSize)
	d.seen = cache
	return d
}

func (d *lruDeduper) SeenAndRecord(_ context.Context, key string) bool {
	found, _ := d.seen.ContainsOrAdd(key, struct{}{})
	return found
}

func (d *lruDeduper) Size() int64 {
	return int64(d.seen.Len())
}

// Key derives the dedupe key of a message from its topic and raw payload.
func Key(topic string, payload []byte) string {
	return topic + "#" + strconv.FormatUint(xxhash.Sum64(payload), 16)
}
