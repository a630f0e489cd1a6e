package query

import (
	"context"
	"iter"

	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/mutt-ldap/internal/cache"
	"github.com/sonroyaalmerol/mutt-ldap/internal/directory"
)

// Cached replays stored results for a known (fingerprint, query) pair and
// otherwise forwards to next while recording what it yields.
//
// A result is stored only when next ran to its end: an error, a cancelled
// context or a consumer that stops ranging early all leave the cache
// untouched for that key.
type Cached struct {
	next        Searcher
	store       *cache.Store
	fingerprint string
	logger      zerolog.Logger
}

func NewCached(next Searcher, store *cache.Store, fingerprint string, logger zerolog.Logger) *Cached {
	return &Cached{next: next, store: store, fingerprint: fingerprint, logger: logger}
}

func (c *Cached) Search(ctx context.Context, q string) iter.Seq2[directory.Entry, error] {
	return func(yield func(directory.Entry, error) bool) {
		key := cache.Key{Fingerprint: c.fingerprint, Query: q}

		if entries, ok := c.store.Get(key); ok {
			c.logger.Debug().Str("query", q).Int("entries", len(entries)).Msg("cache hit")
			for _, e := range entries {
				if !yield(e, nil) {
					return
				}
			}
			return
		}

		c.logger.Debug().Str("query", q).Msg("cache miss")
		var buf []directory.Entry
		for e, err := range c.next.Search(ctx, q) {
			if err != nil {
				yield(directory.Entry{}, err)
				return
			}
			buf = append(buf, e)
			if !yield(e, nil) {
				c.logger.Debug().Str("query", q).Msg("consumer stopped early, not caching")
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		c.store.Put(key, buf)
	}
}
