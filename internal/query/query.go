package query

import (
	"context"
	"iter"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/mutt-ldap/internal/cache"
	"github.com/sonroyaalmerol/mutt-ldap/internal/config"
	"github.com/sonroyaalmerol/mutt-ldap/internal/directory"
	"github.com/sonroyaalmerol/mutt-ldap/internal/format"
)

// Searcher answers one address-book query as a finite, lazily produced
// sequence of entries. An error, if any, is the last element.
type Searcher interface {
	Search(ctx context.Context, q string) iter.Seq2[directory.Entry, error]
}

// DirectorySearcher is implemented by *directory.Searcher.
type DirectorySearcher interface {
	Search(ctx context.Context, baseDN, filter string, scope int) iter.Seq2[directory.Entry, error]
}

// New picks the cached or the plain searcher according to cfg. store may be
// nil when caching is disabled.
func New(cfg *config.Config, dir DirectorySearcher, store *cache.Store, logger zerolog.Logger) Searcher {
	live := NewLive(dir, cfg)
	if !cfg.Cache.Enable || store == nil {
		return live
	}
	return NewCached(live, store, cfg.Fingerprint(), logger)
}

// Live runs every query against the directory.
type Live struct {
	dir    DirectorySearcher
	baseDN string
	fields []string
	filter string
}

func NewLive(dir DirectorySearcher, cfg *config.Config) *Live {
	return &Live{
		dir:    dir,
		baseDN: cfg.Connection.BaseDN,
		fields: cfg.Fields(),
		filter: cfg.Query.Filter,
	}
}

func (l *Live) Search(ctx context.Context, q string) iter.Seq2[directory.Entry, error] {
	return l.dir.Search(ctx, l.baseDN, directory.BuildFilter(q, l.fields, l.filter), ldap.ScopeWholeSubtree)
}

// Attributes lists what a search must fetch to render rows.
func Attributes(cfg *config.Config) []string {
	attrs := []string{"mail", "displayName", "cn"}
	if c := cfg.Results.OptionalColumn; c != "" {
		attrs = append(attrs, c)
	}
	return attrs
}

// Addresses runs q and renders every entry into rows as it arrives.
func Addresses(ctx context.Context, s Searcher, f format.Formatter, q string) ([]string, error) {
	var rows []string
	for e, err := range s.Search(ctx, q) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, f.Rows(e)...)
	}
	return rows, nil
}
