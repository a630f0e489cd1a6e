package directory

import (
	"context"
	"iter"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
)

const searchBufferSize = 64

// SearchOptions shapes every request a Searcher sends.
type SearchOptions struct {
	Attributes []string
	SizeLimit  int
	TimeLimit  int // seconds
}

// Searcher streams search results from a Session.
type Searcher struct {
	session *Session
	opts    SearchOptions
	logger  zerolog.Logger
}

func NewSearcher(s *Session, opts SearchOptions, logger zerolog.Logger) *Searcher {
	return &Searcher{session: s, opts: opts, logger: logger}
}

// Search issues one request and yields entries as the server sends them.
// Each call starts a new request.
//
// The sequence ends without an error when the server reports completion or
// an administrative, size or time limit; entries already yielded are the
// whole result in that case. Any other failure, including ctx being
// cancelled, is yielded once as the final element.
func (s *Searcher) Search(ctx context.Context, baseDN, filter string, scope int) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if !s.session.connected() {
			yield(Entry{}, ErrNotConnected)
			return
		}

		req := ldap.NewSearchRequest(
			baseDN,
			scope, ldap.NeverDerefAliases, s.opts.SizeLimit, s.opts.TimeLimit, false,
			filter,
			s.opts.Attributes,
			nil,
		)
		s.logger.Debug().Str("base_dn", baseDN).Str("filter", filter).Msg("search")

		searchCtx, cancel := context.WithCancel(ctx)
		res := s.session.search.SearchAsync(searchCtx, req, searchBufferSize)
		defer func() {
			// abandons the request if the consumer stopped early, then
			// lets the reader goroutine drain out
			cancel()
			for res.Next() {
			}
		}()

		n := 0
		for res.Next() {
			e := res.Entry()
			if e == nil {
				// referral
				continue
			}
			n++
			if !yield(NewEntry(e), nil) {
				return
			}
		}

		if err := ctx.Err(); err != nil {
			yield(Entry{}, err)
			return
		}
		if err := res.Err(); err != nil {
			if isPartialResult(err) {
				s.logger.Debug().Err(err).Int("entries", n).Msg("partial results")
				return
			}
			s.logger.Error().Err(err).
				Str("base_dn", baseDN).
				Str("filter", filter).
				Msg("LDAP search failed")
			yield(Entry{}, &SearchError{BaseDN: baseDN, Filter: filter, Err: err})
			return
		}
		s.logger.Debug().Int("entries", n).Msg("search complete")
	}
}
