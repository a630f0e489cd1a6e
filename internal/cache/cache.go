package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sonroyaalmerol/mutt-ldap/internal/directory"
)

// Key identifies one search: the configuration it ran under and the raw
// query text.
type Key struct {
	Fingerprint string
	Query       string
}

type entry struct {
	val      []directory.Entry
	cachedAt time.Time
}

// Store is the whole cache file held in memory. It is loaded once and saved
// once per run; there is no locking, so concurrent runs sharing a path
// overwrite each other on Save.
type Store struct {
	path      string
	longevity time.Duration
	logger    zerolog.Logger
	now       func() time.Time
	data      map[Key]entry
	dirty     bool
}

// Load reads the cache at path. A missing, unreadable or corrupt file yields
// an empty store; the failure is logged and never returned. A longevity of
// zero keeps entries forever.
func Load(path string, longevity time.Duration, logger zerolog.Logger) *Store {
	s := &Store{
		path:      path,
		longevity: longevity,
		logger:    logger,
		now:       time.Now,
		data:      make(map[Key]entry),
	}
	if err := s.load(); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("ignoring unreadable cache, starting empty")
		s.data = make(map[Key]entry)
	}
	return s
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	body, err := decode(data)
	if err != nil {
		return err
	}
	for _, r := range body.Records {
		k := Key{Fingerprint: r.Fingerprint, Query: string(r.Query)}
		s.data[k] = entry{val: fromFileEntries(r.Entries), cachedAt: r.CachedAt}
	}
	s.logger.Debug().Int("entry_count", len(s.data)).Str("path", s.path).Msg("loaded cache")
	return nil
}

func (s *Store) expired(e entry) bool {
	return s.longevity > 0 && s.now().Sub(e.cachedAt) > s.longevity
}

func (s *Store) Get(k Key) ([]directory.Entry, bool) {
	e, ok := s.data[k]
	if !ok || s.expired(e) {
		return nil, false
	}
	return e.val, true
}

// Put records the complete result of a search. The slice is copied.
func (s *Store) Put(k Key, entries []directory.Entry) {
	val := make([]directory.Entry, len(entries))
	copy(val, entries)
	s.data[k] = entry{val: val, cachedAt: s.now()}
	s.dirty = true
}

func (s *Store) Len() int {
	return len(s.data)
}

// Save writes the store back to disk if anything changed, dropping expired
// entries. The file is replaced through a rename, so an interrupted save
// leaves either the old cache or none.
func (s *Store) Save() error {
	records := make([]fileRecord, 0, len(s.data))
	for k, e := range s.data {
		if s.expired(e) {
			s.dirty = true
			continue
		}
		records = append(records, fileRecord{
			Fingerprint: k.Fingerprint,
			Query:       []byte(k.Query),
			CachedAt:    e.cachedAt,
			Entries:     toFileEntries(e.val),
		})
	}
	if !s.dirty {
		return nil
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Fingerprint != records[j].Fingerprint {
			return records[i].Fingerprint < records[j].Fingerprint
		}
		return bytes.Compare(records[i].Query, records[j].Query) < 0
	})

	data, err := encode(fileBody{Records: records})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	s.dirty = false
	s.logger.Debug().Int("entry_count", len(records)).Str("path", s.path).Msg("saved cache")
	return nil
}
