package cache

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
	"github.com/sonroyaalmerol/mutt-ldap/internal/directory"
)

// File layout: 4 magic bytes, 1 version byte, zstd-compressed JSON.
// Directory values and query text are stored as []byte, which JSON carries
// as base64, so values that are not valid UTF-8 come back unchanged.
var magic = []byte("MLDC")

const formatVersion byte = 2

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errBadMagic = errors.New("not a mutt-ldap cache file")

type fileRecord struct {
	Fingerprint string      `json:"fingerprint"`
	Query       []byte      `json:"query"`
	CachedAt    time.Time   `json:"cached_at"`
	Entries     []fileEntry `json:"entries"`
}

// fileEntry is directory.Entry in its on-disk form. Attribute names are
// ASCII descriptors and stay plain strings.
type fileEntry struct {
	DN         []byte              `json:"dn"`
	Attributes map[string][][]byte `json:"attributes"`
}

func toFileEntries(entries []directory.Entry) []fileEntry {
	out := make([]fileEntry, 0, len(entries))
	for _, e := range entries {
		fe := fileEntry{
			DN:         []byte(e.DN),
			Attributes: make(map[string][][]byte, len(e.Attributes)),
		}
		for name, vals := range e.Attributes {
			bv := make([][]byte, len(vals))
			for i, v := range vals {
				bv[i] = []byte(v)
			}
			fe.Attributes[name] = bv
		}
		out = append(out, fe)
	}
	return out
}

func fromFileEntries(entries []fileEntry) []directory.Entry {
	out := make([]directory.Entry, 0, len(entries))
	for _, fe := range entries {
		e := directory.Entry{
			DN:         string(fe.DN),
			Attributes: make(map[string][]string, len(fe.Attributes)),
		}
		for name, bv := range fe.Attributes {
			vals := make([]string, len(bv))
			for i, v := range bv {
				vals[i] = string(v)
			}
			e.Attributes[name] = vals
		}
		out = append(out, e)
	}
	return out
}

type fileBody struct {
	Records []fileRecord `json:"records"`
}

func encode(body fileBody) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal cache: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	header := make([]byte, 0, len(magic)+1+len(raw)/2)
	header = append(header, magic...)
	header = append(header, formatVersion)
	out := enc.EncodeAll(raw, header)
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close zstd encoder: %w", err)
	}
	return out, nil
}

func decode(data []byte) (fileBody, error) {
	var body fileBody
	if len(data) < len(magic)+1 || !bytes.Equal(data[:len(magic)], magic) {
		return body, errBadMagic
	}
	if v := data[len(magic)]; v != formatVersion {
		return body, fmt.Errorf("unsupported cache format version %d", v)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(256<<20))
	if err != nil {
		return body, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data[len(magic)+1:], nil)
	if err != nil {
		return body, fmt.Errorf("decompress cache: %w", err)
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return body, fmt.Errorf("parse cache: %w", err)
	}
	return body, nil
}
