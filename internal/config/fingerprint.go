package config

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// fingerprintVersion is bumped whenever the set of fingerprinted fields
// changes, so older cache records stop matching.
const fingerprintVersion = 1

var canonicalJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// fingerprintInput lists every setting that changes which entries a search
// returns or how they are rendered. Password, cache and logging settings are
// excluded.
type fingerprintInput struct {
	Version        int      `json:"v"`
	Server         string   `json:"server"`
	Port           int      `json:"port"`
	SSL            bool     `json:"ssl"`
	StartTLS       bool     `json:"starttls"`
	BaseDN         string   `json:"basedn"`
	User           string   `json:"user"`
	GSSAPI         bool     `json:"gssapi"`
	Filter         string   `json:"filter"`
	SearchFields   []string `json:"search_fields"`
	OptionalColumn string   `json:"optional_column"`
	SizeLimit      int      `json:"size_limit"`
	TimeLimit      int      `json:"time_limit"`
}

// Fingerprint returns a stable hex digest of the query-relevant settings.
func (c *Config) Fingerprint() string {
	in := fingerprintInput{
		Version:        fingerprintVersion,
		Server:         strings.ToLower(strings.TrimSpace(c.Connection.Server)),
		Port:           c.Connection.Port,
		SSL:            c.Connection.SSL,
		StartTLS:       c.Connection.StartTLS,
		BaseDN:         c.Connection.BaseDN,
		User:           c.Auth.User,
		GSSAPI:         c.Auth.GSSAPI,
		Filter:         strings.TrimSpace(c.Query.Filter),
		SearchFields:   c.Fields(),
		OptionalColumn: c.Results.OptionalColumn,
		SizeLimit:      c.Query.SizeLimit,
		TimeLimit:      c.Query.TimeLimit,
	}
	if in.SearchFields == nil {
		in.SearchFields = []string{}
	}
	b, err := canonicalJSON.Marshal(in)
	if err != nil {
		// a flat struct of strings, ints and bools always marshals
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
