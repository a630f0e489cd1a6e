package directory

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Entry is a directory entry as produced by a search. It is not modified
// after construction.
type Entry struct {
	DN         string              `json:"dn"`
	Attributes map[string][]string `json:"attributes"`
}

func NewEntry(e *ldap.Entry) Entry {
	out := Entry{
		DN:         e.DN,
		Attributes: make(map[string][]string, len(e.Attributes)),
	}
	for _, a := range e.Attributes {
		if a == nil {
			continue
		}
		vals := make([]string, len(a.Values))
		copy(vals, a.Values)
		out.Attributes[a.Name] = append(out.Attributes[a.Name], vals...)
	}
	return out
}

// Values returns the values of the named attribute. An exact name match wins;
// otherwise the first case-insensitive match is used.
func (e Entry) Values(name string) []string {
	if v, ok := e.Attributes[name]; ok {
		return v
	}
	for k, v := range e.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// Last returns the final value of a multi-valued attribute.
func (e Entry) Last(name string) (string, bool) {
	v := e.Values(name)
	if len(v) == 0 {
		return "", false
	}
	return v[len(v)-1], true
}
