package directory

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// BuildFilter ORs a substring match for query over each field and, when
// static is set, ANDs the result with it. An empty query degrades to a
// presence match on every field.
func BuildFilter(query string, fields []string, static string) string {
	post := ""
	if query != "" {
		post = "*"
	}
	q := ldap.EscapeFilter(query)

	var b strings.Builder
	if len(fields) == 0 {
		b.WriteString("(objectClass=*)")
	} else {
		b.WriteString("(|")
		for _, f := range fields {
			b.WriteString("(")
			b.WriteString(f)
			b.WriteString("=*")
			b.WriteString(q)
			b.WriteString(post)
			b.WriteString(")")
		}
		b.WriteString(")")
	}

	static = strings.TrimSpace(static)
	if static == "" {
		return b.String()
	}
	if !strings.HasPrefix(static, "(") {
		static = "(" + static + ")"
	}
	return "(&" + static + b.String() + ")"
}
