package format

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/sonroyaalmerol/mutt-ldap/internal/directory"
)

// Formatter renders entries in the shape mutt's query_command expects:
// address, name and an optional extra column separated by tabs.
type Formatter struct {
	OptionalColumn string
}

// Rows returns one row per mail value. Entries without mail produce none.
func (f Formatter) Rows(e directory.Entry) []string {
	mails := e.Values("mail")
	if len(mails) == 0 {
		return nil
	}

	name, ok := e.Last("displayName")
	if !ok {
		name, _ = e.Last("cn")
	}
	var extra string
	hasExtra := false
	if f.OptionalColumn != "" {
		extra, hasExtra = e.Last(f.OptionalColumn)
	}

	rows := make([]string, 0, len(mails))
	for _, m := range mails {
		cols := []string{m, name}
		if hasExtra {
			cols = append(cols, extra)
		}
		rows = append(rows, strings.Join(cols, "\t"))
	}
	return rows
}

// Write prints the count header followed by the rows, one per line.
func Write(w io.Writer, rows []string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d addresses found:\n", len(rows))
	bw.WriteString(strings.Join(rows, "\n"))
	bw.WriteString("\n")
	return bw.Flush()
}
