package directory

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

var ErrNotConnected = errors.New("connect to the LDAP server before searching")

// ConnectionError reports a failure to establish or authenticate a session.
type ConnectionError struct {
	Op  string // dial, starttls or bind
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("LDAP %s to %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SearchError wraps a protocol error returned while a search was running.
type SearchError struct {
	BaseDN string
	Filter string
	Err    error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("LDAP search under %q with filter %s failed: %v", e.BaseDN, e.Filter, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// isPartialResult reports whether err is the server telling us it stopped
// early because of an administrative, size or time limit.
func isPartialResult(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultAdminLimitExceeded) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultTimeLimitExceeded)
}
