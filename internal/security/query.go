// Package security holds the read-only guard of the export command.
package security

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnsafeQuery marks every rejection of ValidateReadOnly.
var ErrUnsafeQuery = errors.New("unsafe query")

var (
	// Statements and functions that write or leak server details.
	forbiddenWords = []string{
		"DELETE", "DROP", "INSERT", "UPDATE", "MERGE", "ALTER", "TRUNCATE", "GRANT", "REVOKE",
		"CREATE", "REPLACE", "CALL", "EXEC", "EXECUTE", "DO", "HANDLER", "LOAD", "COPY", "INTO",
		"LOAD_FILE", "PG_READ_FILE", "PG_SLEEP", "SLEEP", "@@VERSION", "@@HOSTNAME",
	}

	systemSchemas = []string{
		"INFORMATION_SCHEMA", "MYSQL", "PERFORMANCE_SCHEMA", "SYS", "PG_CATALOG",
	}
)

// ValidateReadOnly accepts a single SELECT (or WITH ... SELECT) statement
// that neither writes nor touches system schemas. Words are matched on SQL
// token boundaries, so a column named deleted_at passes.
func ValidateReadOnly(query string) error {
	q := strings.ToUpper(strings.TrimSpace(query))

	if !strings.HasPrefix(q, "SELECT") && !strings.HasPrefix(q, "WITH") {
		return errors.Mark(errors.New("only SELECT queries are allowed"), ErrUnsafeQuery)
	}
	if strings.Contains(strings.TrimSuffix(q, ";"), ";") {
		return errors.Mark(errors.New("multi-statement queries are not allowed"), ErrUnsafeQuery)
	}
	for _, word := range forbiddenWords {
		if containsWord(q, word) {
			return errors.Mark(errors.Newf("forbidden keyword %s", errors.Safe(word)), ErrUnsafeQuery)
		}
	}
	for _, schema := range systemSchemas {
		if containsWord(q, schema) {
			return errors.Mark(errors.Newf("access to system schema %s", errors.Safe(schema)), ErrUnsafeQuery)
		}
	}
	return nil
}

// containsWord reports whether word occurs in s delimited by token
// boundaries. s is upper case already.
func containsWord(s, word string) bool {
	for idx := 0; ; {
		i := strings.Index(s[idx:], word)
		if i == -1 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if (start == 0 || isBoundary(s[start-1])) && (end == len(s) || isBoundary(s[end])) {
			return true
		}
		idx = start + 1
	}
}

func isBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '(', ')', ',', '=', '<', '>', '`', '.', '"', '[', ']', ';':
		return true
	}
	return false
}
