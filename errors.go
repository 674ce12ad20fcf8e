package participants

import (
	"errors"
	"strings"
)

// Sentinel errors for store-level failure modes. Authorization exhaustion is
// never an error: a caller with no legitimate visibility receives an empty
// result set, so the existence of filtered-out participants cannot be
// inferred from error behavior.
var (
	// ErrMissingRelation is returned when one of the participant relations
	// does not exist. This typically means the database schema has not been
	// provisioned; run `participants doctor` against the target database.
	ErrMissingRelation = errors.New("participants: required relation not found")

	// ErrMissingView is returned when the participants_status_infos view
	// read by privileged roles does not exist.
	ErrMissingView = errors.New("participants: status-infos view not found")
)

// IsMissingRelationErr returns true if err is or wraps ErrMissingRelation.
func IsMissingRelationErr(err error) bool {
	return errors.Is(err, ErrMissingRelation)
}

// IsMissingViewErr returns true if err is or wraps ErrMissingView.
func IsMissingViewErr(err error) bool {
	return errors.Is(err, ErrMissingView)
}

// PostgreSQL error codes used when mapping store failures to sentinels.
const (
	pgUndefinedTable = "42P01" // undefined_table
)

// sqlState extracts the SQLSTATE code from a PostgreSQL error.
// Works with multiple drivers via interface detection:
//   - pgx/pgconn: SQLState() string
//   - lib/pq: Code() via error wrappers
//
// Returns empty string if the error doesn't carry a SQLSTATE.
func sqlState(err error) string {
	type sqlStateErr interface{ SQLState() string }
	var se sqlStateErr
	if errors.As(err, &se) {
		return se.SQLState()
	}

	type codeErr interface{ Code() string }
	var ce codeErr
	if errors.As(err, &ce) {
		return ce.Code()
	}

	// Fallback: extract from the message, format "... (SQLSTATE 42P01)".
	errStr := err.Error()
	for _, prefix := range []string{"SQLSTATE ", "SQLSTATE: "} {
		if idx := strings.Index(errStr, prefix); idx >= 0 {
			start := idx + len(prefix)
			if start+5 <= len(errStr) {
				return errStr[start : start+5]
			}
		}
	}
	return ""
}
