/*
Package errors defines the error taxonomy shared by the Longbow client
packages. Infrastructure failures (connectivity) are fatal and bubble up,
local input problems are validation errors that never reach the wire, and
remote query failures are caught by callers and degraded to empty results.
*/
package errors

import (
	"fmt"
)

// ConnectivityError indicates that the remote store could not be reached
// after the retry budget was exhausted. It usually means the store process
// has not started yet, so callers on the bootstrap path may choose to wait
// and try again.
type ConnectivityError struct {
	Endpoint string
	Attempts int
	cause    error
}

func NewConnectivityError(endpoint string, attempts int, cause error) *ConnectivityError {
	return &ConnectivityError{Endpoint: endpoint, Attempts: attempts, cause: cause}
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("failed to connect to %s after %d attempts: %v", e.Endpoint, e.Attempts, e.cause)
}

func (e *ConnectivityError) Unwrap() error { return e.cause }

// ValidationError indicates malformed local input, such as a vector with the
// wrong dimension or a negative edge weight. It is raised before anything is
// sent over the wire.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// QueryError indicates that the remote store rejected or failed a query.
// Callers catch it, log it, and return an empty result set rather than
// crashing a long-lived process.
type QueryError struct {
	Namespace string
	cause     error
}

func NewQueryError(namespace string, cause error) *QueryError {
	return &QueryError{Namespace: namespace, cause: cause}
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query against %q failed: %v", e.Namespace, e.cause)
}

func (e *QueryError) Unwrap() error { return e.cause }
