// Package sferror defines the structured errors surfaced at the tool
// boundary. Every failure an agent can see is one of four kinds, always
// attributed to the tool that produced it, never a raw driver error.
package sferror

import (
	"errors"
	"fmt"
)

// Kind partitions the error taxonomy.
type Kind int

const (
	// KindConfiguration: malformed or missing configuration. Fatal at
	// startup; the service does not start.
	KindConfiguration Kind = iota
	// KindConnection: authentication or network failure establishing or
	// using the database session. Surfaced per-request.
	KindConnection
	// KindPermissionDenied: the classified statement type was rejected by
	// the permission policy. Always carries the resolved statement type.
	KindPermissionDenied
	// KindExecution: the database rejected or failed the SQL after
	// authorization. Wraps the driver message.
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindPermissionDenied:
		return "permission_denied"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Error is a tool-attributed structured error.
type Error struct {
	Kind          Kind
	Tool          string // originating tool, e.g. "query_manager"
	Message       string
	StatementType string // set for KindPermissionDenied
	StatusCode    int    // optional; 0 means unknown
	Err           error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindPermissionDenied:
		return fmt.Sprintf("statement type %q is not allowed; review sql statement permissions in the configuration file", e.StatementType)
	default:
		if e.StatusCode != 0 {
			return fmt.Sprintf("%s: %s error: %s (status %d)", e.Tool, e.Kind, e.Message, e.StatusCode)
		}
		return fmt.Sprintf("%s: %s error: %s", e.Tool, e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Configuration builds a fatal configuration error. err may be nil when the
// problem is the configuration content itself rather than a failed read.
func Configuration(message string, err error) *Error {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	return &Error{Kind: KindConfiguration, Tool: "config", Message: message, Err: err}
}

// Connection builds a per-request connection error.
func Connection(tool string, err error) *Error {
	return &Error{Kind: KindConnection, Tool: tool, Message: err.Error(), Err: err}
}

// PermissionDenied builds a policy rejection naming the resolved type.
func PermissionDenied(tool, statementType string) *Error {
	return &Error{Kind: KindPermissionDenied, Tool: tool, StatementType: statementType}
}

// Execution wraps a driver failure with an optional status code.
func Execution(tool string, err error, statusCode int) *Error {
	return &Error{Kind: KindExecution, Tool: tool, Message: err.Error(), StatusCode: statusCode, Err: err}
}

// As extracts an *Error from err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsPermissionDenied reports whether err is a policy rejection.
func IsPermissionDenied(err error) bool {
	e := As(err)
	return e != nil && e.Kind == KindPermissionDenied
}
