package qlik

import (
	"encoding/json"
	"strings"
)

// A Kind classifies the hard failures returned by a Session.  Kinds are errors themselves, so callers can test for
// them with errors.Is.
type Kind string

func (k Kind) Error() string { return string(k) }

// The closed set of failure kinds.  Soft failures, such as an engine declining to create an app, are reported through
// return values instead.
const (
	// ErrConnection indicates the engine could not be reached, did not announce a new session, or dropped the
	// connection mid-request.
	ErrConnection Kind = `engine connection failed`

	// ErrState indicates an operation was invoked while the session was in a state that does not permit it.  Nothing
	// is sent to the engine in this case.
	ErrState Kind = `operation not permitted in this session state`

	// ErrProtocol indicates a response lacked the fields expected for its method.
	ErrProtocol Kind = `unexpected engine response`

	// ErrTimeout indicates the engine did not reply before the configured timeout.
	ErrTimeout Kind = `timed out waiting for engine`
)

// An Error describes a failed session operation.
type Error struct {
	Kind Kind
	Op   string          // operation that failed, such as "open app"
	Raw  json.RawMessage // raw engine frame, if one was received
	Err  error           // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(`: `)
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		b.WriteString(`: `)
		b.WriteString(e.Err.Error())
	}
	if len(e.Raw) > 0 {
		b.WriteString(`; response was `)
		b.Write(e.Raw)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}
