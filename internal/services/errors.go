package services

import (
	"fmt"
	"sort"
)

// ValidationError is returned when the inbound chat request is unusable.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	field, ok := e.firstField()
	if !ok {
		return "validation failed"
	}
	return fmt.Sprintf("%s: %s", field, e.Fields[field])
}

// Message is the message of the alphabetically first field, suitable for a
// client-facing error body.
func (e *ValidationError) Message() string {
	field, ok := e.firstField()
	if !ok {
		return "validation failed"
	}
	return e.Fields[field]
}

func (e *ValidationError) firstField() (string, bool) {
	if len(e.Fields) == 0 {
		return "", false
	}
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields[0], true
}

// TransportError covers every failure to obtain a usable provider reply:
// network errors, timeouts, non-JSON bodies, request encoding.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
