package handler

import (
	"errors"
	"strings"
)

// Field is one entry of a StopError's diagnostic context.
type Field struct {
	Key   string
	Value any
}

// KV builds a Field.
func KV(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// StopError aborts handling of the current message. Requeue selects between
// a nack that redelivers and one that drops. Fields keep insertion order.
type StopError struct {
	Message string
	Requeue bool
	Fields  []Field
}

func (e *StopError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString(" (")
	for i, f := range e.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Key)
	}
	b.WriteString(")")
	return b.String()
}

// Field returns the value stored under key.
func (e *StopError) Field(key string) (any, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Stop returns a non-requeueable StopError.
func Stop(msg string, fields ...Field) *StopError {
	return &StopError{Message: msg, Fields: fields}
}

// Requeue returns a requeueable StopError.
func Requeue(msg string, fields ...Field) *StopError {
	return &StopError{Message: msg, Requeue: true, Fields: fields}
}

// AsStop extracts a StopError from err.
func AsStop(err error) (*StopError, bool) {
	var se *StopError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
