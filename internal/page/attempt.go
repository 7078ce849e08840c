package page

import "fmt"

// Attempt is the outcome of a best-effort DOM read: either a value or the
// reason it was skipped.
type Attempt[T any] struct {
	Value  T
	Reason string
}

// OK wraps a successful read.
func OK[T any](v T) Attempt[T] {
	return Attempt[T]{Value: v}
}

// Skipped records why a read produced nothing.
func Skipped[T any](format string, args ...any) Attempt[T] {
	return Attempt[T]{Reason: fmt.Sprintf(format, args...)}
}

// Ok reports whether the read succeeded.
func (a Attempt[T]) Ok() bool {
	return a.Reason == ""
}

// Or returns the value, or def when the read was skipped.
func (a Attempt[T]) Or(def T) T {
	if a.Ok() {
		return a.Value
	}
	return def
}

// Try converts a (value, error) pair into an Attempt.
func Try[T any](v T, err error) Attempt[T] {
	if err != nil {
		return Skipped[T]("%v", err)
	}
	return OK(v)
}
