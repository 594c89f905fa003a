// Package deadline bounds how long a caller waits for a unit of work without
// pretending to stop that work. When the limit passes, Run returns ErrExceeded
// and the work keeps running on its own goroutine; its eventual result is
// discarded.
package deadline

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

var (
	// ErrExceeded reports that the work did not finish within the limit.
	ErrExceeded = errors.New("deadline exceeded")
	// ErrInvalidLimit is returned for non-positive limits; the work is not started.
	ErrInvalidLimit = errors.New("deadline: limit must be positive")
)

// PanicError carries a panic recovered from the bounded work.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("deadline: work panicked: %v", e.Value)
}

type outcome[T any] struct {
	value T
	err   error
}

// Run executes fn on a new goroutine and waits at most limit for it.
func Run[T any](limit time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if limit <= 0 {
		return zero, ErrInvalidLimit
	}

	// Buffered so an abandoned worker can always deliver and exit.
	done := make(chan outcome[T], 1)
	go func() {
		var res outcome[T]
		defer func() {
			if r := recover(); r != nil {
				res = outcome[T]{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
			done <- res
		}()
		res.value, res.err = fn()
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		return zero, ErrExceeded
	}
}
