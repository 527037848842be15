package pool

import (
	"errors"
	"fmt"
)

var ErrClosed = errors.New("connection pool is closed")

// Error represents errors specific to pool operations
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("connection pool error during %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsPoolError checks if an error is a pool error
func IsPoolError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}
