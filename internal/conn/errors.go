package conn

import (
	"errors"
	"fmt"
)

// ErrBudgetExhausted matches any *BudgetExhaustedError via errors.Is.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// TransportError is a dial, write or read failure.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s to %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError means bytes arrived but could not be decoded as a response.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// BudgetExhaustedError is returned once every attempt of an exchange failed. Last is
// the failure of the final attempt.
type BudgetExhaustedError struct {
	Attempts int
	Last     error
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("exchange failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *BudgetExhaustedError) Unwrap() error {
	return e.Last
}

func (e *BudgetExhaustedError) Is(target error) bool {
	return target == ErrBudgetExhausted
}

// IsTransportError reports whether err wraps a *TransportError.
func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsProtocolError reports whether err wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}
