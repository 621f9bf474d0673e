package models

import (
	"fmt"
	"time"
)

// TransportError reports a sub-window request that failed on the wire or
// returned a non-success status.
type TransportError struct {
	Exchange string
	Market   string
	Start    time.Time
	End      time.Time

	// Status is the HTTP status code, zero for transport-level failures.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	window := fmt.Sprintf("%s..%s", e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	if e.Status != 0 {
		return fmt.Sprintf("%s %s [%s]: status %d", e.Exchange, e.Market, window, e.Status)
	}
	return fmt.Sprintf("%s %s [%s]: %v", e.Exchange, e.Market, window, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports input data missing a required field or column.
type ValidationError struct {
	// Scope is the market group or table the check ran on.
	Scope  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s %s", e.Scope, e.Field, e.Reason)
}

// CycleError wraps any failure inside one refresh cycle.
type CycleError struct {
	Stage string
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle failed at %s: %v", e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// InvalidRangeError is returned when a fetch range is empty or inverted.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid fetch range: start %s is not before end %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}
