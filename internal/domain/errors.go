package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientProvider marks a bar source failure worth retrying.
	ErrTransientProvider = errors.New("transient provider error")
	// ErrRetriesExhausted is returned once a bounded retry gives up.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrMalformedBarTable reports a bar table that cannot be regrouped
	// into the requested symbol order.
	ErrMalformedBarTable = errors.New("malformed bar table")
	// ErrWindowIncomplete is returned when window assembly hits its page cap.
	ErrWindowIncomplete = errors.New("window incomplete")
	// ErrNoReference is returned when no daily bar could seed the reference state.
	ErrNoReference = errors.New("no reference bar found")
	// ErrNotTradingDay is returned for calendar days without a session.
	ErrNotTradingDay = errors.New("not a trading day")
)

// ProviderError wraps a failure from the market-data provider.
type ProviderError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s: %s provider error: %v", e.Op, kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Transient {
		return []error{ErrTransientProvider, e.Err}
	}
	return []error{e.Err}
}

// MalformedTableError wraps ErrMalformedBarTable with the offending symbol.
func MalformedTableError(symbol, reason string) error {
	return fmt.Errorf("%w: symbol %q %s", ErrMalformedBarTable, symbol, reason)
}
