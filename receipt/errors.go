package receipt

import (
	"errors"
	"fmt"
)

// Code is a stable error code exposed at the store boundary.
type Code int

const (
	CodeUnknown Code = -1

	CodeUnableToConstructDatabasePath       Code = 1
	CodeFailsToRestoreCompletedTransactions Code = 2
	CodeFailsToAddPayment                   Code = 3
	CodeInvalidReceiptTableRow              Code = 4
	CodeNoSubscriptionAvailable             Code = 5
)

func (c Code) String() string {
	switch c {
	case CodeUnableToConstructDatabasePath:
		return "unable to construct database path"
	case CodeFailsToRestoreCompletedTransactions:
		return "fails to restore completed transactions"
	case CodeFailsToAddPayment:
		return "fails to add payment"
	case CodeInvalidReceiptTableRow:
		return "invalid receipt table row"
	case CodeNoSubscriptionAvailable:
		return "no subscription available"
	default:
		return "unknown"
	}
}

// Error carries a stable Code alongside an optional cause. Domain outcomes
// (no subscription, payment failure) and infrastructure faults share this
// one type; callers branch on Code.
type Error struct {
	Code  Code
	cause error
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, cause: errors.New(msg)}
}

// WrapError attaches a stable code to a cause.
func WrapError(code Code, cause error) *Error {
	return &Error{Code: code, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches two Errors by Code so sentinel comparisons like
// errors.Is(err, ErrNoSubscription) work regardless of cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the stable code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

var (
	// ErrNoSubscription is the expected, common outcome of resolving a family
	// with no currently active subscription. It is not a system failure.
	ErrNoSubscription = &Error{Code: CodeNoSubscriptionAvailable}

	// ErrInvalidReceipt is returned when the validator rejects a receipt
	// blob. The store is left unmutated.
	ErrInvalidReceipt = errors.New("receipt failed validation")
)
