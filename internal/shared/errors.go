package shared

import "errors"

var (
	// ErrNotFound indicates a referenced resource is absent.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed caller input, checked before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConcurrencyConflict indicates a write lost a race; callers retry the whole operation.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrAlreadyCancelled indicates a cancel was requested on a sale in terminal state.
	ErrAlreadyCancelled = errors.New("sale already cancelled")
	// ErrAccountMissing indicates journal posting failed even after the default-account bootstrap.
	ErrAccountMissing = errors.New("ledger account missing")
	// ErrLedgerImbalance indicates debits and credits do not match. Correct callers never trigger it.
	ErrLedgerImbalance = errors.New("journal lines do not balance")
)

// Retryable reports whether the caller may retry the failed operation as a whole.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// UserSafeMessage maps internal errors to messages safe to show end users.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrValidation):
		return "The submitted data is invalid."
	case errors.Is(err, ErrAlreadyCancelled):
		return "This sale has already been cancelled."
	case errors.Is(err, ErrConcurrencyConflict):
		return "The operation conflicted with another request. Please try again."
	case errors.Is(err, ErrAccountMissing):
		return "A required ledger account is not configured."
	default:
		return "An unexpected error occurred."
	}
}
