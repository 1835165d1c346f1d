package domain

import "errors"

// ErrValidation matches every *ValidationError with errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError reports malformed input. Its message is returned to the client as is.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var (
	// ErrNonPositiveAmount indicates a zero or negative amount.
	ErrNonPositiveAmount error = &ValidationError{Msg: "Amount must be positive"}
	// ErrRecipientRequired indicates a transfer without destination.
	ErrRecipientRequired error = &ValidationError{Msg: "Recipient account number required"}
	// ErrInvalidAccountNumber indicates a malformed account number.
	ErrInvalidAccountNumber error = &ValidationError{Msg: "Account number must be 13 digits"}
	// ErrSameAccount indicates a transfer to the source account.
	ErrSameAccount error = &ValidationError{Msg: "Cannot transfer to same account"}
	// ErrDescriptionTooLong indicates a description over MaxDescriptionLength.
	ErrDescriptionTooLong error = &ValidationError{Msg: "Description must be at most 255 characters"}
	// ErrInvalidAccountType indicates an unsupported account type.
	ErrInvalidAccountType error = &ValidationError{Msg: "Account type is not supported"}
	// ErrInvalidRequestID indicates a request id that is too long.
	ErrInvalidRequestID error = &ValidationError{Msg: "Request id must be at most 64 characters"}
	// ErrBalanceLimit indicates that a credit would take the balance to moneypkg.Max or above.
	ErrBalanceLimit error = &ValidationError{Msg: "Balance limit exceeded"}
)

var (
	// ErrIdempotencyKeyReuse indicates that the request id was used for a different intent.
	ErrIdempotencyKeyReuse = errors.New("Request id was already used for a different request")
	// ErrRequestInProgress indicates that the intent with the request id is still running.
	ErrRequestInProgress = errors.New("A request with this id is already in progress")
)
