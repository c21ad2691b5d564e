// Package apperr holds the error taxonomy shared by services and transports.
package apperr

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrSignature means the webhook payload could not be authenticated.
	ErrSignature = errors.New("invalid webhook signature")
	// ErrEventMalformed means the event is authentic but unusable.
	ErrEventMalformed = errors.New("malformed event")
	// ErrConflict means a unique constraint rejected a write.
	ErrConflict = errors.New("conflict")
	// ErrExternalGateway means the payment provider failed or was unreachable.
	ErrExternalGateway = errors.New("payment gateway error")
	// ErrStorage means a store operation or transaction failed.
	ErrStorage = errors.New("storage error")
	// ErrOrderNotFound means no order matched.
	ErrOrderNotFound = errors.New("order not found")
)

// ValidationError is a rejected request. Reason is safe to return to the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validation returns a *ValidationError with a formatted reason.
func Validation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// FromValidator turns the first failed field of a validator error into a *ValidationError.
// reasons is keyed by the Go struct field name; unlisted fields read "invalid <field>".
// Errors that did not come from a failed validation are returned as is.
func FromValidator(err error, reasons map[string]string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	if reason, ok := reasons[fe.StructField()]; ok {
		return &ValidationError{Reason: reason}
	}

	return Validation("invalid %s", fe.Field())
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError

	return errors.As(err, &v)
}

// Storage wraps err as a storage failure, keeping it inspectable with errors.Is.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Malformed wraps a description of an unusable event.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEventMalformed, fmt.Sprintf(format, args...))
}
