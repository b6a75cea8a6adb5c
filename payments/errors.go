package payments

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindTransient  ErrorKind = "transient"
	KindDecline    ErrorKind = "decline"
)

// ProviderError is the only error shape adapters return for provider calls.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Code     string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s error (%s): %v", e.Provider, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrFractionalAmount = errors.New("mobile money amounts must be whole units")
)

func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindTransient
}

func IsValidation(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindValidation
}

func transientError(provider string, err error) error {
	return &ProviderError{Provider: provider, Kind: KindTransient, Err: err}
}

func validationError(provider, code string, err error) error {
	return &ProviderError{Provider: provider, Kind: KindValidation, Code: code, Err: err}
}
