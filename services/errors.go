package services

import "errors"

var (
	ErrDonationNotFound = errors.New("donation not found")
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrChainerNotFound  = errors.New("chainer not found")
	ErrPayoutNotFound   = errors.New("payout request not found")
	ErrForbidden        = errors.New("not allowed to act on this resource")

	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrCurrencyMismatch        = errors.New("currency does not match the campaign")
	ErrUnknownAction           = errors.New("unknown payout action")
	ErrRejectionReasonTooShort = errors.New("rejection reason is too short")

	ErrCampaignNotActive   = errors.New("campaign is not accepting donations")
	ErrNotRetryable        = errors.New("donation is not eligible for retry")
	ErrRetryLimitReached   = errors.New("donation retry limit reached")
	ErrRetryCooldown       = errors.New("donation retry cooldown has not elapsed")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrKYCRequired         = errors.New("identity verification required")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAttributionLocked   = errors.New("commission already paid against current totals")
	ErrPayoutRetryLimit    = errors.New("payout retry limit reached")
	ErrPayoutRetryTooSoon  = errors.New("payout retry backoff has not elapsed")
	ErrChargeSuperseded    = errors.New("donation changed before the charge was recorded")
)

// BusinessError is a business-rule violation. It is reported to the caller
// with its code and never retried.
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string { return e.Message }

func (e *BusinessError) Unwrap() error { return e.Err }

func businessError(code string, err error) error {
	return &BusinessError{Code: code, Message: err.Error(), Err: err}
}

func IsBusinessError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}
