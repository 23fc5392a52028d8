package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrUnsupportedPlan     = errors.New("unsupported plan")
	ErrUnknownModule       = errors.New("unknown module")
	ErrProviderFailure     = errors.New("provider failure")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrUserNotMatched      = errors.New("no account matches payer email")
	ErrStoreWriteFailed    = errors.New("store write failed")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUnverifiedAccount   = errors.New("account not verified")
	ErrDuplicateAccount    = errors.New("account already exists")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrEmptyResult         = errors.New("empty result")
	ErrDowngradeConfirm    = errors.New("downgrade requires confirmation")
	ErrAlreadyApplied      = errors.New("payment already applied")
)
