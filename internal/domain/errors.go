package domain

import "errors"

var (
	ErrUnsupportedType     = errors.New("unsupported image type")
	ErrTooLarge            = errors.New("image too large")
	ErrQuotaExhausted      = errors.New("daily quota exhausted")
	ErrEntitlementRequired = errors.New("entitlement required")
	ErrMissingIdentity     = errors.New("missing identity")
	ErrProviderFailure     = errors.New("provider failure")
	ErrSessionBusy         = errors.New("session busy")
)
