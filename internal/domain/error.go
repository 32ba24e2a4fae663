package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrSessionClosed       = errors.New("session engine is closed")
	ErrTooManyActive       = errors.New("active generation limit reached")
	ErrDuplicateSubmission = errors.New("identical request submitted moments ago")
	ErrRateLimited         = errors.New("submission rate limit exceeded")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrContentUnavailable  = errors.New("result content unavailable")
	ErrUploadFailed        = errors.New("durable upload failed")
	ErrPollTimeout         = errors.New("generation took too long")
	ErrCacheMiss           = errors.New("cache entry missing or stale")
	ErrUnauthorized        = errors.New("missing or invalid session token")
)
