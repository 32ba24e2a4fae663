package repository

import (
	"context"
	"time"
)

// AdmissionGuard backs the client-side submission safeguards. Both guards
// are UX protections, not correctness mechanisms: the server remains the
// authority on quota and deduplication.
type AdmissionGuard interface {
	// ReserveFingerprint claims a request fingerprint for the duplicate
	// window. Returns false when an identical payload was submitted within
	// the window.
	ReserveFingerprint(ctx context.Context, userID, fingerprint string, window time.Duration) (bool, error)
	// ReleaseFingerprint frees a reservation early, so a submission that
	// never reached the studio can be retried immediately.
	ReleaseFingerprint(ctx context.Context, userID, fingerprint string) error
	// AllowSubmit counts a submission against the user's rolling window
	// and reports whether it is within the limit.
	AllowSubmit(ctx context.Context, userID string, limit int, window time.Duration) (bool, error)
}
