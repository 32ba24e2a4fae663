// File: internal/infra/redis/submit_guard.go
package redis

import (
	"context"
	"fmt"
	"time"

	"studio-sync-engine/internal/domain/ports/repository"
)

var _ repository.AdmissionGuard = (*SubmitGuard)(nil)

// SubmitGuard backs the pre-submission checks: a short SetNX reservation
// per parameter fingerprint to absorb double-clicks, and a counter window
// for the per-user submission rate.
type SubmitGuard struct {
	client *Client
}

func NewSubmitGuard(client *Client) *SubmitGuard {
	return &SubmitGuard{client: client}
}

func fingerprintKey(userID, fingerprint string) string {
	return fmt.Sprintf("submit_fp:%s:%s", userID, fingerprint)
}

func rateKey(userID string) string {
	return fmt.Sprintf("submit_rate:%s", userID)
}

// ReserveFingerprint claims the fingerprint for the window. Returns false
// when an identical submission already holds the reservation.
func (g *SubmitGuard) ReserveFingerprint(ctx context.Context, userID, fingerprint string, window time.Duration) (bool, error) {
	return g.client.SetNX(ctx, fingerprintKey(userID, fingerprint), "1", window)
}

// ReleaseFingerprint frees a reservation early so a failed submission can
// be retried without waiting out the window.
func (g *SubmitGuard) ReleaseFingerprint(ctx context.Context, userID, fingerprint string) error {
	return g.client.Del(ctx, fingerprintKey(userID, fingerprint))
}

func (g *SubmitGuard) AllowSubmit(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	count, err := g.client.Incr(ctx, rateKey(userID))
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = g.client.Expire(ctx, rateKey(userID), window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}
