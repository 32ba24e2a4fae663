package model

import "time"

// Balance is the user's credit balance as reported by the studio. It is
// always re-derived from server state in full; the engine never applies
// deltas locally.
type Balance struct {
	Credits   int64     `json:"credits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Grant is one entitlement line (e.g. remaining narration minutes).
type Grant struct {
	Name      string     `json:"name"`
	Remaining int64      `json:"remaining"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
