package model

import "time"

// Scope names one logical push subscription. Job and task scopes feed the
// completion gate; balance and grant scopes trigger idempotent refreshes.
type Scope string

const (
	ScopeJobs    Scope = "jobs"
	ScopeTasks   Scope = "tasks"
	ScopeBalance Scope = "balance"
	ScopeGrants  Scope = "grants"
)

// AllScopes returns every subscription scope in a fixed order.
func AllScopes() []Scope {
	return []Scope{ScopeJobs, ScopeTasks, ScopeBalance, ScopeGrants}
}

// ChannelEvent is one server-pushed notification. Delivery is best-effort
// and at-least-once: events may be lost, duplicated, or reordered, which is
// why terminal handling goes through the completion gate.
type ChannelEvent struct {
	Scope     Scope     `json:"scope"`
	EntityID  string    `json:"entity_id"`
	NewStatus string    `json:"status"`
	ResultRef string    `json:"result_ref,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}
