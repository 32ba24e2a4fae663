package model

import "time"

// HistoryItem is one finished result in the reconciled feed. Items are
// never mutated in place: an ephemeral audio reference is upgraded by
// recording a replacement with the same ID.
type HistoryItem struct {
	ID        string            `json:"id"` // ULID; unique within the feed
	UserID    string            `json:"user_id"`
	Kind      ContentKind       `json:"kind"`
	SourceID  string            `json:"source_id"` // upstream job or task id this item came from
	Content   string            `json:"content"`   // story text or narration transcript
	MediaRef  string            `json:"media_ref"` // audio locator; empty for text items
	Ephemeral bool              `json:"ephemeral"` // MediaRef points at the local spool
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// WithDurableRef returns the replacement item produced when the durable
// upload lands. Same ID, so a merge keeps exactly one of the two.
func (it HistoryItem) WithDurableRef(url string) HistoryItem {
	up := it
	up.MediaRef = url
	up.Ephemeral = false
	return up
}
