package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"studio-sync-engine/internal/domain"
)

// JobStatus is the server-authoritative lifecycle of a story generation job.
// The client never invents transitions; it only observes.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition can occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Succeeded reports whether the terminal state carries a result.
func (s JobStatus) Succeeded() bool { return s == JobStatusCompleted }

// StoryParams is what the user asked for. The engine treats it as opaque
// display metadata; only the studio interprets it.
type StoryParams struct {
	Prompt   string `json:"prompt"`
	Genre    string `json:"genre"`
	Length   string `json:"length"` // short | medium | long
	Language string `json:"language"`
}

func (p StoryParams) Validate() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return domain.ErrInvalidArgument
	}
	return nil
}

// Fingerprint identifies an identical resubmission within the duplicate
// window. It is a UX safeguard only; the server stays authoritative.
func (p StoryParams) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(p.Prompt)))
	h.Write([]byte{0})
	h.Write([]byte(p.Genre))
	h.Write([]byte{0})
	h.Write([]byte(p.Length))
	h.Write([]byte{0})
	h.Write([]byte(p.Language))
	return "story:" + hex.EncodeToString(h.Sum(nil))
}

// DisplayMeta is the free-form attribute set shown while the job is pending.
func (p StoryParams) DisplayMeta() map[string]string {
	m := map[string]string{"prompt": truncate(p.Prompt, 120)}
	if p.Genre != "" {
		m["genre"] = p.Genre
	}
	if p.Length != "" {
		m["length"] = p.Length
	}
	if p.Language != "" {
		m["language"] = p.Language
	}
	return m
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
