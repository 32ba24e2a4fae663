package model

import (
	"strconv"
	"time"
)

// ContentKind partitions results for filtered display. The tracking and
// merge machinery is kind-agnostic.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentAudio ContentKind = "audio"
)

// StatusTimedOut is the client-owned terminal status for entries whose poll
// budget ran out. It never comes from the server and is reported to the
// user distinctly from a server-side failure.
const StatusTimedOut = "timed_out"

// TrackedEntry is one in-flight generation the engine is responsible for.
// An entry exists in the registry if and only if the client believes the
// job is not yet resolved.
type TrackedEntry struct {
	Kind      ContentKind       `json:"kind"`
	ID        string            `json:"id"`      // story job id; decimal task id for narrations
	TaskID    int64             `json:"task_id"` // non-zero for narration entries
	Status    string            `json:"status"`  // last observed upstream status, display only
	Meta      map[string]string `json:"meta"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewStoryEntry(jobID string, p StoryParams) TrackedEntry {
	return TrackedEntry{
		Kind:      ContentText,
		ID:        jobID,
		Status:    string(JobStatusQueued),
		Meta:      p.DisplayMeta(),
		CreatedAt: time.Now(),
	}
}

func NewNarrationEntry(taskID int64, p NarrationParams) TrackedEntry {
	return TrackedEntry{
		Kind:      ContentAudio,
		ID:        strconv.FormatInt(taskID, 10),
		TaskID:    taskID,
		Status:    string(TaskStatusAccepted),
		Meta:      p.DisplayMeta(),
		CreatedAt: time.Now(),
	}
}

// Key is the registry key. Kinds are prefixed so a story job "42" can never
// collide with narration task 42.
func (e TrackedEntry) Key() string { return string(e.Kind) + ":" + e.ID }

// TerminalStatus reports whether status is terminal in this entry's status
// vocabulary.
func (e TrackedEntry) TerminalStatus(status string) bool {
	if e.Kind == ContentAudio {
		return TaskStatus(status).Terminal()
	}
	return JobStatus(status).Terminal()
}

// SucceededStatus reports whether status is a terminal success.
func (e TrackedEntry) SucceededStatus(status string) bool {
	if e.Kind == ContentAudio {
		return TaskStatus(status).Succeeded()
	}
	return JobStatus(status).Succeeded()
}

// SessionSnapshot is the derived view re-pushed to the presentation layer
// on every registry mutation.
type SessionSnapshot struct {
	UserID      string         `json:"user_id"`
	ActiveCount int            `json:"active_count"`
	Active      []TrackedEntry `json:"active"`
}

// NoticeCode classifies terminal notifications surfaced to the user.
type NoticeCode string

const (
	NoticeStoryReady     NoticeCode = "story_ready"
	NoticeNarrationReady NoticeCode = "narration_ready"
	NoticeFailed         NoticeCode = "generation_failed"
	NoticeTimedOut       NoticeCode = "generation_timed_out"
	NoticeIdle           NoticeCode = "session_idle"
)

// Notice is a one-shot user-facing notification. Terminal notices pass
// through the completion gate exactly once per entry.
type Notice struct {
	Code    NoticeCode  `json:"code"`
	Kind    ContentKind `json:"kind,omitempty"`
	RefID   string      `json:"ref_id,omitempty"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}
