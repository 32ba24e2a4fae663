package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"studio-sync-engine/internal/domain"
)

// TaskStatus is the lifecycle of a narration (speech synthesis) task. The
// vocabulary is owned by the synthesis worker tier and is richer than the
// story one, but the engine only ever cares about terminal-or-not.
type TaskStatus string

const (
	TaskStatusAccepted  TaskStatus = "accepted"
	TaskStatusRendering TaskStatus = "rendering"
	TaskStatusEncoding  TaskStatus = "encoding"
	TaskStatusDone      TaskStatus = "done"
	TaskStatusArchived  TaskStatus = "archived"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusExpired   TaskStatus = "expired"
)

func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusDone, TaskStatusArchived, TaskStatusFailed, TaskStatusExpired:
		return true
	}
	return false
}

func (s TaskStatus) Succeeded() bool {
	return s == TaskStatusDone || s == TaskStatusArchived
}

// NarrationParams describes a speech synthesis request.
type NarrationParams struct {
	StoryID string `json:"story_id,omitempty"` // source story, when narrating a previous result
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
	Format  string `json:"format"` // mp3 | ogg
}

func (p NarrationParams) Validate() error {
	if strings.TrimSpace(p.Text) == "" || p.VoiceID == "" {
		return domain.ErrInvalidArgument
	}
	return nil
}

func (p NarrationParams) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(p.Text)))
	h.Write([]byte{0})
	h.Write([]byte(p.VoiceID))
	h.Write([]byte{0})
	h.Write([]byte(p.Format))
	return "narration:" + hex.EncodeToString(h.Sum(nil))
}

func (p NarrationParams) DisplayMeta() map[string]string {
	m := map[string]string{
		"text":  truncate(p.Text, 120),
		"voice": p.VoiceID,
	}
	if p.StoryID != "" {
		m["story_id"] = p.StoryID
	}
	if p.Format != "" {
		m["format"] = p.Format
	}
	return m
}

// Voice is one entry of the studio's narration voice catalog.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Style    string `json:"style"`
}
