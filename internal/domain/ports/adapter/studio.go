package adapter

import (
	"context"

	"studio-sync-engine/internal/domain/model"
)

// StatusReport is the studio's answer to a direct status query, and the
// payload a push event is normalized into.
type StatusReport struct {
	Status    string
	ResultRef string
	Error     string
}

// StudioAdapter is the port for the studio backend API: job submission,
// direct status queries, content retrieval and account reads. Submission
// errors come back as domain sentinels (ErrInsufficientCredits,
// ErrRateLimited) so the caller can surface machine-readable reasons.
type StudioAdapter interface {
	SubmitStory(ctx context.Context, userID string, p model.StoryParams) (jobID string, err error)
	StoryStatus(ctx context.Context, jobID string) (StatusReport, error)

	SubmitNarration(ctx context.Context, userID string, p model.NarrationParams) (taskID int64, err error)
	NarrationStatus(ctx context.Context, taskID int64) (StatusReport, error)

	// FetchContent resolves a result reference to artifact bytes. Returns
	// domain.ErrContentUnavailable when the endpoint answers non-success.
	FetchContent(ctx context.Context, ref string) (data []byte, contentType string, err error)

	Balance(ctx context.Context, userID string) (model.Balance, error)
	Grants(ctx context.Context, userID string) ([]model.Grant, error)
	ListVoices(ctx context.Context) ([]model.Voice, error)
}

// BlobStoreAdapter is the port for the durable artifact store.
type BlobStoreAdapter interface {
	// Upload stores data under bucket/name and returns the durable URL.
	Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error)
}
