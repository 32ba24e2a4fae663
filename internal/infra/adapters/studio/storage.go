// File: internal/infra/adapters/studio/storage.go
package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/domain"
	"studio-sync-engine/internal/domain/ports/adapter"
)

var _ adapter.BlobStoreAdapter = (*BlobStore)(nil)

// BlobStore uploads finished artifacts to the studio's durable blob
// endpoint. Uploads replace the short-lived render cache refs with URLs
// that survive past artifact expiry.
type BlobStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewBlobStore(cfg *config.StudioConfig) (*BlobStore, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("studio base url empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// Uploads move whole artifacts; give them more room than API calls.
	return &BlobStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 4 * timeout},
	}, nil
}

func (s *BlobStore) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	if bucket == "" || name == "" {
		return "", domain.ErrInvalidArgument
	}
	ep := fmt.Sprintf("%s/v1/blobs/%s/%s", s.baseURL, url.PathEscape(bucket), url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, ep, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: blob upload http %d", domain.ErrUploadFailed, resp.StatusCode)
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: empty blob url", domain.ErrUploadFailed)
	}
	return out.URL, nil
}
