// File: internal/infra/adapters/studio/client.go
package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/domain"
	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
)

var _ adapter.StudioAdapter = (*Client)(nil)

// Client talks to the studio REST API: submission, status queries, content
// retrieval and account reads.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg *config.StudioConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("studio base url empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid studio base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) endpoint(path string) string { return c.baseURL + path }

// apiError drains the error body and maps HTTP codes to domain sentinels.
func (c *Client) apiError(resp *http.Response) error {
	var out struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	msg := out.Error
	if msg == "" {
		msg = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientCredits, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %s", domain.ErrContentUnavailable, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	default:
		return fmt.Errorf("studio api %d: %s", resp.StatusCode, msg)
	}
}

func (c *Client) SubmitStory(ctx context.Context, userID string, p model.StoryParams) (string, error) {
	payload := map[string]any{
		"user_id":  userID,
		"prompt":   p.Prompt,
		"genre":    p.Genre,
		"length":   p.Length,
		"language": p.Language,
	}
	b, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/stories"), bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.apiError(resp)
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", errors.New("studio returned empty job id")
	}
	return out.JobID, nil
}

func (c *Client) StoryStatus(ctx context.Context, jobID string) (adapter.StatusReport, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/stories/"+url.PathEscape(jobID)), nil)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return adapter.StatusReport{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return adapter.StatusReport{}, c.apiError(resp)
	}
	var out struct {
		Status    string `json:"status"`
		ResultRef string `json:"result_ref"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.StatusReport{}, err
	}
	return adapter.StatusReport{Status: out.Status, ResultRef: out.ResultRef, Error: out.Error}, nil
}

func (c *Client) SubmitNarration(ctx context.Context, userID string, p model.NarrationParams) (int64, error) {
	payload := map[string]any{
		"user_id":  userID,
		"story_id": p.StoryID,
		"text":     p.Text,
		"voice_id": p.VoiceID,
		"format":   p.Format,
	}
	b, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/narrations"), bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, c.apiError(resp)
	}
	var out struct {
		TaskID int64 `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.TaskID == 0 {
		return 0, errors.New("studio returned empty task id")
	}
	return out.TaskID, nil
}

func (c *Client) NarrationStatus(ctx context.Context, taskID int64) (adapter.StatusReport, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(fmt.Sprintf("/v1/narrations/%d", taskID)), nil)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return adapter.StatusReport{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return adapter.StatusReport{}, c.apiError(resp)
	}
	var out struct {
		Status    string `json:"status"`
		ResultRef string `json:"result_ref"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.StatusReport{}, err
	}
	return adapter.StatusReport{Status: out.Status, ResultRef: out.ResultRef, Error: out.Error}, nil
}

// FetchContent resolves a result reference to raw artifact bytes. The ref
// is a short-lived token; 404/410 answers surface as ErrContentUnavailable.
func (c *Client) FetchContent(ctx context.Context, ref string) ([]byte, string, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/content/"+url.PathEscape(ref)), nil)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", c.apiError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) Balance(ctx context.Context, userID string) (model.Balance, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/accounts/"+url.PathEscape(userID)+"/balance"), nil)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return model.Balance{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Balance{}, c.apiError(resp)
	}
	var out model.Balance
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Balance{}, err
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now()
	}
	return out, nil
}

func (c *Client) Grants(ctx context.Context, userID string) ([]model.Grant, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/accounts/"+url.PathEscape(userID)+"/grants"), nil)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiError(resp)
	}
	var out struct {
		Grants []model.Grant `json:"grants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Grants, nil
}

func (c *Client) ListVoices(ctx context.Context) ([]model.Voice, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/voices"), nil)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiError(resp)
	}
	var out struct {
		Voices []model.Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}
