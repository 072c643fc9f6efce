package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/tunecraft/api/internal/config"
	"github.com/tunecraft/api/internal/model"
)

// ConversionStarter defines the submission boundary: one HTTP call that
// starts a conversion job upstream and returns the identifiers to track it.
type ConversionStarter interface {
	Submit(ctx context.Context, kind model.JobKind, req *SubmitRequest) (*SubmitResponse, error)
}

// ConverterClient implements ConversionStarter against the upstream
// AI-music provider API.
type ConverterClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// SubmitRequest carries the job-kind-specific submission parameters
type SubmitRequest struct {
	AudioURL     string `json:"audio_url,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Style        string `json:"style,omitempty"`
	Instrumental bool   `json:"instrumental,omitempty"`
}

// SubmitResponse is the upstream acknowledgement of a queued job
type SubmitResponse struct {
	Success       bool   `json:"success"`
	JobID         string `json:"jobId"`
	ExternalJobID string `json:"externalJobId,omitempty"`
	ETASeconds    *int   `json:"etaSeconds,omitempty"`
	Message       string `json:"message,omitempty"`
}

var submitPaths = map[model.JobKind]string{
	model.KindStems:       "/v1/convert/stems",
	model.KindRemix:       "/v1/convert/remix",
	model.KindCover:       "/v1/convert/cover",
	model.KindAudioToMIDI: "/v1/convert/midi",
	model.KindOneShot:     "/v1/generate/one-shot",
}

// NewConverterClient creates an upstream converter API client
func NewConverterClient(cfg *config.UpstreamConfig) *ConverterClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ConverterClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// Submit starts a conversion job upstream. Exactly one job is created per
// call; callers must not submit twice for one user action.
func (c *ConverterClient) Submit(ctx context.Context, kind model.JobKind, req *SubmitRequest) (*SubmitResponse, error) {
	path, ok := submitPaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown job kind: %s", kind)
	}

	var result SubmitResponse
	if err := c.post(ctx, path, req, &result); err != nil {
		return nil, err
	}
	if !result.Success || result.JobID == "" {
		msg := result.Message
		if msg == "" {
			msg = "upstream rejected the job"
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return &result, nil
}

// FetchAudio streams a result file, used by the archive worker. Not part of
// the tracked job lifecycle.
func (c *ConverterClient) FetchAudio(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audio: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("audio fetch returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ConverterClient) IsConfigured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

func (c *ConverterClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Upstream] → POST %s", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Upstream] ✗ POST %s request failed: %v", req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Upstream] ← %d POST %s", resp.StatusCode, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
