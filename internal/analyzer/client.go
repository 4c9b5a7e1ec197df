package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// ErrUnavailable indicates the analyzer was unreachable or returned a
// non-success response. Callers surface it as a retryable failure.
var ErrUnavailable = errors.New("analyzer unavailable")

// Client is a stateless wrapper around the external analyzer's HTTP API.
// Retries belong to the caller, not this layer.
type Client struct {
	baseURL string
	base    *url.URL
	client  *http.Client
}

// NewClient creates a new analyzer client for the given base origin,
// e.g. "http://localhost:8000".
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	trimmed := trimTrailingSlash(baseURL)
	base, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid analyzer base URL %q: %w", baseURL, err)
	}
	return &Client{
		baseURL: trimmed,
		base:    base,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// SubmitResponse holds the metadata the analyzer returns when a job is
// accepted. Every field is optional; the analyzer may omit any of them.
type SubmitResponse struct {
	WorkspaceID string `json:"workspace_id"`
	Status      string `json:"status"`
	StatusURL   string `json:"status_url"`
	ResultURL   string `json:"result_url"`
	Message     string `json:"message"`
}

// StatusResponse is one status snapshot from the analyzer. Pointer fields
// distinguish "omitted" from zero values so merging can keep prior state.
type StatusResponse struct {
	WorkspaceID string  `json:"workspace_id"`
	Status      string  `json:"status"`
	Progress    *int    `json:"progress"`
	Message     *string `json:"message"`
	CurrentStep *string `json:"current_step"`
}

type submitRequest struct {
	GithubURL   string `json:"github_url"`
	WorkspaceID string `json:"workspace_id"`
}

// Submit starts an analysis job for the given repository. A malformed or
// non-JSON body on a successful response is treated as "no metadata
// available", not an error.
func (c *Client) Submit(ctx context.Context, repositoryURL, workspaceID string) (*SubmitResponse, error) {
	body, err := json.Marshal(submitRequest{
		GithubURL:   repositoryURL,
		WorkspaceID: workspaceID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding submit request: %w", err)
	}

	u := fmt.Sprintf("%s/api/analyze", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: submit returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var submitResp SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		log.Printf("Analyzer returned non-JSON submit response, using defaults: %v", err)
		return &SubmitResponse{}, nil
	}

	return &submitResp, nil
}

// FetchJSON issues a GET against the given absolute URL and returns the raw
// JSON document.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: GET %s returned status %d", ErrUnavailable, rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrUnavailable, err)
	}

	return json.RawMessage(data), nil
}

// ResolveURL normalizes a URL the analyzer returned. Relative paths are
// resolved against the analyzer's base origin; absolute URLs and empty
// strings pass through unchanged.
func (c *Client) ResolveURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		log.Printf("Unparseable analyzer URL %q, keeping as-is: %v", raw, err)
		return raw
	}
	if u.IsAbs() {
		return raw
	}
	return c.base.ResolveReference(u).String()
}

// StatusURL derives the status endpoint for an analyzer-assigned job id.
func (c *Client) StatusURL(externalID string) string {
	return fmt.Sprintf("%s/api/status/%s", c.baseURL, externalID)
}

// ResultURL derives the result endpoint for an analyzer-assigned job id.
func (c *Client) ResultURL(externalID string) string {
	return fmt.Sprintf("%s/api/result/%s", c.baseURL, externalID)
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
