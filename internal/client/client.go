// Package client is an HTTP client for the flagdeck API, used by flagctl and
// by services gating features on flags.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/flagdeck/flagdeck/internal/audit"
	"github.com/flagdeck/flagdeck/internal/engine"
	"github.com/flagdeck/flagdeck/internal/store"
)

// Client is an HTTP client for the flagdeck API
type Client struct {
	BaseURL    string
	APIKey     string
	ActorID    string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError carries the status and body of a failed request.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-ID", c.ActorID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// CreateFlag creates a new flag
func (c *Client) CreateFlag(ctx context.Context, flag store.Flag) (*store.Flag, error) {
	var created store.Flag
	if err := c.do(ctx, http.MethodPost, "/v1/flags", flag, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetFlag retrieves a single flag by key
func (c *Client) GetFlag(ctx context.Context, key string) (*store.Flag, error) {
	var flag store.Flag
	if err := c.do(ctx, http.MethodGet, "/v1/flags/"+url.PathEscape(key), nil, &flag); err != nil {
		return nil, err
	}
	return &flag, nil
}

// ListFlags retrieves all flags
func (c *Client) ListFlags(ctx context.Context, includeDeleted bool) ([]store.Flag, error) {
	path := "/v1/flags"
	if includeDeleted {
		path += "?includeDeleted=true"
	}

	var result struct {
		Flags []store.Flag `json:"flags"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Flags, nil
}

// UpdateFlag applies a partial update to a flag
func (c *Client) UpdateFlag(ctx context.Context, key string, params store.UpdateParams) (*store.Flag, error) {
	body := map[string]any{}
	if params.Description != nil {
		body["description"] = *params.Description
	}
	if params.Enabled != nil {
		body["enabled"] = *params.Enabled
	}
	if params.Type != nil {
		body["type"] = string(*params.Type)
	}
	if params.RolloutPercentage != nil {
		body["rolloutPercentage"] = *params.RolloutPercentage
	}

	var updated store.Flag
	if err := c.do(ctx, http.MethodPut, "/v1/flags/"+url.PathEscape(key), body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ToggleFlag flips a flag on or off
func (c *Client) ToggleFlag(ctx context.Context, key string, enabled bool) (*store.Flag, error) {
	var updated store.Flag
	err := c.do(ctx, http.MethodPost, "/v1/flags/"+url.PathEscape(key)+"/toggle",
		map[string]bool{"enabled": enabled}, &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteFlag soft-deletes a flag
func (c *Client) DeleteFlag(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/v1/flags/"+url.PathEscape(key), nil, nil)
}

// AddVariant appends a variant to a flag
func (c *Client) AddVariant(ctx context.Context, flagKey string, variant store.Variant) (*store.Variant, error) {
	var created store.Variant
	err := c.do(ctx, http.MethodPost, "/v1/flags/"+url.PathEscape(flagKey)+"/variants", variant, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// AddTarget appends a targeting rule to a flag
func (c *Client) AddTarget(ctx context.Context, flagKey string, target store.Target) (*store.Target, error) {
	var created store.Target
	err := c.do(ctx, http.MethodPost, "/v1/flags/"+url.PathEscape(flagKey)+"/targets", target, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// EvaluationResult is the evaluation response for one flag and context.
type EvaluationResult struct {
	FlagKey string `json:"flagKey"`
	Enabled bool   `json:"enabled"`
	Value   any    `json:"value,omitempty"`
	Variant string `json:"variant,omitempty"`
	Reason  string `json:"reason"`
}

// Evaluate resolves a flag for the given context
func (c *Client) Evaluate(ctx context.Context, flagKey string, ectx *engine.Context) (*EvaluationResult, error) {
	body := map[string]any{"flagKey": flagKey}
	if ectx != nil {
		body["context"] = ectx
	}

	var result EvaluationResult
	if err := c.do(ctx, http.MethodPost, "/v1/evaluate", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FlagAudit retrieves the audit trail for one flag, newest first
func (c *Client) FlagAudit(ctx context.Context, flagKey string, limit int) ([]audit.Entry, error) {
	path := "/v1/flags/" + url.PathEscape(flagKey) + "/audit"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var result struct {
		Entries []audit.Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// RecentAudit retrieves recent audit entries, optionally filtered by actor
func (c *Client) RecentAudit(ctx context.Context, actor string, limit int) ([]audit.Entry, error) {
	q := url.Values{}
	if actor != "" {
		q.Set("actor", actor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Entries []audit.Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}
