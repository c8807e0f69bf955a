// Package remote implements store.Repository against a `kittpages serve`
// REST API, so a document tree store can sync to a server instead of a
// local database.
package remote

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

	"github.com/kittclouds/kittpages/internal/store"
)

// APIError is a non-2xx response. It unwraps to store.ErrNotFound for 404
// so callers can test with errors.Is.
type APIError struct {
	Status  int
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d type=%s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("api error: status=%d", e.Status)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return store.ErrNotFound
	case e.Status == http.StatusNotImplemented:
		return store.ErrVectorsUnsupported
	}
	return nil
}

// Client talks to the REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ store.Repository = (*Client)(nil)

// NewClient creates a client for baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, target)
}

// Ping checks /healthz.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/healthz", nil, nil)
}

// =============================================================================
// Documents
// =============================================================================

func (c *Client) ListDocuments(ctx context.Context) ([]*store.DocumentRecord, error) {
	var out []*store.DocumentRecord
	if err := c.call(ctx, http.MethodGet, "/api/documents", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDocument returns nil, nil for an unknown id.
func (c *Client) GetDocument(ctx context.Context, id string) (*store.DocumentRecord, error) {
	var out store.DocumentRecord
	err := c.call(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(id), nil, &out)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateDocument(ctx context.Context, doc *store.DocumentRecord) (*store.DocumentRecord, error) {
	var out store.DocumentRecord
	if err := c.call(ctx, http.MethodPost, "/api/documents", doc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateDocument(ctx context.Context, id string, fields store.DocumentFields) (*store.DocumentRecord, error) {
	var out store.DocumentRecord
	if err := c.call(ctx, http.MethodPatch, "/api/documents/"+url.PathEscape(id), fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/documents/"+url.PathEscape(id), nil, nil)
}

// Related returns the pages most similar to id.
func (c *Client) Related(ctx context.Context, id string, k int) ([]store.Neighbor, error) {
	var out []struct {
		ID       string  `json:"id"`
		Distance float64 `json:"distance"`
	}
	path := fmt.Sprintf("/api/documents/%s/related?k=%d", url.PathEscape(id), k)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	neighbors := make([]store.Neighbor, len(out))
	for i, r := range out {
		neighbors[i] = store.Neighbor{DocumentID: r.ID, Distance: r.Distance}
	}
	return neighbors, nil
}

// =============================================================================
// Blocks
// =============================================================================

func (c *Client) ListBlocks(ctx context.Context) ([]*store.BlockRecord, error) {
	var out []*store.BlockRecord
	if err := c.call(ctx, http.MethodGet, "/api/blocks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListDocumentBlocks(ctx context.Context, documentID string) ([]*store.BlockRecord, error) {
	var out []*store.BlockRecord
	path := "/api/blocks?documentId=" + url.QueryEscape(documentID)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBlock returns nil, nil for an unknown id.
func (c *Client) GetBlock(ctx context.Context, id string) (*store.BlockRecord, error) {
	var out store.BlockRecord
	err := c.call(ctx, http.MethodGet, "/api/blocks/"+url.PathEscape(id), nil, &out)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateBlock(ctx context.Context, b *store.BlockRecord) (*store.BlockRecord, error) {
	var out store.BlockRecord
	if err := c.call(ctx, http.MethodPost, "/api/blocks", b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateBlock(ctx context.Context, id string, fields store.BlockFields) (*store.BlockRecord, error) {
	var out store.BlockRecord
	if err := c.call(ctx, http.MethodPatch, "/api/blocks/"+url.PathEscape(id), fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteBlock(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/blocks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) UpsertBlocks(ctx context.Context, list []*store.BlockRecord) ([]*store.BlockRecord, error) {
	var out []*store.BlockRecord
	if err := c.call(ctx, http.MethodPut, "/api/blocks", list, &out); err != nil {
		return nil, err
	}
	return out, nil
}
