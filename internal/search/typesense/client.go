// Package typesense is a minimal HTTP client for the Typesense search daemon,
// covering the operations the projection synchronizer needs: collection
// lifecycle, batch import, per-document upsert/delete, query, health.
package typesense

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	apiKeyHeader = "X-TYPESENSE-API-KEY"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 10 * time.Second
	// MaxRetries for transient errors.
	MaxRetries = 2
	// RetryBaseDelay is the initial backoff delay.
	RetryBaseDelay = 1 * time.Second
	// DefaultRateLimit caps writes against a small single-node daemon.
	DefaultRateLimit = rate.Limit(50)
)

// ErrNotFound is returned for missing collections and documents. Callers
// treating deletes as idempotent swallow it.
var ErrNotFound = errors.New("typesense: not found")

// StatusError carries a non-2xx response the retry loop gave up on.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("typesense: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client talks to one Typesense node.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a client for baseURL (e.g. "http://localhost:8108")
// authenticating with apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(DefaultRateLimit, 1),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Health checks the daemon's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var result struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &result); err != nil {
		return err
	}
	if !result.OK {
		return fmt.Errorf("typesense: daemon reports unhealthy")
	}
	return nil
}

// CreateCollection declares a new collection.
func (c *Client) CreateCollection(ctx context.Context, schema CollectionSchema) error {
	body, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/collections", body, nil)
}

// RetrieveCollection fetches a collection's schema, or ErrNotFound.
func (c *Client) RetrieveCollection(ctx context.Context, name string) (*CollectionSchema, error) {
	var schema CollectionSchema
	if err := c.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name), nil, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// DeleteCollection drops a collection and all its documents.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name), nil, nil)
}

// ImportDocuments bulk-writes documents as JSONL with the given action
// ("upsert" for the synchronizer). The response carries one result per
// document; a failed document never fails the batch.
func (c *Client) ImportDocuments(ctx context.Context, collection string, documents []any, action string) ([]ImportResult, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, doc := range documents {
		if err := encoder.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
	}

	path := fmt.Sprintf("/collections/%s/documents/import?action=%s", url.PathEscape(collection), url.QueryEscape(action))
	raw, err := c.doRaw(ctx, http.MethodPost, path, buf.Bytes())
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	results := make([]ImportResult, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var result ImportResult
		if err := json.Unmarshal([]byte(line), &result); err != nil {
			return nil, fmt.Errorf("parse import result line: %w", err)
		}
		results = append(results, result)
	}
	return results, nil
}

// UpsertDocument writes a single document.
func (c *Client) UpsertDocument(ctx context.Context, collection string, document any) error {
	body, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	path := fmt.Sprintf("/collections/%s/documents?action=upsert", url.PathEscape(collection))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// DeleteDocument removes a document by id, returning ErrNotFound when it does
// not exist.
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	path := fmt.Sprintf("/collections/%s/documents/%s", url.PathEscape(collection), url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Search queries a collection.
func (c *Client) Search(ctx context.Context, collection string, params SearchParams) (*SearchResult, error) {
	values := url.Values{}
	values.Set("q", params.Q)
	values.Set("query_by", params.QueryBy)
	if params.FilterBy != "" {
		values.Set("filter_by", params.FilterBy)
	}
	if params.SortBy != "" {
		values.Set("sort_by", params.SortBy)
	}
	if params.FacetBy != "" {
		values.Set("facet_by", params.FacetBy)
	}
	if params.Page > 0 {
		values.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		values.Set("per_page", strconv.Itoa(params.PerPage))
	}
	if params.HighlightFullFields != "" {
		values.Set("highlight_full_fields", params.HighlightFullFields)
	}

	path := fmt.Sprintf("/collections/%s/documents/search?%s", url.PathEscape(collection), values.Encode())
	var result SearchResult
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	result.Hits = result.RawHits
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, result any) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	return nil
}

// doRaw executes a request with exponential backoff on network errors, 429s
// (honoring Retry-After), and 5xx responses.
func (c *Client) doRaw(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	delay := RetryBaseDelay

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set(apiKeyHeader, c.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests:
			if after := resp.Header.Get("Retry-After"); after != "" {
				if seconds, parseErr := strconv.Atoi(after); parseErr == nil && seconds > 0 {
					delay = time.Duration(seconds) * time.Second
				}
			}
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: bodySnippet(respBody)}
			continue
		case resp.StatusCode >= 500:
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: bodySnippet(respBody)}
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: bodySnippet(respBody)}
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// bodySnippet returns up to 200 characters of body as a string.
func bodySnippet(body []byte) string {
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}
