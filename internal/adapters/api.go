package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

const (
	apiDefaultTimeout   = 30 * time.Second
	apiMaxRetries       = 2
	apiRetryBaseDelay   = 1 * time.Second
	apiDefaultRateLimit = rate.Limit(2)
	apiUserAgent        = "mawsim-catalog/1.0 (+https://mawsim.ma)"
)

// APIAdapter fetches JSON event feeds from first-party APIs. The feed is a
// JSON array of objects in the shared payload shape; external ids come from
// the feed's "id" field.
type APIAdapter struct {
	source     catalog.Source
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	normalizer *Normalizer
	now        func() time.Time
}

// APIOption configures an APIAdapter.
type APIOption func(*APIAdapter)

// WithAPIHTTPClient sets a custom HTTP client.
func WithAPIHTTPClient(client *http.Client) APIOption {
	return func(a *APIAdapter) {
		a.httpClient = client
	}
}

// WithAPITimeout overrides the per-request deadline (default 30s).
func WithAPITimeout(timeout time.Duration) APIOption {
	return func(a *APIAdapter) {
		a.httpClient.Timeout = timeout
	}
}

func NewAPIAdapter(source catalog.Source, baseURL, apiKey string, normalizer *Normalizer, opts ...APIOption) *APIAdapter {
	adapter := &APIAdapter{
		source:     source,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: apiDefaultTimeout},
		limiter:    rate.NewLimiter(apiDefaultRateLimit, 1),
		normalizer: normalizer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

func (a *APIAdapter) Source() catalog.Source { return a.source }

// apiRecord is one element of the upstream feed.
type apiRecord struct {
	ID  string `json:"id"`
	URL string `json:"url"`
	eventPayload
}

func (a *APIAdapter) Fetch(ctx context.Context, since time.Time) ([]RawRecord, error) {
	params := url.Values{}
	if !since.IsZero() {
		params.Set("updated_since", since.UTC().Format(time.RFC3339))
	}
	requestURL := a.baseURL + "/events"
	if encoded := params.Encode(); encoded != "" {
		requestURL += "?" + encoded
	}

	body, err := a.getWithRetry(ctx, requestURL)
	if err != nil {
		return nil, err
	}

	var feed []json.RawMessage
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	fetchedAt := a.now().UTC()
	records := make([]RawRecord, 0, len(feed))
	for i, raw := range feed {
		var item apiRecord
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("parse feed item %d: %w", i, err)
		}
		if item.ID == "" {
			return nil, fmt.Errorf("feed item %d: missing id", i)
		}
		sourceURL := item.URL
		if sourceURL == "" {
			sourceURL = requestURL
		}
		records = append(records, RawRecord{
			ExternalID: item.ID,
			SourceURL:  sourceURL,
			Payload:    raw,
			FetchedAt:  fetchedAt,
		})
	}
	return records, nil
}

func (a *APIAdapter) Normalize(record RawRecord) (catalog.CandidateInsertParams, error) {
	var item apiRecord
	if err := json.Unmarshal(record.Payload, &item); err != nil {
		return catalog.CandidateInsertParams{}, fmt.Errorf("parse record %s: %w", record.ExternalID, err)
	}
	return a.normalizer.candidate(a.source, record, item.eventPayload)
}

// getWithRetry mirrors the backoff discipline of the search client: network
// errors, 429s, and 5xx responses retry with exponential backoff.
func (a *APIAdapter) getWithRetry(ctx context.Context, requestURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= apiMaxRetries; attempt++ {
		if attempt > 0 {
			delay := apiRetryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", apiUserAgent)
		if a.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.apiKey)
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bodySnippet(body))
		}
		return body, nil
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
