package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

// Selectors configures CSS extraction for one scraped listing page.
type Selectors struct {
	EventList   string `json:"event_list"`
	Name        string `json:"name"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	City        string `json:"city"`
	Venue       string `json:"venue"`
	Description string `json:"description"`
	DetailLink  string `json:"detail_link"`
}

// ScrapeConfig describes a scraped source page.
type ScrapeConfig struct {
	URL       string
	Selectors Selectors
	MaxPages  int
}

var (
	stripTags = bluemonday.StrictPolicy()
)

// ScrapeAdapter extracts events from listing pages with CSS selectors.
// Scraped text is sanitized to plain text before staging.
type ScrapeAdapter struct {
	source     catalog.Source
	config     ScrapeConfig
	normalizer *Normalizer
	logger     zerolog.Logger
	userAgent  string
	rateLimit  time.Duration
	now        func() time.Time
}

func NewScrapeAdapter(source catalog.Source, config ScrapeConfig, normalizer *Normalizer, logger zerolog.Logger) *ScrapeAdapter {
	return &ScrapeAdapter{
		source:     source,
		config:     config,
		normalizer: normalizer,
		logger:     logger.With().Str("component", "scrape_adapter").Str("source", source.Name).Logger(),
		userAgent:  apiUserAgent,
		rateLimit:  time.Second,
		now:        time.Now,
	}
}

func (a *ScrapeAdapter) Source() catalog.Source { return a.source }

// Fetch scrapes the configured listing page. Scraped feeds carry no upstream
// cursor, so every run re-fetches the page; idempotent normalization keeps
// re-fetched records stable. If ctx is cancelled mid-crawl, the records
// collected so far are returned.
func (a *ScrapeAdapter) Fetch(ctx context.Context, _ time.Time) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allowedDomain, err := extractDomain(a.config.URL)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		records []RawRecord
	)
	fetchedAt := a.now().UTC()

	c := colly.NewCollector(
		colly.UserAgent(a.userAgent),
		colly.AllowedDomains(allowedDomain),
	)
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: a.rateLimit}); err != nil {
		a.logger.Warn().Err(err).Msg("failed to set rate limit rule")
	}

	c.OnHTML(a.config.Selectors.EventList, func(h *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}

		payload := eventPayload{
			Name:        selectionText(h.DOM, a.config.Selectors.Name),
			StartDate:   selectionText(h.DOM, a.config.Selectors.StartDate),
			EndDate:     selectionText(h.DOM, a.config.Selectors.EndDate),
			City:        selectionText(h.DOM, a.config.Selectors.City),
			Venue:       selectionText(h.DOM, a.config.Selectors.Venue),
			Description: selectionText(h.DOM, a.config.Selectors.Description),
		}
		if payload.Name == "" || payload.StartDate == "" {
			return
		}

		detailURL := a.config.URL
		if a.config.Selectors.DetailLink != "" {
			if href, ok := h.DOM.Find(a.config.Selectors.DetailLink).Attr("href"); ok {
				detailURL = h.Request.AbsoluteURL(href)
			}
		}

		encoded, err := json.Marshal(payload)
		if err != nil {
			a.logger.Warn().Err(err).Msg("encode scraped payload")
			return
		}

		mu.Lock()
		records = append(records, RawRecord{
			// Scraped pages have no upstream id; the detail URL plus the
			// listed start date is stable across re-crawls.
			ExternalID: detailURL + "#" + payload.StartDate,
			SourceURL:  detailURL,
			Payload:    encoded,
			FetchedAt:  fetchedAt,
		})
		mu.Unlock()
	})

	c.OnError(func(resp *colly.Response, err error) {
		a.logger.Warn().Err(err).Str("url", resp.Request.URL.String()).Msg("scrape request failed")
	})

	if err := c.Visit(a.config.URL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", a.config.URL, err)
	}
	c.Wait()

	return records, nil
}

func (a *ScrapeAdapter) Normalize(record RawRecord) (catalog.CandidateInsertParams, error) {
	var payload eventPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return catalog.CandidateInsertParams{}, fmt.Errorf("parse scraped record %s: %w", record.ExternalID, err)
	}
	return a.normalizer.candidate(a.source, record, payload)
}

// selectionText extracts and sanitizes the text of the first node matching
// selector, or the selection's own text when selector is empty.
func selectionText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	text := sel.Find(selector).First().Text()
	return strings.TrimSpace(stripTags.Sanitize(text))
}

func extractDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid source url %q", rawURL)
	}
	return parsed.Hostname(), nil
}
