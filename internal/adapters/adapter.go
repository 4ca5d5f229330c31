// Package adapters provides the uniform two-operation contract over each
// source type: fetch raw records since a cursor, and normalize a raw record
// into a staged candidate. Adapters must be idempotent on re-fetch: the same
// upstream record, fetched twice, produces an identical candidate modulo
// fetched_at.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/normalize"
)

// RawRecord is one upstream record before normalization.
type RawRecord struct {
	ExternalID string
	SourceURL  string
	Payload    json.RawMessage
	FetchedAt  time.Time
}

// Adapter is the per-source contract the orchestrator drives.
type Adapter interface {
	// Source returns the catalog source this adapter feeds.
	Source() catalog.Source
	// Fetch returns records changed since the cursor, in upstream order.
	Fetch(ctx context.Context, since time.Time) ([]RawRecord, error)
	// Normalize converts one raw record into candidate insert params.
	Normalize(record RawRecord) (catalog.CandidateInsertParams, error)
}

// Registry holds the active adapters keyed by source id.
type Registry struct {
	adapters map[int64]Adapter
	order    []int64
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[int64]Adapter)}
}

// Register adds an adapter; a second registration for the same source id
// replaces the first.
func (r *Registry) Register(adapter Adapter) {
	id := adapter.Source().ID
	if _, exists := r.adapters[id]; !exists {
		r.order = append(r.order, id)
	}
	r.adapters[id] = adapter
}

// Get returns the adapter for a source id.
func (r *Registry) Get(sourceID int64) (Adapter, bool) {
	adapter, ok := r.adapters[sourceID]
	return adapter, ok
}

// All returns the registered adapters in registration order.
func (r *Registry) All() []Adapter {
	result := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.adapters[id])
	}
	return result
}

// eventPayload is the common intermediate every adapter parses its raw
// payload into before shared normalization.
type eventPayload struct {
	Name        string   `json:"name"`
	EventType   string   `json:"event_type"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	City        string   `json:"city"`
	Venue       string   `json:"venue"`
	Organizer   string   `json:"organizer"`
	Description string   `json:"description"`
	Website     string   `json:"official_website"`
	TicketURL   string   `json:"ticket_url"`
	Genres      []string `json:"genres"`
	Artists     []string `json:"artists"`
}

// Normalizer turns parsed payloads into candidate insert params using the
// canonical city table. It is shared by all adapters so normalization is one
// code path regardless of source type.
type Normalizer struct {
	cities *normalize.CityMatcher
}

func NewNormalizer(cities *normalize.CityMatcher) *Normalizer {
	return &Normalizer{cities: cities}
}

func (n *Normalizer) candidate(source catalog.Source, record RawRecord, payload eventPayload) (catalog.CandidateInsertParams, error) {
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return catalog.CandidateInsertParams{}, fmt.Errorf("record %s: missing name", record.ExternalID)
	}
	if len(name) > 300 {
		return catalog.CandidateInsertParams{}, fmt.Errorf("record %s: name exceeds 300 characters", record.ExternalID)
	}

	eventType := strings.ToLower(strings.TrimSpace(payload.EventType))
	if eventType == "" {
		eventType = string(catalog.TypeConcert)
	}
	if !catalog.ValidEventType(eventType) {
		return catalog.CandidateInsertParams{}, fmt.Errorf("record %s: invalid event_type %q", record.ExternalID, payload.EventType)
	}

	startDate, err := normalize.ParseDate(payload.StartDate)
	if err != nil {
		return catalog.CandidateInsertParams{}, fmt.Errorf("record %s: %w", record.ExternalID, err)
	}
	endDate, err := normalize.ParseOptionalDate(payload.EndDate)
	if err != nil {
		return catalog.CandidateInsertParams{}, fmt.Errorf("record %s: %w", record.ExternalID, err)
	}
	if endDate != nil && endDate.Before(startDate) {
		return catalog.CandidateInsertParams{}, fmt.Errorf("record %s: end date before start date", record.ExternalID)
	}

	params := catalog.CandidateInsertParams{
		SourceID:        source.ID,
		ExternalID:      record.ExternalID,
		SourceURL:       record.SourceURL,
		RawName:         name,
		RawPayload:      record.Payload,
		Name:            normalize.Text(name),
		Type:            catalog.EventType(eventType),
		StartDate:       startDate,
		EndDate:         endDate,
		CityName:        strings.TrimSpace(payload.City),
		VenueName:       strings.TrimSpace(payload.Venue),
		OrganizerName:   strings.TrimSpace(payload.Organizer),
		Description:     strings.TrimSpace(payload.Description),
		OfficialWebsite: strings.TrimSpace(payload.Website),
		TicketURL:       strings.TrimSpace(payload.TicketURL),
		Genres:          cleanList(payload.Genres),
		Artists:         cleanList(payload.Artists),
		IngestedAt:      record.FetchedAt,
	}

	// A city outside the Levenshtein ceiling stays null; the candidate is
	// retained and surfaced for editorial attention downstream.
	if params.CityName != "" {
		if city := n.cities.Match(params.CityName); city != nil {
			params.CityID = &city.ID
		}
	}
	return params, nil
}

func cleanList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		set[trimmed] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	result := make([]string, 0, len(set))
	for value := range set {
		result = append(result, value)
	}
	sort.Strings(result)
	return result
}
