// Package catalog defines the canonical event catalog entities shared by the
// ingestion pipeline, the editorial command handler, and the search projection.
package catalog

import (
	"encoding/json"
	"time"
)

// EventType is the fixed set of event categories in the catalog.
type EventType string

const (
	TypeFestival   EventType = "festival"
	TypeConcert    EventType = "concert"
	TypeShowcase   EventType = "showcase"
	TypeRitual     EventType = "ritual"
	TypeConference EventType = "conference"
)

// ValidEventType reports whether value is a member of the event-type enum.
func ValidEventType(value string) bool {
	switch EventType(value) {
	case TypeFestival, TypeConcert, TypeShowcase, TypeRitual, TypeConference:
		return true
	default:
		return false
	}
}

// EventStatus is the event lifecycle state. Archived is terminal for
// visibility; events are never hard-deleted by the pipeline.
type EventStatus string

const (
	StatusAnnounced EventStatus = "announced"
	StatusConfirmed EventStatus = "confirmed"
	StatusCancelled EventStatus = "cancelled"
	StatusPostponed EventStatus = "postponed"
	StatusArchived  EventStatus = "archived"
)

// ValidEventStatus reports whether value is a member of the status enum.
func ValidEventStatus(value string) bool {
	switch EventStatus(value) {
	case StatusAnnounced, StatusConfirmed, StatusCancelled, StatusPostponed, StatusArchived:
		return true
	default:
		return false
	}
}

// Indexable reports whether an event in this status belongs in the search
// collection.
func (s EventStatus) Indexable() bool {
	return s == StatusAnnounced || s == StatusConfirmed
}

// Event is the canonical record the catalog is built around.
type Event struct {
	ID                   int64
	Slug                 string
	Name                 string
	Type                 EventType
	Description          string
	StartDate            time.Time
	EndDate              *time.Time
	CityID               int64
	RegionID             int64
	VenueID              *int64
	OrganizerID          *int64
	OfficialWebsite      string
	TicketURL            string
	Status               EventStatus
	IsVerified           bool
	IsPinned             bool
	CulturalSignificance int
	ConfidenceScore      float64
	CreatedAt            time.Time
	UpdatedAt            time.Time
	LastVerifiedAt       *time.Time
}

// City belongs to the fixed administrative hierarchy. NameVariants carries
// alternate spellings (French, transliterated Arabic) used by the fuzzy
// matcher.
type City struct {
	ID           int64
	RegionID     int64
	Name         string
	Slug         string
	NameVariants []string
	Latitude     *float64
	Longitude    *float64
}

// Region is the top level of the administrative hierarchy.
type Region struct {
	ID   int64
	Name string
	Slug string
}

// Venue accumulates as sources report it.
type Venue struct {
	ID        int64
	CityID    int64
	Name      string
	Slug      string
	Latitude  *float64
	Longitude *float64
}

type Organizer struct {
	ID   int64
	Name string
}

type Genre struct {
	ID   int64
	Name string
	Slug string
}

type Artist struct {
	ID   int64
	Name string
	Slug string
}

// SourceType categorizes producers of records. Reliability defaults follow
// the bucket for the type: official website 1.0, first-party API 0.8,
// scraped page 0.5, manual entry as supplied.
type SourceType string

const (
	SourceOfficial SourceType = "official_website"
	SourceAPI      SourceType = "api"
	SourceScraped  SourceType = "scraped"
	SourceManual   SourceType = "manual"
)

// DefaultReliability returns the reliability bucket for a source type.
func DefaultReliability(t SourceType) float64 {
	switch t {
	case SourceOfficial:
		return 1.0
	case SourceAPI:
		return 0.8
	case SourceScraped:
		return 0.5
	default:
		return 0.5
	}
}

// Source is a named producer of event records.
type Source struct {
	ID                 int64
	Name               string
	Type               SourceType
	Reliability        float64
	IsActive           bool
	LastFetchAt        *time.Time
	HistoricalAccuracy *float64
}

// EventSource is the provenance linkage between an event and a source.
// ReportedStartDate and ReportedVenue keep the per-source view of the two
// attributes the agreement score compares.
type EventSource struct {
	ID                int64
	EventID           int64
	SourceID          int64
	ExternalID        string
	SourceURL         string
	Payload           json.RawMessage
	ReportedStartDate *time.Time
	ReportedVenue     string
	FetchedAt         time.Time
}

// Candidate is a staged, normalized inbound record awaiting resolution.
type Candidate struct {
	ID              int64
	SourceID        int64
	ExternalID      string
	SourceURL       string
	RawName         string
	RawPayload      json.RawMessage
	Name            string // normalized
	Type            EventType
	StartDate       time.Time
	EndDate         *time.Time
	CityID          *int64
	CityName        string
	VenueName       string
	OrganizerName   string
	Description     string
	OfficialWebsite string
	TicketURL       string
	Genres          []string
	Artists         []string
	Processed       bool
	Outcome         string
	MatchedEventID  *int64
	MatchConfidence *float64
	IngestedAt      time.Time
	ProcessedAt     *time.Time
}

// Candidate outcomes recorded by the merge writer.
const (
	OutcomeCreated = "created"
	OutcomeMerged  = "merged"
	OutcomeReview  = "review"
	OutcomeSkipped = "skipped"
)

// FingerprintKind tags the four dedup lookup keys.
type FingerprintKind string

const (
	FingerprintExact        FingerprintKind = "exact"
	FingerprintFuzzyName    FingerprintKind = "fuzzy_name"
	FingerprintDateLocation FingerprintKind = "date_location"
	FingerprintWeekLocation FingerprintKind = "week_location"
)

// Fingerprint is a content-addressed dedup key owned by an event.
type Fingerprint struct {
	Kind    FingerprintKind
	Hash    string
	EventID int64
}

// EditorialAction is an append-only audit record of a human mutation.
type EditorialAction struct {
	ID        int64
	Action    string
	EventID   int64
	Actor     string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// IngestionRun is the persisted report of one orchestrator run.
type IngestionRun struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Report     json.RawMessage
}
