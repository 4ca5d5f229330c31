package catalog

import (
	"context"
	"encoding/json"
	"time"
)

// EventCreateParams carries the canonical attributes for a new event row.
type EventCreateParams struct {
	Slug            string
	Name            string
	Type            EventType
	Description     string
	StartDate       time.Time
	EndDate         *time.Time
	CityID          int64
	RegionID        int64
	VenueID         *int64
	OrganizerID     *int64
	OfficialWebsite string
	TicketURL       string
	Status          EventStatus
	ConfidenceScore float64
}

// EventUpdateParams updates only non-nil fields, matching the partial-update
// convention of the merge writer: an overwrite-on-merge touches the canonical
// attributes, editorial commands touch the trust attributes.
type EventUpdateParams struct {
	Name                 *string
	StartDate            *time.Time
	EndDate              **time.Time
	VenueID              **int64
	OrganizerID          **int64
	OfficialWebsite      *string
	TicketURL            *string
	Description          *string
	Status               *EventStatus
	IsVerified           *bool
	IsPinned             *bool
	CulturalSignificance *int
	ConfidenceScore      *float64
	LastVerifiedAt       *time.Time
}

// ProjectionRow is an event joined with the reference data the search
// document denormalizes.
type ProjectionRow struct {
	Event         Event
	CityName      string
	CitySlug      string
	RegionName    string
	RegionSlug    string
	VenueName     string
	VenueSlug     string
	OrganizerName string
	Latitude      *float64
	Longitude     *float64
	Genres        []Genre
	Artists       []Artist
}

type EventRepository interface {
	Create(ctx context.Context, params EventCreateParams) (*Event, error)
	GetByID(ctx context.Context, id int64) (*Event, error)
	// GetForUpdate locks the event row for the duration of the enclosing
	// transaction. Callers locking two events must lock the lower id first.
	GetForUpdate(ctx context.Context, id int64) (*Event, error)
	Update(ctx context.Context, id int64, params EventUpdateParams) error
	Delete(ctx context.Context, id int64) error
	SlugExists(ctx context.Context, slug string) (bool, error)
	// GetProjection loads the event with joined reference data, or
	// ErrNotFound.
	GetProjection(ctx context.Context, id int64) (*ProjectionRow, error)
	// ListIndexable pages through events with an indexable status, joined
	// for projection, ordered by id. Pass afterID 0 to start.
	ListIndexable(ctx context.Context, afterID int64, limit int) ([]ProjectionRow, error)
	CountIndexable(ctx context.Context) (int, error)
	// ListUnverifiedSince returns ids of events whose last_verified_at is
	// null or older than cutoff, for the confidence refresh job.
	ListUnverifiedSince(ctx context.Context, cutoff time.Time) ([]int64, error)
	// ListEnded returns ids of non-archived events whose end date (start
	// date when no end is set) is before cutoff.
	ListEnded(ctx context.Context, cutoff time.Time) ([]int64, error)
	ListIDsByCity(ctx context.Context, cityID int64) ([]int64, error)
}

// CandidateInsertParams stages a normalized inbound record.
type CandidateInsertParams struct {
	SourceID        int64
	ExternalID      string
	SourceURL       string
	RawName         string
	RawPayload      json.RawMessage
	Name            string
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
	IngestedAt      time.Time
}

type CandidateRepository interface {
	// Insert always appends, even on duplicate external_id; dedup happens
	// in the resolver.
	Insert(ctx context.Context, params CandidateInsertParams) (*Candidate, error)
	GetByID(ctx context.Context, id int64) (*Candidate, error)
	MarkProcessed(ctx context.Context, id int64, outcome string, matchedEventID *int64, matchConfidence *float64) error
	ListUnprocessed(ctx context.Context, limit int) ([]Candidate, error)
	ListReviewPending(ctx context.Context, limit int) ([]Candidate, error)
	DeleteUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type FingerprintRepository interface {
	// FindEventIDs returns the event ids owning a fingerprint, ordered by
	// event id for deterministic iteration.
	FindEventIDs(ctx context.Context, kind FingerprintKind, hash string) ([]int64, error)
	// ReplaceForEvent atomically swaps the event's fingerprint set.
	ReplaceForEvent(ctx context.Context, eventID int64, fingerprints []Fingerprint) error
	DeleteForEvent(ctx context.Context, eventID int64) error
}

// EventSourceCreateParams records one provenance linkage.
type EventSourceCreateParams struct {
	EventID           int64
	SourceID          int64
	ExternalID        string
	SourceURL         string
	Payload           json.RawMessage
	ReportedStartDate *time.Time
	ReportedVenue     string
	FetchedAt         time.Time
}

// LinkedSource is an EventSource joined with its source's trust attributes.
type LinkedSource struct {
	EventSource
	SourceName         string
	SourceType         SourceType
	Reliability        float64
	HistoricalAccuracy *float64
}

type SourceRepository interface {
	ListActive(ctx context.Context) ([]Source, error)
	GetByID(ctx context.Context, id int64) (*Source, error)
	GetOrCreate(ctx context.Context, name string, sourceType SourceType, reliability float64) (*Source, error)
	UpdateLastFetch(ctx context.Context, id int64, fetchedAt time.Time) error
	CreateEventSource(ctx context.Context, params EventSourceCreateParams) error
	ListByEvent(ctx context.Context, eventID int64) ([]LinkedSource, error)
	// Relink moves every EventSource row from one event to another. Used by
	// the editorial merge.
	Relink(ctx context.Context, fromEventID, toEventID int64) error
}

type ReferenceRepository interface {
	ListCities(ctx context.Context) ([]City, error)
	GetCity(ctx context.Context, id int64) (*City, error)
	GetRegion(ctx context.Context, id int64) (*Region, error)
	GetVenue(ctx context.Context, id int64) (*Venue, error)
	GetOrCreateVenue(ctx context.Context, cityID int64, name string) (*Venue, error)
	GetOrCreateOrganizer(ctx context.Context, name string) (*Organizer, error)
	GetOrCreateGenre(ctx context.Context, name string) (*Genre, error)
	GetOrCreateArtist(ctx context.Context, name string) (*Artist, error)
	LinkEventGenre(ctx context.Context, eventID, genreID int64) error
	LinkEventArtist(ctx context.Context, eventID, artistID int64) error
	// MoveEventArtists re-links the loser's artists to the keeper, skipping
	// ones the keeper already has.
	MoveEventArtists(ctx context.Context, fromEventID, toEventID int64) error
	DeleteEventLinks(ctx context.Context, eventID int64) error
}

// EditorialActionParams is one append-only audit row.
type EditorialActionParams struct {
	Action  string
	EventID int64
	Actor   string
	Payload json.RawMessage
}

type EditorialRepository interface {
	InsertAction(ctx context.Context, params EditorialActionParams) error
	// SnapshotEvent writes the full event payload to the immutable
	// event_snapshots log before a merge removes it.
	SnapshotEvent(ctx context.Context, eventID int64, reason string, payload json.RawMessage) error
	ListActions(ctx context.Context, eventID int64, limit int) ([]EditorialAction, error)
}

type RunRepository interface {
	InsertRun(ctx context.Context, startedAt, finishedAt time.Time, report json.RawMessage) (int64, error)
}

// Store aggregates the repositories behind the authoritative store. WithTx
// runs fn against a transactional view; every candidate's
// resolve+apply+fingerprint+confidence cycle runs inside one transaction.
type Store interface {
	Events() EventRepository
	Candidates() CandidateRepository
	Fingerprints() FingerprintRepository
	Sources() SourceRepository
	Reference() ReferenceRepository
	Editorial() EditorialRepository
	Runs() RunRepository
	WithTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
