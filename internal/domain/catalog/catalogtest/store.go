// Package catalogtest provides an in-memory catalog.Store for unit tests.
// Transactions are flattened: WithTx runs fn directly against the same state,
// so tests exercise the logic that runs inside transactions without a
// database.
package catalogtest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

type Snapshot struct {
	EventID int64
	Reason  string
	Payload json.RawMessage
}

type RunRecord struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Report     json.RawMessage
}

// Store is an in-memory catalog.Store.
type Store struct {
	mu     sync.Mutex
	nextID int64
	clock  time.Time

	EventRows       map[int64]*catalog.Event
	CandidateRows   map[int64]*catalog.Candidate
	FingerprintRows []catalog.Fingerprint
	SourceRows      map[int64]*catalog.Source
	EventSources    []catalog.EventSource
	CityRows        map[int64]*catalog.City
	RegionRows      map[int64]*catalog.Region
	VenueRows       map[int64]*catalog.Venue
	OrganizerRows   map[int64]*catalog.Organizer
	GenreRows       map[int64]*catalog.Genre
	ArtistRows      map[int64]*catalog.Artist
	EventGenres     map[int64][]int64
	EventArtists    map[int64][]int64
	Actions         []catalog.EditorialAction
	Snapshots       []Snapshot
	RunRows         []RunRecord
}

var _ catalog.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		clock:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EventRows:     make(map[int64]*catalog.Event),
		CandidateRows: make(map[int64]*catalog.Candidate),
		SourceRows:    make(map[int64]*catalog.Source),
		CityRows:      make(map[int64]*catalog.City),
		RegionRows:    make(map[int64]*catalog.Region),
		VenueRows:     make(map[int64]*catalog.Venue),
		OrganizerRows: make(map[int64]*catalog.Organizer),
		GenreRows:     make(map[int64]*catalog.Genre),
		ArtistRows:    make(map[int64]*catalog.Artist),
		EventGenres:   make(map[int64][]int64),
		EventArtists:  make(map[int64][]int64),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// tick advances the fake clock so created_at ordering is deterministic.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// AddRegion seeds a region.
func (s *Store) AddRegion(name string) *catalog.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	region := &catalog.Region{ID: s.id(), Name: name, Slug: slugify(name)}
	s.RegionRows[region.ID] = region
	return region
}

// AddCity seeds a city under a region.
func (s *Store) AddCity(regionID int64, name string, variants ...string) *catalog.City {
	s.mu.Lock()
	defer s.mu.Unlock()
	city := &catalog.City{ID: s.id(), RegionID: regionID, Name: name, Slug: slugify(name), NameVariants: variants}
	s.CityRows[city.ID] = city
	return city
}

// AddSource seeds a source.
func (s *Store) AddSource(name string, sourceType catalog.SourceType, reliability float64) *catalog.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	source := &catalog.Source{ID: s.id(), Name: name, Type: sourceType, Reliability: reliability, IsActive: true}
	s.SourceRows[source.ID] = source
	return source
}

// AddEvent seeds an event row directly, filling created/updated stamps.
func (s *Store) AddEvent(event catalog.Event) *catalog.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == 0 {
		event.ID = s.id()
	} else if event.ID > s.nextID {
		s.nextID = event.ID
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.tick()
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	if event.Status == "" {
		event.Status = catalog.StatusAnnounced
	}
	stored := event
	s.EventRows[stored.ID] = &stored
	return &stored
}

func (s *Store) Events() catalog.EventRepository         { return &eventRepo{s} }
func (s *Store) Candidates() catalog.CandidateRepository { return &candidateRepo{s} }
func (s *Store) Fingerprints() catalog.FingerprintRepository {
	return &fingerprintRepo{s}
}
func (s *Store) Sources() catalog.SourceRepository       { return &sourceRepo{s} }
func (s *Store) Reference() catalog.ReferenceRepository  { return &referenceRepo{s} }
func (s *Store) Editorial() catalog.EditorialRepository  { return &editorialRepo{s} }
func (s *Store) Runs() catalog.RunRepository             { return &runRepo{s} }

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, catalog.Store) error) error {
	return fn(ctx, s)
}

type eventRepo struct{ s *Store }

func (r *eventRepo) Create(_ context.Context, params catalog.EventCreateParams) (*catalog.Event, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	event := &catalog.Event{
		ID:              s.id(),
		Slug:            params.Slug,
		Name:            params.Name,
		Type:            params.Type,
		Description:     params.Description,
		StartDate:       params.StartDate,
		EndDate:         params.EndDate,
		CityID:          params.CityID,
		RegionID:        params.RegionID,
		VenueID:         params.VenueID,
		OrganizerID:     params.OrganizerID,
		OfficialWebsite: params.OfficialWebsite,
		TicketURL:       params.TicketURL,
		Status:          params.Status,
		ConfidenceScore: params.ConfidenceScore,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.EventRows[event.ID] = event
	copied := *event
	return &copied, nil
}

func (r *eventRepo) GetByID(_ context.Context, id int64) (*catalog.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	event, ok := r.s.EventRows[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	copied := *event
	return &copied, nil
}

func (r *eventRepo) GetForUpdate(ctx context.Context, id int64) (*catalog.Event, error) {
	return r.GetByID(ctx, id)
}

func (r *eventRepo) Update(_ context.Context, id int64, params catalog.EventUpdateParams) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.EventRows[id]
	if !ok {
		return catalog.ErrNotFound
	}
	if params.Name != nil {
		event.Name = *params.Name
	}
	if params.StartDate != nil {
		event.StartDate = *params.StartDate
	}
	if params.EndDate != nil {
		event.EndDate = *params.EndDate
	}
	if params.VenueID != nil {
		event.VenueID = *params.VenueID
	}
	if params.OrganizerID != nil {
		event.OrganizerID = *params.OrganizerID
	}
	if params.OfficialWebsite != nil {
		event.OfficialWebsite = *params.OfficialWebsite
	}
	if params.TicketURL != nil {
		event.TicketURL = *params.TicketURL
	}
	if params.Description != nil {
		event.Description = *params.Description
	}
	if params.Status != nil {
		event.Status = *params.Status
	}
	if params.IsVerified != nil {
		event.IsVerified = *params.IsVerified
	}
	if params.IsPinned != nil {
		event.IsPinned = *params.IsPinned
	}
	if params.CulturalSignificance != nil {
		event.CulturalSignificance = *params.CulturalSignificance
	}
	if params.ConfidenceScore != nil {
		event.ConfidenceScore = *params.ConfidenceScore
	}
	if params.LastVerifiedAt != nil {
		stamp := *params.LastVerifiedAt
		event.LastVerifiedAt = &stamp
	}
	event.UpdatedAt = s.tick()
	return nil
}

func (r *eventRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.EventRows[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(r.s.EventRows, id)
	return nil
}

func (r *eventRepo) SlugExists(_ context.Context, slug string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, event := range r.s.EventRows {
		if event.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *eventRepo) GetProjection(ctx context.Context, id int64) (*catalog.ProjectionRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.projectionLocked(id)
}

func (r *eventRepo) projectionLocked(id int64) (*catalog.ProjectionRow, error) {
	s := r.s
	event, ok := s.EventRows[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	row := catalog.ProjectionRow{Event: *event}
	if city, ok := s.CityRows[event.CityID]; ok {
		row.CityName = city.Name
		row.CitySlug = city.Slug
		row.Latitude = city.Latitude
		row.Longitude = city.Longitude
	}
	if region, ok := s.RegionRows[event.RegionID]; ok {
		row.RegionName = region.Name
		row.RegionSlug = region.Slug
	}
	if event.VenueID != nil {
		if venue, ok := s.VenueRows[*event.VenueID]; ok {
			row.VenueName = venue.Name
			row.VenueSlug = venue.Slug
			if venue.Latitude != nil {
				row.Latitude = venue.Latitude
				row.Longitude = venue.Longitude
			}
		}
	}
	if event.OrganizerID != nil {
		if organizer, ok := s.OrganizerRows[*event.OrganizerID]; ok {
			row.OrganizerName = organizer.Name
		}
	}
	for _, genreID := range s.EventGenres[id] {
		if genre, ok := s.GenreRows[genreID]; ok {
			row.Genres = append(row.Genres, *genre)
		}
	}
	for _, artistID := range s.EventArtists[id] {
		if artist, ok := s.ArtistRows[artistID]; ok {
			row.Artists = append(row.Artists, *artist)
		}
	}
	return &row, nil
}

func (r *eventRepo) ListIndexable(_ context.Context, afterID int64, limit int) ([]catalog.ProjectionRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]int64, 0, len(r.s.EventRows))
	for id, event := range r.s.EventRows {
		if id > afterID && event.Status.Indexable() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	rows := make([]catalog.ProjectionRow, 0, len(ids))
	for _, id := range ids {
		row, err := r.projectionLocked(id)
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

func (r *eventRepo) CountIndexable(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, event := range r.s.EventRows {
		if event.Status.Indexable() {
			count++
		}
	}
	return count, nil
}

func (r *eventRepo) ListUnverifiedSince(_ context.Context, cutoff time.Time) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id, event := range r.s.EventRows {
		if event.Status == catalog.StatusArchived {
			continue
		}
		if event.LastVerifiedAt == nil || event.LastVerifiedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *eventRepo) ListEnded(_ context.Context, cutoff time.Time) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id, event := range r.s.EventRows {
		if event.Status == catalog.StatusArchived {
			continue
		}
		end := event.StartDate
		if event.EndDate != nil {
			end = *event.EndDate
		}
		if end.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *eventRepo) ListIDsByCity(_ context.Context, cityID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id, event := range r.s.EventRows {
		if event.CityID == cityID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type candidateRepo struct{ s *Store }

func (r *candidateRepo) Insert(_ context.Context, params catalog.CandidateInsertParams) (*catalog.Candidate, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := &catalog.Candidate{
		ID:              s.id(),
		SourceID:        params.SourceID,
		ExternalID:      params.ExternalID,
		SourceURL:       params.SourceURL,
		RawName:         params.RawName,
		RawPayload:      params.RawPayload,
		Name:            params.Name,
		Type:            params.Type,
		StartDate:       params.StartDate,
		EndDate:         params.EndDate,
		CityID:          params.CityID,
		CityName:        params.CityName,
		VenueName:       params.VenueName,
		OrganizerName:   params.OrganizerName,
		Description:     params.Description,
		OfficialWebsite: params.OfficialWebsite,
		TicketURL:       params.TicketURL,
		Genres:          params.Genres,
		Artists:         params.Artists,
		IngestedAt:      params.IngestedAt,
	}
	s.CandidateRows[candidate.ID] = candidate
	copied := *candidate
	return &copied, nil
}

func (r *candidateRepo) GetByID(_ context.Context, id int64) (*catalog.Candidate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	candidate, ok := r.s.CandidateRows[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	copied := *candidate
	return &copied, nil
}

func (r *candidateRepo) MarkProcessed(_ context.Context, id int64, outcome string, matchedEventID *int64, matchConfidence *float64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate, ok := s.CandidateRows[id]
	if !ok {
		return catalog.ErrNotFound
	}
	candidate.Processed = true
	candidate.Outcome = outcome
	candidate.MatchedEventID = matchedEventID
	candidate.MatchConfidence = matchConfidence
	stamp := s.tick()
	candidate.ProcessedAt = &stamp
	return nil
}

func (r *candidateRepo) ListUnprocessed(_ context.Context, limit int) ([]catalog.Candidate, error) {
	return r.list(func(c *catalog.Candidate) bool { return !c.Processed }, limit), nil
}

func (r *candidateRepo) ListReviewPending(_ context.Context, limit int) ([]catalog.Candidate, error) {
	return r.list(func(c *catalog.Candidate) bool {
		return c.Processed && c.Outcome == catalog.OutcomeReview
	}, limit), nil
}

func (r *candidateRepo) list(keep func(*catalog.Candidate) bool, limit int) []catalog.Candidate {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []catalog.Candidate
	ids := make([]int64, 0, len(r.s.CandidateRows))
	for id := range r.s.CandidateRows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		candidate := r.s.CandidateRows[id]
		if keep(candidate) {
			result = append(result, *candidate)
			if len(result) == limit {
				break
			}
		}
	}
	return result
}

func (r *candidateRepo) DeleteUnprocessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted int64
	for id, candidate := range r.s.CandidateRows {
		if !candidate.Processed && candidate.IngestedAt.Before(cutoff) {
			delete(r.s.CandidateRows, id)
			deleted++
		}
	}
	return deleted, nil
}

type fingerprintRepo struct{ s *Store }

func (r *fingerprintRepo) FindEventIDs(_ context.Context, kind catalog.FingerprintKind, hash string) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for _, fp := range r.s.FingerprintRows {
		if fp.Kind == kind && fp.Hash == hash {
			ids = append(ids, fp.EventID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *fingerprintRepo) ReplaceForEvent(_ context.Context, eventID int64, fingerprints []catalog.Fingerprint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.deleteLocked(eventID)
	for _, fp := range fingerprints {
		fp.EventID = eventID
		r.s.FingerprintRows = append(r.s.FingerprintRows, fp)
	}
	return nil
}

func (r *fingerprintRepo) DeleteForEvent(_ context.Context, eventID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.deleteLocked(eventID)
	return nil
}

func (r *fingerprintRepo) deleteLocked(eventID int64) {
	kept := r.s.FingerprintRows[:0]
	for _, fp := range r.s.FingerprintRows {
		if fp.EventID != eventID {
			kept = append(kept, fp)
		}
	}
	r.s.FingerprintRows = kept
}

type sourceRepo struct{ s *Store }

func (r *sourceRepo) ListActive(_ context.Context) ([]catalog.Source, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]int64, 0, len(r.s.SourceRows))
	for id, source := range r.s.SourceRows {
		if source.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	result := make([]catalog.Source, 0, len(ids))
	for _, id := range ids {
		result = append(result, *r.s.SourceRows[id])
	}
	return result, nil
}

func (r *sourceRepo) GetByID(_ context.Context, id int64) (*catalog.Source, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	source, ok := r.s.SourceRows[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	copied := *source
	return &copied, nil
}

func (r *sourceRepo) GetOrCreate(_ context.Context, name string, sourceType catalog.SourceType, reliability float64) (*catalog.Source, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, source := range r.s.SourceRows {
		if source.Name == name {
			copied := *source
			return &copied, nil
		}
	}
	source := &catalog.Source{ID: r.s.id(), Name: name, Type: sourceType, Reliability: reliability, IsActive: true}
	r.s.SourceRows[source.ID] = source
	copied := *source
	return &copied, nil
}

func (r *sourceRepo) UpdateLastFetch(_ context.Context, id int64, fetchedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	source, ok := r.s.SourceRows[id]
	if !ok {
		return catalog.ErrNotFound
	}
	stamp := fetchedAt
	source.LastFetchAt = &stamp
	return nil
}

func (r *sourceRepo) CreateEventSource(_ context.Context, params catalog.EventSourceCreateParams) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.EventSources = append(r.s.EventSources, catalog.EventSource{
		ID:                r.s.id(),
		EventID:           params.EventID,
		SourceID:          params.SourceID,
		ExternalID:        params.ExternalID,
		SourceURL:         params.SourceURL,
		Payload:           params.Payload,
		ReportedStartDate: params.ReportedStartDate,
		ReportedVenue:     params.ReportedVenue,
		FetchedAt:         params.FetchedAt,
	})
	return nil
}

func (r *sourceRepo) ListByEvent(_ context.Context, eventID int64) ([]catalog.LinkedSource, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []catalog.LinkedSource
	for _, es := range r.s.EventSources {
		if es.EventID != eventID {
			continue
		}
		linked := catalog.LinkedSource{EventSource: es}
		if source, ok := r.s.SourceRows[es.SourceID]; ok {
			linked.SourceName = source.Name
			linked.SourceType = source.Type
			linked.Reliability = source.Reliability
			linked.HistoricalAccuracy = source.HistoricalAccuracy
		}
		result = append(result, linked)
	}
	return result, nil
}

func (r *sourceRepo) Relink(_ context.Context, fromEventID, toEventID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	exists := func(sourceID int64, externalID string) bool {
		for _, es := range r.s.EventSources {
			if es.EventID == toEventID && es.SourceID == sourceID && es.ExternalID == externalID {
				return true
			}
		}
		return false
	}
	kept := r.s.EventSources[:0]
	for _, es := range r.s.EventSources {
		if es.EventID == fromEventID {
			if exists(es.SourceID, es.ExternalID) {
				continue
			}
			es.EventID = toEventID
		}
		kept = append(kept, es)
	}
	r.s.EventSources = kept
	return nil
}

type referenceRepo struct{ s *Store }

func (r *referenceRepo) ListCities(_ context.Context) ([]catalog.City, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]int64, 0, len(r.s.CityRows))
	for id := range r.s.CityRows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	result := make([]catalog.City, 0, len(ids))
	for _, id := range ids {
		result = append(result, *r.s.CityRows[id])
	}
	return result, nil
}

func (r *referenceRepo) GetCity(_ context.Context, id int64) (*catalog.City, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	city, ok := r.s.CityRows[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	copied := *city
	return &copied, nil
}

func (r *referenceRepo) GetRegion(_ context.Context, id int64) (*catalog.Region, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	region, ok := r.s.RegionRows[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	copied := *region
	return &copied, nil
}

func (r *referenceRepo) GetVenue(_ context.Context, id int64) (*catalog.Venue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	venue, ok := r.s.VenueRows[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	copied := *venue
	return &copied, nil
}

func (r *referenceRepo) GetOrCreateVenue(_ context.Context, cityID int64, name string) (*catalog.Venue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slug := slugify(name)
	for _, venue := range r.s.VenueRows {
		if venue.CityID == cityID && venue.Slug == slug {
			copied := *venue
			return &copied, nil
		}
	}
	venue := &catalog.Venue{ID: r.s.id(), CityID: cityID, Name: name, Slug: slug}
	r.s.VenueRows[venue.ID] = venue
	copied := *venue
	return &copied, nil
}

func (r *referenceRepo) GetOrCreateOrganizer(_ context.Context, name string) (*catalog.Organizer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, organizer := range r.s.OrganizerRows {
		if organizer.Name == name {
			copied := *organizer
			return &copied, nil
		}
	}
	organizer := &catalog.Organizer{ID: r.s.id(), Name: name}
	r.s.OrganizerRows[organizer.ID] = organizer
	copied := *organizer
	return &copied, nil
}

func (r *referenceRepo) GetOrCreateGenre(_ context.Context, name string) (*catalog.Genre, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slug := slugify(name)
	for _, genre := range r.s.GenreRows {
		if genre.Slug == slug {
			copied := *genre
			return &copied, nil
		}
	}
	genre := &catalog.Genre{ID: r.s.id(), Name: name, Slug: slug}
	r.s.GenreRows[genre.ID] = genre
	copied := *genre
	return &copied, nil
}

func (r *referenceRepo) GetOrCreateArtist(_ context.Context, name string) (*catalog.Artist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slug := slugify(name)
	for _, artist := range r.s.ArtistRows {
		if artist.Slug == slug {
			copied := *artist
			return &copied, nil
		}
	}
	artist := &catalog.Artist{ID: r.s.id(), Name: name, Slug: slug}
	r.s.ArtistRows[artist.ID] = artist
	copied := *artist
	return &copied, nil
}

func (r *referenceRepo) LinkEventGenre(_ context.Context, eventID, genreID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.EventGenres[eventID] = appendUnique(r.s.EventGenres[eventID], genreID)
	return nil
}

func (r *referenceRepo) LinkEventArtist(_ context.Context, eventID, artistID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.EventArtists[eventID] = appendUnique(r.s.EventArtists[eventID], artistID)
	return nil
}

func (r *referenceRepo) MoveEventArtists(_ context.Context, fromEventID, toEventID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, artistID := range r.s.EventArtists[fromEventID] {
		r.s.EventArtists[toEventID] = appendUnique(r.s.EventArtists[toEventID], artistID)
	}
	delete(r.s.EventArtists, fromEventID)
	return nil
}

func (r *referenceRepo) DeleteEventLinks(_ context.Context, eventID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.EventGenres, eventID)
	delete(r.s.EventArtists, eventID)
	return nil
}

type editorialRepo struct{ s *Store }

func (r *editorialRepo) InsertAction(_ context.Context, params catalog.EditorialActionParams) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.Actions = append(r.s.Actions, catalog.EditorialAction{
		ID:        r.s.id(),
		Action:    params.Action,
		EventID:   params.EventID,
		Actor:     params.Actor,
		Payload:   params.Payload,
		CreatedAt: r.s.tick(),
	})
	return nil
}

func (r *editorialRepo) SnapshotEvent(_ context.Context, eventID int64, reason string, payload json.RawMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.Snapshots = append(r.s.Snapshots, Snapshot{EventID: eventID, Reason: reason, Payload: payload})
	return nil
}

func (r *editorialRepo) ListActions(_ context.Context, eventID int64, limit int) ([]catalog.EditorialAction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []catalog.EditorialAction
	for i := len(r.s.Actions) - 1; i >= 0 && len(result) < limit; i-- {
		if r.s.Actions[i].EventID == eventID {
			result = append(result, r.s.Actions[i])
		}
	}
	return result, nil
}

type runRepo struct{ s *Store }

func (r *runRepo) InsertRun(_ context.Context, startedAt, finishedAt time.Time, report json.RawMessage) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.RunRows = append(r.s.RunRows, RunRecord{StartedAt: startedAt, FinishedAt: finishedAt, Report: report})
	return int64(len(r.s.RunRows)), nil
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}
