// Package ingest applies resolver decisions to the authoritative store. Each
// candidate is committed in a single transaction covering the event mutation,
// provenance linkage, fingerprint swap, and confidence rescore; the search
// projection is updated in a post-commit hook.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/domain/confidence"
	"github.com/mawsim/catalog/internal/domain/dedup"
	"github.com/mawsim/catalog/internal/fingerprint"
	"github.com/mawsim/catalog/internal/normalize"
)

// Projector is the post-commit search hook. Implemented by the search
// synchronizer; failures are reported, never rolled into the transaction.
type Projector interface {
	UpsertEvent(ctx context.Context, eventID int64) error
	DeleteEvent(ctx context.Context, eventID int64) error
}

// RetryEnqueuer re-queues a failed projection update. Implemented on top of
// the job queue.
type RetryEnqueuer interface {
	EnqueueProjectionRetry(ctx context.Context, eventID int64) error
}

// Result reports what the writer did with one candidate.
type Result struct {
	Outcome string
	EventID *int64
}

type Writer struct {
	store     catalog.Store
	scorer    *confidence.Scorer
	projector Projector
	retries   RetryEnqueuer
	logger    zerolog.Logger
	now       func() time.Time
}

func NewWriter(store catalog.Store, scorer *confidence.Scorer, projector Projector, retries RetryEnqueuer, logger zerolog.Logger) *Writer {
	return &Writer{
		store:     store,
		scorer:    scorer,
		projector: projector,
		retries:   retries,
		logger:    logger.With().Str("component", "merge_writer").Logger(),
		now:       time.Now,
	}
}

// Apply commits one resolver decision. On create or merge the affected event
// is projected to the search collection after the transaction commits.
func (w *Writer) Apply(ctx context.Context, candidate *catalog.Candidate, decision dedup.Result) (Result, error) {
	var result Result
	err := w.store.WithTx(ctx, func(ctx context.Context, store catalog.Store) error {
		var err error
		switch decision.Action {
		case dedup.ActionCreate:
			result, err = w.applyCreate(ctx, store, candidate, decision)
		case dedup.ActionMerge:
			result, err = w.applyMerge(ctx, store, candidate, decision)
		case dedup.ActionReview:
			result, err = w.applyReview(ctx, store, candidate, decision)
		default:
			err = fmt.Errorf("unknown resolver action %q", decision.Action)
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if result.EventID != nil && (result.Outcome == catalog.OutcomeCreated || result.Outcome == catalog.OutcomeMerged) {
		w.project(ctx, *result.EventID)
	}
	return result, nil
}

func (w *Writer) applyCreate(ctx context.Context, store catalog.Store, candidate *catalog.Candidate, decision dedup.Result) (Result, error) {
	// An event requires a city; a candidate whose city never matched stays
	// in the queue for editorial attention instead of becoming a row with a
	// dangling reference.
	if candidate.CityID == nil {
		if err := store.Candidates().MarkProcessed(ctx, candidate.ID, catalog.OutcomeReview, nil, &decision.Confidence); err != nil {
			return Result{}, fmt.Errorf("mark unknown-city candidate: %w", err)
		}
		return Result{Outcome: catalog.OutcomeReview}, nil
	}

	city, err := store.Reference().GetCity(ctx, *candidate.CityID)
	if err != nil {
		return Result{}, fmt.Errorf("load city %d: %w", *candidate.CityID, err)
	}

	params := catalog.EventCreateParams{
		Name:            candidate.RawName,
		Type:            candidate.Type,
		Description:     candidate.Description,
		StartDate:       candidate.StartDate,
		EndDate:         candidate.EndDate,
		CityID:          city.ID,
		RegionID:        city.RegionID,
		OfficialWebsite: candidate.OfficialWebsite,
		TicketURL:       candidate.TicketURL,
		Status:          catalog.StatusAnnounced,
	}

	if candidate.VenueName != "" {
		venue, err := store.Reference().GetOrCreateVenue(ctx, city.ID, candidate.VenueName)
		if err != nil {
			return Result{}, fmt.Errorf("upsert venue: %w", err)
		}
		params.VenueID = &venue.ID
	}
	if candidate.OrganizerName != "" {
		organizer, err := store.Reference().GetOrCreateOrganizer(ctx, candidate.OrganizerName)
		if err != nil {
			return Result{}, fmt.Errorf("upsert organizer: %w", err)
		}
		params.OrganizerID = &organizer.ID
	}

	params.Slug, err = w.uniqueSlug(ctx, store, candidate.RawName, candidate.StartDate)
	if err != nil {
		return Result{}, err
	}

	event, err := store.Events().Create(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("create event: %w", err)
	}

	if err := w.linkTaxonomy(ctx, store, event.ID, candidate); err != nil {
		return Result{}, err
	}
	if err := w.recordProvenance(ctx, store, event.ID, candidate); err != nil {
		return Result{}, err
	}
	if err := store.Fingerprints().ReplaceForEvent(ctx, event.ID, fingerprint.ForEvent(event)); err != nil {
		return Result{}, fmt.Errorf("write fingerprints: %w", err)
	}
	if err := w.scorer.Rescore(ctx, store, event.ID); err != nil {
		return Result{}, err
	}
	if err := store.Candidates().MarkProcessed(ctx, candidate.ID, catalog.OutcomeCreated, &event.ID, &decision.Confidence); err != nil {
		return Result{}, fmt.Errorf("mark candidate: %w", err)
	}
	return Result{Outcome: catalog.OutcomeCreated, EventID: &event.ID}, nil
}

func (w *Writer) applyMerge(ctx context.Context, store catalog.Store, candidate *catalog.Candidate, decision dedup.Result) (Result, error) {
	if decision.ExistingEventID == nil {
		return Result{}, fmt.Errorf("merge decision without event id")
	}
	eventID := *decision.ExistingEventID

	event, err := store.Events().GetForUpdate(ctx, eventID)
	if err != nil {
		return Result{}, fmt.Errorf("lock event %d: %w", eventID, err)
	}

	// Best reliability before this candidate's source joins; the overwrite
	// rule compares against the event's prior provenance.
	linked, err := store.Sources().ListByEvent(ctx, eventID)
	if err != nil {
		return Result{}, fmt.Errorf("load sources: %w", err)
	}
	bestReliability := 0.0
	for _, src := range linked {
		if src.Reliability > bestReliability {
			bestReliability = src.Reliability
		}
	}

	source, err := store.Sources().GetByID(ctx, candidate.SourceID)
	if err != nil {
		return Result{}, fmt.Errorf("load source %d: %w", candidate.SourceID, err)
	}

	if err := w.recordProvenance(ctx, store, eventID, candidate); err != nil {
		return Result{}, err
	}

	outcome := catalog.OutcomeMerged
	switch {
	case source.Reliability > bestReliability:
		if err := w.overwriteCanonical(ctx, store, event, candidate); err != nil {
			return Result{}, err
		}
	case source.Reliability == bestReliability && disagrees(event, candidate):
		// Equal reliability, conflicting values: keep the older value and
		// surface the candidate to review.
		outcome = catalog.OutcomeReview
	}

	if err := w.scorer.Rescore(ctx, store, eventID); err != nil {
		return Result{}, err
	}
	if err := store.Candidates().MarkProcessed(ctx, candidate.ID, outcome, &eventID, &decision.Confidence); err != nil {
		return Result{}, fmt.Errorf("mark candidate: %w", err)
	}
	return Result{Outcome: outcome, EventID: &eventID}, nil
}

func (w *Writer) applyReview(ctx context.Context, store catalog.Store, candidate *catalog.Candidate, decision dedup.Result) (Result, error) {
	if err := store.Candidates().MarkProcessed(ctx, candidate.ID, catalog.OutcomeReview, decision.ExistingEventID, &decision.Confidence); err != nil {
		return Result{}, fmt.Errorf("mark candidate for review: %w", err)
	}
	return Result{Outcome: catalog.OutcomeReview, EventID: decision.ExistingEventID}, nil
}

// overwriteCanonical replaces the event's canonical attributes from the
// candidate and recomputes the fingerprint set.
func (w *Writer) overwriteCanonical(ctx context.Context, store catalog.Store, event *catalog.Event, candidate *catalog.Candidate) error {
	params := catalog.EventUpdateParams{
		Name:      &candidate.RawName,
		StartDate: &candidate.StartDate,
		EndDate:   &candidate.EndDate,
	}
	if candidate.OfficialWebsite != "" {
		params.OfficialWebsite = &candidate.OfficialWebsite
	}
	if candidate.VenueName != "" {
		venue, err := store.Reference().GetOrCreateVenue(ctx, event.CityID, candidate.VenueName)
		if err != nil {
			return fmt.Errorf("upsert venue: %w", err)
		}
		venueID := &venue.ID
		params.VenueID = &venueID
	}
	if candidate.OrganizerName != "" {
		organizer, err := store.Reference().GetOrCreateOrganizer(ctx, candidate.OrganizerName)
		if err != nil {
			return fmt.Errorf("upsert organizer: %w", err)
		}
		organizerID := &organizer.ID
		params.OrganizerID = &organizerID
	}

	if err := store.Events().Update(ctx, event.ID, params); err != nil {
		return fmt.Errorf("overwrite event %d: %w", event.ID, err)
	}

	updated, err := store.Events().GetByID(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("reload event %d: %w", event.ID, err)
	}
	if err := store.Fingerprints().ReplaceForEvent(ctx, event.ID, fingerprint.ForEvent(updated)); err != nil {
		return fmt.Errorf("recompute fingerprints: %w", err)
	}
	return nil
}

// disagrees reports whether the candidate conflicts with the event on an
// attribute the overwrite rule would have touched.
func disagrees(event *catalog.Event, candidate *catalog.Candidate) bool {
	if !candidate.StartDate.Equal(event.StartDate) {
		return true
	}
	return normalize.Text(candidate.RawName) != normalize.Text(event.Name)
}

func (w *Writer) linkTaxonomy(ctx context.Context, store catalog.Store, eventID int64, candidate *catalog.Candidate) error {
	for _, name := range candidate.Genres {
		genre, err := store.Reference().GetOrCreateGenre(ctx, name)
		if err != nil {
			return fmt.Errorf("upsert genre %q: %w", name, err)
		}
		if err := store.Reference().LinkEventGenre(ctx, eventID, genre.ID); err != nil {
			return fmt.Errorf("link genre %q: %w", name, err)
		}
	}
	for _, name := range candidate.Artists {
		artist, err := store.Reference().GetOrCreateArtist(ctx, name)
		if err != nil {
			return fmt.Errorf("upsert artist %q: %w", name, err)
		}
		if err := store.Reference().LinkEventArtist(ctx, eventID, artist.ID); err != nil {
			return fmt.Errorf("link artist %q: %w", name, err)
		}
	}
	return nil
}

func (w *Writer) recordProvenance(ctx context.Context, store catalog.Store, eventID int64, candidate *catalog.Candidate) error {
	startDate := candidate.StartDate
	err := store.Sources().CreateEventSource(ctx, catalog.EventSourceCreateParams{
		EventID:           eventID,
		SourceID:          candidate.SourceID,
		ExternalID:        candidate.ExternalID,
		SourceURL:         candidate.SourceURL,
		Payload:           candidate.RawPayload,
		ReportedStartDate: &startDate,
		ReportedVenue:     candidate.VenueName,
		FetchedAt:         candidate.IngestedAt,
	})
	if err != nil {
		return fmt.Errorf("record provenance: %w", err)
	}
	return nil
}

func (w *Writer) uniqueSlug(ctx context.Context, store catalog.Store, name string, startDate time.Time) (string, error) {
	base := fmt.Sprintf("%s-%d", normalize.Slug(name), startDate.Year())
	slug := base
	for suffix := 2; ; suffix++ {
		exists, err := store.Events().SlugExists(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, suffix)
	}
}

// RecomputeForCity rebuilds the fingerprint set of every event in a city.
// Called after an administrative city rename.
func (w *Writer) RecomputeForCity(ctx context.Context, cityID int64) error {
	return w.store.WithTx(ctx, func(ctx context.Context, store catalog.Store) error {
		ids, err := store.Events().ListIDsByCity(ctx, cityID)
		if err != nil {
			return fmt.Errorf("list events for city %d: %w", cityID, err)
		}
		for _, id := range ids {
			event, err := store.Events().GetByID(ctx, id)
			if err != nil {
				return err
			}
			if err := store.Fingerprints().ReplaceForEvent(ctx, id, fingerprint.ForEvent(event)); err != nil {
				return fmt.Errorf("recompute fingerprints for event %d: %w", id, err)
			}
		}
		return nil
	})
}

// project runs the post-commit search hook; failures go to the retry queue
// and the next full rebuild reconciles regardless.
func (w *Writer) project(ctx context.Context, eventID int64) {
	if w.projector == nil {
		return
	}
	if err := w.projector.UpsertEvent(ctx, eventID); err != nil {
		w.logger.Warn().Err(err).Int64("event_id", eventID).Msg("projection upsert failed; enqueueing retry")
		if w.retries != nil {
			if enqueueErr := w.retries.EnqueueProjectionRetry(ctx, eventID); enqueueErr != nil {
				w.logger.Error().Err(enqueueErr).Int64("event_id", eventID).Msg("projection retry enqueue failed")
			}
		}
	}
}
