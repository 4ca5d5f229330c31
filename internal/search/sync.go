package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/metrics"
	"github.com/mawsim/catalog/internal/search/typesense"
)

// BatchSize for full-rebuild imports.
const BatchSize = 100

// Engine is the slice of the search daemon the synchronizer uses. Satisfied
// by *typesense.Client.
type Engine interface {
	Health(ctx context.Context) error
	CreateCollection(ctx context.Context, schema typesense.CollectionSchema) error
	RetrieveCollection(ctx context.Context, name string) (*typesense.CollectionSchema, error)
	DeleteCollection(ctx context.Context, name string) error
	ImportDocuments(ctx context.Context, collection string, documents []any, action string) ([]typesense.ImportResult, error)
	UpsertDocument(ctx context.Context, collection string, document any) error
	DeleteDocument(ctx context.Context, collection, id string) error
}

// Synchronizer keeps the search collection aligned with indexable events.
type Synchronizer struct {
	engine Engine
	store  catalog.Store
	logger zerolog.Logger

	// rebuildMu suspends incremental upserts while a full rebuild streams
	// its snapshot, so rebuild output is never overwritten by stale
	// per-event writes racing it.
	rebuildMu sync.RWMutex
}

func NewSynchronizer(engine Engine, store catalog.Store, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		engine: engine,
		store:  store,
		logger: logger.With().Str("component", "search_sync").Logger(),
	}
}

// EnsureSchema creates the events collection if it does not exist.
func (s *Synchronizer) EnsureSchema(ctx context.Context) error {
	_, err := s.engine.RetrieveCollection(ctx, CollectionName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, typesense.ErrNotFound) {
		return fmt.Errorf("retrieve collection: %w", err)
	}
	if err := s.engine.CreateCollection(ctx, Schema()); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	s.logger.Info().Str("collection", CollectionName).Msg("search collection created")
	return nil
}

// FullRebuild drops and recreates the collection, then streams every
// indexable event in batches. Failed documents are logged individually and
// counted; other batches proceed. Cancellation is honored at batch
// boundaries. Returns (indexed, errors).
func (s *Synchronizer) FullRebuild(ctx context.Context) (int, int, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	if err := s.engine.DeleteCollection(ctx, CollectionName); err != nil && !errors.Is(err, typesense.ErrNotFound) {
		return 0, 0, fmt.Errorf("drop collection: %w", err)
	}
	if err := s.engine.CreateCollection(ctx, Schema()); err != nil {
		return 0, 0, fmt.Errorf("recreate collection: %w", err)
	}

	var indexed, failed int
	afterID := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return indexed, failed, err
		}

		rows, err := s.store.Events().ListIndexable(ctx, afterID, BatchSize)
		if err != nil {
			return indexed, failed, fmt.Errorf("list indexable events: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		afterID = rows[len(rows)-1].Event.ID

		documents := make([]any, 0, len(rows))
		for i := range rows {
			documents = append(documents, Transform(&rows[i]))
		}

		results, err := s.engine.ImportDocuments(ctx, CollectionName, documents, "upsert")
		if err != nil {
			// The whole batch failed; count every document and move on.
			failed += len(documents)
			metrics.ProjectionErrors.Add(float64(len(documents)))
			s.logger.Error().Err(err).Int64("after_id", afterID).Msg("rebuild batch import failed")
			continue
		}
		for i, result := range results {
			if result.Success {
				indexed++
				continue
			}
			failed++
			metrics.ProjectionErrors.Inc()
			s.logger.Warn().
				Str("error", result.Error).
				Int64("event_id", rows[i].Event.ID).
				Msg("rebuild document rejected")
		}
	}

	metrics.ProjectionRebuilds.Inc()
	s.logger.Info().Int("indexed", indexed).Int("errors", failed).Msg("full rebuild complete")
	return indexed, failed, nil
}

// UpsertEvent projects a single event. When the event is missing or not in
// an indexable status, its document is deleted instead; a missing document is
// not an error.
func (s *Synchronizer) UpsertEvent(ctx context.Context, eventID int64) error {
	s.rebuildMu.RLock()
	defer s.rebuildMu.RUnlock()

	row, err := s.store.Events().GetProjection(ctx, eventID)
	if errors.Is(err, catalog.ErrNotFound) {
		return s.deleteDocument(ctx, eventID)
	}
	if err != nil {
		return fmt.Errorf("load projection for event %d: %w", eventID, err)
	}
	if !row.Event.Status.Indexable() {
		return s.deleteDocument(ctx, eventID)
	}

	if err := s.engine.UpsertDocument(ctx, CollectionName, Transform(row)); err != nil {
		metrics.ProjectionErrors.Inc()
		return fmt.Errorf("upsert document %d: %w", eventID, err)
	}
	metrics.ProjectionUpserts.Inc()
	return nil
}

// DeleteEvent removes an event's document. Idempotent.
func (s *Synchronizer) DeleteEvent(ctx context.Context, eventID int64) error {
	s.rebuildMu.RLock()
	defer s.rebuildMu.RUnlock()
	return s.deleteDocument(ctx, eventID)
}

// Healthy reports whether the search daemon answers its health endpoint.
func (s *Synchronizer) Healthy(ctx context.Context) error {
	return s.engine.Health(ctx)
}

func (s *Synchronizer) deleteDocument(ctx context.Context, eventID int64) error {
	err := s.engine.DeleteDocument(ctx, CollectionName, strconv.FormatInt(eventID, 10))
	if errors.Is(err, typesense.ErrNotFound) {
		return nil
	}
	if err != nil {
		metrics.ProjectionErrors.Inc()
		return fmt.Errorf("delete document %d: %w", eventID, err)
	}
	metrics.ProjectionDeletes.Inc()
	return nil
}
