package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mawsim/catalog/internal/adapters"
	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/domain/catalog/catalogtest"
	"github.com/mawsim/catalog/internal/domain/confidence"
	"github.com/mawsim/catalog/internal/domain/dedup"
	"github.com/mawsim/catalog/internal/domain/editorial"
	"github.com/mawsim/catalog/internal/domain/ingest"
	"github.com/mawsim/catalog/internal/pipeline"
	"github.com/mawsim/catalog/internal/search"
	"github.com/mawsim/catalog/internal/search/typesense"
)

type fakeSearchEngine struct {
	mu          sync.Mutex
	collections map[string]typesense.CollectionSchema
	documents   map[string]search.Document
}

func newFakeSearchEngine() *fakeSearchEngine {
	return &fakeSearchEngine{
		collections: make(map[string]typesense.CollectionSchema),
		documents:   make(map[string]search.Document),
	}
}

func (e *fakeSearchEngine) Health(context.Context) error { return nil }

func (e *fakeSearchEngine) CreateCollection(_ context.Context, schema typesense.CollectionSchema) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collections[schema.Name] = schema
	e.documents = make(map[string]search.Document)
	return nil
}

func (e *fakeSearchEngine) RetrieveCollection(_ context.Context, name string) (*typesense.CollectionSchema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	schema, ok := e.collections[name]
	if !ok {
		return nil, typesense.ErrNotFound
	}
	return &schema, nil
}

func (e *fakeSearchEngine) DeleteCollection(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.collections[name]; !ok {
		return typesense.ErrNotFound
	}
	delete(e.collections, name)
	return nil
}

func (e *fakeSearchEngine) ImportDocuments(_ context.Context, _ string, documents []any, _ string) ([]typesense.ImportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	results := make([]typesense.ImportResult, len(documents))
	for i, raw := range documents {
		doc := raw.(search.Document)
		e.documents[doc.ID] = doc
		results[i] = typesense.ImportResult{Success: true}
	}
	return results, nil
}

func (e *fakeSearchEngine) UpsertDocument(_ context.Context, _ string, document any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc := document.(search.Document)
	e.documents[doc.ID] = doc
	return nil
}

func (e *fakeSearchEngine) DeleteDocument(_ context.Context, _, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.documents[id]; !ok {
		return typesense.ErrNotFound
	}
	delete(e.documents, id)
	return nil
}

func (e *fakeSearchEngine) hasDocument(eventID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.documents[strconv.FormatInt(eventID, 10)]
	return ok
}

type fakeSitemap struct {
	calls int
	err   error
}

func (f *fakeSitemap) NotifySitemap(context.Context) error {
	f.calls++
	return f.err
}

type maintenanceFixture struct {
	store   *catalogtest.Store
	engine  *fakeSearchEngine
	sitemap *fakeSitemap
	worker  MaintenanceWorker
}

func newMaintenanceFixture(t *testing.T) *maintenanceFixture {
	t.Helper()
	store := catalogtest.NewStore()
	engine := newFakeSearchEngine()
	sync := search.NewSynchronizer(engine, store, zerolog.Nop())
	sitemap := &fakeSitemap{}
	return &maintenanceFixture{
		store:   store,
		engine:  engine,
		sitemap: sitemap,
		worker: MaintenanceWorker{
			Store:     store,
			Editorial: editorial.NewService(store, sync, zerolog.Nop()),
			Scorer:    confidence.NewScorer(),
			Sync:      sync,
			Sitemap:   sitemap,
			Logger:    zerolog.Nop(),
		},
	}
}

func TestMaintenanceWorkerWork(t *testing.T) {
	f := newMaintenanceFixture(t)
	region := f.store.AddRegion("Marrakech-Safi")
	city := f.store.AddCity(region.ID, "Essaouira")

	now := time.Now().UTC()
	endedEnd := now.Add(-45 * 24 * time.Hour)
	ended := f.store.AddEvent(catalog.Event{
		Slug:      "festival-gnaoua-2025",
		Name:      "Festival Gnaoua",
		Type:      catalog.TypeFestival,
		StartDate: endedEnd.Add(-2 * 24 * time.Hour),
		EndDate:   &endedEnd,
		CityID:    city.ID,
		RegionID:  region.ID,
	})
	recentEnd := now.Add(-5 * 24 * time.Hour)
	recent := f.store.AddEvent(catalog.Event{
		Slug:      "jazz-au-chellah-2026",
		Name:      "Jazz au Chellah",
		Type:      catalog.TypeFestival,
		StartDate: recentEnd.Add(-24 * time.Hour),
		EndDate:   &recentEnd,
		CityID:    city.ID,
		RegionID:  region.ID,
	})
	upcoming := f.store.AddEvent(catalog.Event{
		Slug:      "timitar-2026",
		Name:      "Festival Timitar",
		Type:      catalog.TypeFestival,
		StartDate: now.Add(30 * 24 * time.Hour),
		CityID:    city.ID,
		RegionID:  region.ID,
	})

	require.NoError(t, f.worker.Work(context.Background(), nil))

	// Only the event past the grace window is archived.
	assert.Equal(t, catalog.StatusArchived, f.store.EventRows[ended.ID].Status)
	assert.Equal(t, catalog.StatusAnnounced, f.store.EventRows[recent.ID].Status)
	assert.Equal(t, catalog.StatusAnnounced, f.store.EventRows[upcoming.ID].Status)

	require.Len(t, f.store.Actions, 1)
	assert.Equal(t, "archive", f.store.Actions[0].Action)
	assert.Equal(t, "system", f.store.Actions[0].Actor)
	assert.Equal(t, ended.ID, f.store.Actions[0].EventID)

	// Stale scores were refreshed.
	require.NotNil(t, f.store.EventRows[upcoming.ID].LastVerifiedAt)
	assert.Greater(t, f.store.EventRows[upcoming.ID].ConfidenceScore, 0.0)
	require.NotNil(t, f.store.EventRows[recent.ID].LastVerifiedAt)

	// The rebuild carries indexable events only.
	assert.False(t, f.engine.hasDocument(ended.ID))
	assert.True(t, f.engine.hasDocument(recent.ID))
	assert.True(t, f.engine.hasDocument(upcoming.ID))

	assert.Equal(t, 1, f.sitemap.calls)
}

func TestMaintenanceWorkerSitemapFailureIsNonFatal(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.sitemap.err = errors.New("site down")

	require.NoError(t, f.worker.Work(context.Background(), nil))
	assert.Equal(t, 1, f.sitemap.calls)
}

func TestMaintenanceWorkerNotConfigured(t *testing.T) {
	err := MaintenanceWorker{}.Work(context.Background(), nil)
	assert.Error(t, err)
}

func TestHTTPSitemapNotifier(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodGet, r.Method)
	}))
	defer server.Close()

	notifier := &HTTPSitemapNotifier{URL: server.URL + "/ping-sitemap"}
	require.NoError(t, notifier.NotifySitemap(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestHTTPSitemapNotifierErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := &HTTPSitemapNotifier{URL: server.URL}
	assert.Error(t, notifier.NotifySitemap(context.Background()))
}

func TestHTTPSitemapNotifierDisabled(t *testing.T) {
	var nilNotifier *HTTPSitemapNotifier
	assert.NoError(t, nilNotifier.NotifySitemap(context.Background()))
	assert.NoError(t, (&HTTPSitemapNotifier{}).NotifySitemap(context.Background()))
}

func TestCandidateCleanupWorker(t *testing.T) {
	ctx := context.Background()
	store := catalogtest.NewStore()
	now := time.Now().UTC()

	start := time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC)
	stale, err := store.Candidates().Insert(ctx, catalog.CandidateInsertParams{
		SourceID: 1, ExternalID: "stale", RawName: "Stale", Name: "stale",
		StartDate: start, IngestedAt: now.Add(-60 * 24 * time.Hour),
	})
	require.NoError(t, err)
	fresh, err := store.Candidates().Insert(ctx, catalog.CandidateInsertParams{
		SourceID: 1, ExternalID: "fresh", RawName: "Fresh", Name: "fresh",
		StartDate: start, IngestedAt: now.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	reviewed, err := store.Candidates().Insert(ctx, catalog.CandidateInsertParams{
		SourceID: 1, ExternalID: "reviewed", RawName: "Reviewed", Name: "reviewed",
		StartDate: start, IngestedAt: now.Add(-90 * 24 * time.Hour),
	})
	require.NoError(t, err)
	store.CandidateRows[reviewed.ID].Processed = true

	worker := CandidateCleanupWorker{Store: store, Logger: zerolog.Nop()}
	require.NoError(t, worker.Work(ctx, nil))

	assert.NotContains(t, store.CandidateRows, stale.ID)
	assert.Contains(t, store.CandidateRows, fresh.ID)
	assert.Contains(t, store.CandidateRows, reviewed.ID, "processed candidates are kept for audit")
}

func TestCandidateCleanupWorkerNotConfigured(t *testing.T) {
	err := CandidateCleanupWorker{}.Work(context.Background(), nil)
	assert.Error(t, err)
}

func TestProjectionSyncWorker(t *testing.T) {
	store := catalogtest.NewStore()
	region := store.AddRegion("Souss-Massa")
	city := store.AddCity(region.ID, "Agadir")
	event := store.AddEvent(catalog.Event{
		Slug:      "timitar-2025",
		Name:      "Festival Timitar",
		Type:      catalog.TypeFestival,
		StartDate: time.Date(2025, time.July, 2, 0, 0, 0, 0, time.UTC),
		CityID:    city.ID,
		RegionID:  region.ID,
	})

	engine := newFakeSearchEngine()
	worker := ProjectionSyncWorker{Sync: search.NewSynchronizer(engine, store, zerolog.Nop())}

	job := &river.Job[ProjectionSyncArgs]{Args: ProjectionSyncArgs{EventID: event.ID}}
	require.NoError(t, worker.Work(context.Background(), job))
	assert.True(t, engine.hasDocument(event.ID))

	// A non-indexable event clears its document instead.
	store.EventRows[event.ID].Status = catalog.StatusCancelled
	require.NoError(t, worker.Work(context.Background(), job))
	assert.False(t, engine.hasDocument(event.ID))
}

func TestProjectionSyncWorkerNotConfigured(t *testing.T) {
	job := &river.Job[ProjectionSyncArgs]{Args: ProjectionSyncArgs{EventID: 1}}
	err := ProjectionSyncWorker{}.Work(context.Background(), job)
	assert.Error(t, err)
}

func TestIngestionWorkerNotConfigured(t *testing.T) {
	err := IngestionWorker{}.Work(context.Background(), nil)
	assert.Error(t, err)
}

func TestManualImportWorkerDrainsQueue(t *testing.T) {
	store := catalogtest.NewStore()
	region := store.AddRegion("Souss-Massa")
	city := store.AddCity(region.ID, "Agadir")
	source := store.AddSource("curator-batch", catalog.SourceManual, 0.9)

	ctx := context.Background()
	start := time.Date(2025, time.July, 2, 0, 0, 0, 0, time.UTC)
	_, err := store.Candidates().Insert(ctx, catalog.CandidateInsertParams{
		SourceID:   source.ID,
		ExternalID: "tm-2025",
		RawName:    "Festival Timitar",
		Name:       "timitar",
		Type:       catalog.TypeFestival,
		StartDate:  start,
		CityID:     &city.ID,
		IngestedAt: start,
	})
	require.NoError(t, err)

	orch := pipeline.NewOrchestrator(
		adapters.NewRegistry(),
		store,
		dedup.NewResolver(store),
		ingest.NewWriter(store, confidence.NewScorer(), nil, nil, zerolog.Nop()),
		zerolog.Nop(),
	)
	worker := ManualImportWorker{Orchestrator: orch}

	require.NoError(t, worker.Work(ctx, nil))
	assert.Len(t, store.EventRows, 1)

	pending, err := store.Candidates().ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestManualImportWorkerNotConfigured(t *testing.T) {
	err := ManualImportWorker{}.Work(context.Background(), nil)
	assert.Error(t, err)
}

func TestJobKinds(t *testing.T) {
	assert.Equal(t, "ingestion", IngestionArgs{}.Kind())
	assert.Equal(t, "manual_import", ManualImportArgs{}.Kind())
	assert.Equal(t, "maintenance", MaintenanceArgs{}.Kind())
	assert.Equal(t, "candidate_cleanup", CandidateCleanupArgs{}.Kind())
	assert.Equal(t, "projection_sync", ProjectionSyncArgs{}.Kind())

	assert.Equal(t, IngestionArgs{}.Kind(), IngestionWorker{}.Kind())
	assert.Equal(t, ManualImportArgs{}.Kind(), ManualImportWorker{}.Kind())
	assert.Equal(t, MaintenanceArgs{}.Kind(), MaintenanceWorker{}.Kind())
	assert.Equal(t, CandidateCleanupArgs{}.Kind(), CandidateCleanupWorker{}.Kind())
	assert.Equal(t, ProjectionSyncArgs{}.Kind(), ProjectionSyncWorker{}.Kind())
}

func TestInsertOptsForKind(t *testing.T) {
	assert.Equal(t, IngestionMaxAttempts, InsertOptsForKind(JobKindIngestion).MaxAttempts)
	assert.Equal(t, ManualImportMaxAttempts, InsertOptsForKind(JobKindManualImport).MaxAttempts)
	assert.Equal(t, ProjectionSyncMaxAttempts, InsertOptsForKind(JobKindProjectionSync).MaxAttempts)
	assert.Equal(t, CleanupMaxAttempts, InsertOptsForKind(JobKindCandidateCleanup).MaxAttempts)
	assert.Equal(t, MaintenanceMaxAttempts, InsertOptsForKind("unknown").MaxAttempts)
}

func TestRetryPolicyNextRetry(t *testing.T) {
	policy := NewRetryPolicy()
	attemptedAt := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	// Exponential backoff off the last attempt time.
	next := policy.NextRetry(&rivertype.JobRow{
		Kind: JobKindIngestion, Attempt: 2, AttemptedAt: &attemptedAt,
	})
	assert.Equal(t, attemptedAt.Add(2*time.Minute), next)

	next = policy.NextRetry(&rivertype.JobRow{
		Kind: JobKindProjectionSync, Attempt: 1, AttemptedAt: &attemptedAt,
	})
	assert.Equal(t, attemptedAt.Add(30*time.Second), next)

	// Deep attempts cap at the per-kind ceiling.
	next = policy.NextRetry(&rivertype.JobRow{
		Kind: JobKindIngestion, Attempt: 10, AttemptedAt: &attemptedAt,
	})
	assert.Equal(t, attemptedAt.Add(30*time.Minute), next)
}

func TestNewPeriodicJobs(t *testing.T) {
	assert.Len(t, NewPeriodicJobs(), 4)
}

func TestDailyAtUTCNext(t *testing.T) {
	schedule := dailyAtUTC{hour: MaintenanceHourUTC}

	before := time.Date(2026, time.March, 1, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 1, 2, 0, 0, 0, time.UTC), schedule.Next(before))

	after := time.Date(2026, time.March, 1, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 2, 2, 0, 0, 0, time.UTC), schedule.Next(after))

	// Exactly on the mark schedules the next day, not an immediate re-run.
	exact := time.Date(2026, time.March, 1, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 2, 2, 0, 0, 0, time.UTC), schedule.Next(exact))

	// Non-UTC inputs are normalized before comparing.
	local := time.Date(2026, time.March, 1, 3, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	assert.Equal(t, time.Date(2026, time.March, 1, 2, 0, 0, 0, time.UTC), schedule.Next(local))
}

func TestNewClientConfigDefaults(t *testing.T) {
	config := NewClientConfig(river.NewWorkers(), nil, NewPeriodicJobs(), 0)
	assert.Equal(t, MaintenanceMaxAttempts, config.MaxAttempts)
	assert.Equal(t, 10, config.Queues[river.QueueDefault].MaxWorkers)
	assert.NotNil(t, config.RetryPolicy)
}

func TestNewWorkersRegistersAll(t *testing.T) {
	store := catalogtest.NewStore()
	engine := newFakeSearchEngine()
	sync := search.NewSynchronizer(engine, store, zerolog.Nop())
	workers := NewWorkers(
		nil,
		store,
		editorial.NewService(store, sync, zerolog.Nop()),
		confidence.NewScorer(),
		sync,
		&fakeSitemap{},
		zerolog.Nop(),
	)
	assert.NotNil(t, workers)
}

func TestEnqueuerNotConfigured(t *testing.T) {
	var enqueuer *Enqueuer
	assert.Error(t, enqueuer.EnqueueProjectionRetry(context.Background(), 1))
	assert.Error(t, (&Enqueuer{}).EnqueueProjectionRetry(context.Background(), 1))
}
