package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mawsim/catalog/internal/adapters"
	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/domain/catalog/catalogtest"
	"github.com/mawsim/catalog/internal/domain/confidence"
	"github.com/mawsim/catalog/internal/domain/dedup"
	"github.com/mawsim/catalog/internal/domain/ingest"
)

// fakeAdapter serves canned records with per-record normalization outcomes.
type fakeAdapter struct {
	source        catalog.Source
	records       []adapters.RawRecord
	params        map[string]catalog.CandidateInsertParams
	normalizeErrs map[string]error
	fetchErr      error
	fetchCalls    int
	lastSince     time.Time
}

func (f *fakeAdapter) Source() catalog.Source { return f.source }

func (f *fakeAdapter) Fetch(_ context.Context, since time.Time) ([]adapters.RawRecord, error) {
	f.fetchCalls++
	f.lastSince = since
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.records, nil
}

func (f *fakeAdapter) Normalize(record adapters.RawRecord) (catalog.CandidateInsertParams, error) {
	if err, ok := f.normalizeErrs[record.ExternalID]; ok {
		return catalog.CandidateInsertParams{}, err
	}
	params := f.params[record.ExternalID]
	params.SourceID = f.source.ID
	params.ExternalID = record.ExternalID
	params.IngestedAt = record.FetchedAt
	return params, nil
}

type orchestratorFixture struct {
	store    *catalogtest.Store
	registry *adapters.Registry
	orch     *Orchestrator
	city     *catalog.City
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	store := catalogtest.NewStore()
	region := store.AddRegion("Marrakech-Safi")
	city := store.AddCity(region.ID, "Essaouira")

	registry := adapters.NewRegistry()
	resolver := dedup.NewResolver(store)
	writer := ingest.NewWriter(store, confidence.NewScorer(), nil, nil, zerolog.Nop())
	orch := NewOrchestrator(registry, store, resolver, writer, zerolog.Nop(), WithFetchConcurrency(2))

	return &orchestratorFixture{store: store, registry: registry, orch: orch, city: city}
}

func (f *orchestratorFixture) newAdapter(name string, sourceType catalog.SourceType, reliability float64) *fakeAdapter {
	source := f.store.AddSource(name, sourceType, reliability)
	adapter := &fakeAdapter{
		source:        *source,
		params:        make(map[string]catalog.CandidateInsertParams),
		normalizeErrs: make(map[string]error),
	}
	f.registry.Register(adapter)
	return adapter
}

func (f *orchestratorFixture) addRecord(adapter *fakeAdapter, externalID, rawName string, start time.Time) {
	adapter.records = append(adapter.records, adapters.RawRecord{
		ExternalID: externalID,
		SourceURL:  "https://example.com/" + externalID,
		Payload:    json.RawMessage(`{}`),
		FetchedAt:  start,
	})
	adapter.params[externalID] = catalog.CandidateInsertParams{
		RawName:   rawName,
		Name:      rawName,
		Type:      catalog.TypeFestival,
		StartDate: start,
		CityID:    &f.city.ID,
	}
}

var runStart = time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC)

func TestRunHappyPath(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	api := f.newAdapter("partner-api", catalog.SourceAPI, 0.8)
	f.addRecord(api, "a1", "gnaoua world music", runStart)
	f.addRecord(api, "a2", "jazz au chellah", runStart.AddDate(0, 2, 0))

	scrape := f.newAdapter("listings", catalog.SourceScraped, 0.5)
	f.addRecord(scrape, "s1", "tbourida salon du cheval", runStart.AddDate(0, 3, 0))

	report, err := f.orch.Run(ctx)
	require.NoError(t, err)

	require.Contains(t, report.Sources, "partner-api")
	require.Contains(t, report.Sources, "listings")
	assert.Equal(t, 2, report.Sources["partner-api"].Fetched)
	assert.Equal(t, 2, report.Sources["partner-api"].Created)
	assert.Equal(t, 1, report.Sources["listings"].Created)

	totals := report.Totals()
	assert.Equal(t, 3, totals.Fetched)
	assert.Equal(t, 3, totals.Created)
	assert.Empty(t, totals.Errors)

	assert.Len(t, f.store.EventRows, 3)

	// Cursors advanced for both sources.
	for _, name := range []string{"partner-api", "listings"} {
		source, err := f.store.Sources().GetOrCreate(ctx, name, catalog.SourceAPI, 0)
		require.NoError(t, err)
		assert.NotNil(t, source.LastFetchAt, "source %s", name)
	}

	// The run report was persisted.
	require.Len(t, f.store.RunRows, 1)
	var persisted Report
	require.NoError(t, json.Unmarshal(f.store.RunRows[0].Report, &persisted))
	assert.Equal(t, 2, persisted.Sources["partner-api"].Created)
}

func TestRunDeduplicatesAcrossSources(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	api := f.newAdapter("partner-api", catalog.SourceAPI, 0.8)
	f.addRecord(api, "a1", "gnaoua world music", runStart)

	scrape := f.newAdapter("listings", catalog.SourceScraped, 0.5)
	f.addRecord(scrape, "s1", "gnaoua world music", runStart)

	report, err := f.orch.Run(ctx)
	require.NoError(t, err)

	totals := report.Totals()
	assert.Equal(t, 1, totals.Created)
	assert.Equal(t, 1, totals.Merged)
	assert.Len(t, f.store.EventRows, 1)

	// Both sources contribute provenance to the single event.
	for id := range f.store.EventRows {
		linked, err := f.store.Sources().ListByEvent(ctx, id)
		require.NoError(t, err)
		assert.Len(t, linked, 2)
	}
}

func TestRunSameRecordTwiceAppendsProvenance(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	api := f.newAdapter("partner-api", catalog.SourceAPI, 0.8)
	f.addRecord(api, "EB-123", "gnaoua world music", runStart)

	first, err := f.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Totals().Created)

	second, err := f.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Totals().Merged)

	require.Len(t, f.store.EventRows, 1)
	var eventID int64
	for id := range f.store.EventRows {
		eventID = id
	}

	// Every ingest of the record leaves its own provenance row.
	linked, err := f.store.Sources().ListByEvent(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, linked, 2)
	assert.Equal(t, "EB-123", linked[0].ExternalID)
	assert.Equal(t, "EB-123", linked[1].ExternalID)

	// Both staged candidates resolved to the same event.
	require.Len(t, f.store.CandidateRows, 2)
	for _, candidate := range f.store.CandidateRows {
		assert.True(t, candidate.Processed)
		require.NotNil(t, candidate.MatchedEventID)
		assert.Equal(t, eventID, *candidate.MatchedEventID)
	}

	// Repeat rows from one source are no corroboration, so agreement stays
	// neutral: 0.35*0.8 + 0.25*0.7 + 0.20*0.5 + 0.10*1 + 0.10*0.5
	assert.InDelta(t, 0.705, f.store.EventRows[eventID].ConfidenceScore, 1e-6)
}

func TestRunRecordFailureDoesNotBlockSiblings(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	api := f.newAdapter("partner-api", catalog.SourceAPI, 0.8)
	f.addRecord(api, "good", "gnaoua world music", runStart)
	f.addRecord(api, "bad", "", runStart)
	api.normalizeErrs["bad"] = errors.New("missing name")

	report, err := f.orch.Run(ctx)
	require.NoError(t, err)

	src := report.Sources["partner-api"]
	assert.Equal(t, 2, src.Fetched)
	assert.Equal(t, 1, src.Created)
	assert.Equal(t, 1, src.Skipped)
	require.Len(t, src.Errors, 1)
	assert.Contains(t, src.Errors[0], "validation_error")

	// A record-level failure does not hold the cursor back.
	source, err := f.store.Sources().GetByID(ctx, api.source.ID)
	require.NoError(t, err)
	assert.NotNil(t, source.LastFetchAt)
}

func TestRunUnknownCityReported(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	api := f.newAdapter("partner-api", catalog.SourceAPI, 0.8)
	api.records = append(api.records, adapters.RawRecord{
		ExternalID: "u1",
		Payload:    json.RawMessage(`{}`),
		FetchedAt:  runStart,
	})
	api.params["u1"] = catalog.CandidateInsertParams{
		RawName:   "Moussem de Tan-Tan",
		Name:      "moussem de tan tan",
		Type:      catalog.TypeRitual,
		StartDate: runStart,
		CityName:  "Tan-Tan",
	}

	report, err := f.orch.Run(ctx)
	require.NoError(t, err)

	src := report.Sources["partner-api"]
	assert.Equal(t, 1, src.ReviewNeeded, "the candidate still lands in the review queue")
	require.Len(t, src.Errors, 1)
	assert.Contains(t, src.Errors[0], "unknown_city")

	assert.Empty(t, f.store.EventRows)
	pending, err := f.store.Candidates().ListReviewPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRunFetchFailureHoldsCursor(t *testing.T) {
	f := newOrchestratorFixture(t)

	api := f.newAdapter("partner-api", catalog.SourceAPI, 0.8)
	api.fetchErr = errors.New("connection refused")

	// The failure is retriable, so cut the backoff short with a deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := f.orch.RunOne(ctx, api)
	require.Error(t, err)

	src := report.Sources["partner-api"]
	require.NotNil(t, src)
	require.Len(t, src.Errors, 1)
	assert.Contains(t, src.Errors[0], "source_unavailable")

	source, dbErr := f.store.Sources().GetByID(context.Background(), api.source.ID)
	require.NoError(t, dbErr)
	assert.Nil(t, source.LastFetchAt, "a failed fetch never advances the cursor")
}

func TestRunPassesCursorToFetch(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	api := f.newAdapter("partner-api", catalog.SourceAPI, 0.8)
	cursor := runStart.AddDate(0, -1, 0)
	require.NoError(t, f.store.Sources().UpdateLastFetch(ctx, api.source.ID, cursor))
	// The registry holds a snapshot of the source row, refresh it.
	refreshed, err := f.store.Sources().GetByID(ctx, api.source.ID)
	require.NoError(t, err)
	api.source = *refreshed

	_, err = f.orch.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, api.fetchCalls)
	assert.True(t, api.lastSince.Equal(cursor))
}

func TestRunOne(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	source := f.store.AddSource("curator-batch", catalog.SourceManual, 0.9)
	adapter := &fakeAdapter{
		source: *source,
		params: make(map[string]catalog.CandidateInsertParams),
	}
	adapter.records = append(adapter.records, adapters.RawRecord{
		ExternalID: "m1",
		Payload:    json.RawMessage(`{}`),
		FetchedAt:  runStart,
	})
	adapter.params["m1"] = catalog.CandidateInsertParams{
		RawName:   "Festival des Andalousies",
		Name:      "des andalousies",
		Type:      catalog.TypeFestival,
		StartDate: runStart,
		CityID:    &f.city.ID,
	}

	report, err := f.orch.RunOne(ctx, adapter)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Totals().Created)
	require.Len(t, f.store.RunRows, 1, "one-off runs persist their report too")
}

func TestStageInsertsWithoutResolving(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	batch := f.newAdapter("curator-batch", catalog.SourceManual, 0.9)
	f.addRecord(batch, "m1", "des andalousies", runStart)

	staged, err := f.orch.Stage(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, staged)
	assert.Empty(t, f.store.EventRows, "staging resolves nothing")

	pending, err := f.store.Candidates().ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m1", pending[0].ExternalID)
}

func TestProcessPendingDrainsStagedCandidates(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	source := f.store.AddSource("curator-batch", catalog.SourceManual, 0.9)
	_, err := f.store.Candidates().Insert(ctx, catalog.CandidateInsertParams{
		SourceID:   source.ID,
		ExternalID: "m1",
		RawName:    "Festival des Andalousies",
		Name:       "des andalousies",
		Type:       catalog.TypeFestival,
		StartDate:  runStart,
		CityID:     &f.city.ID,
		IngestedAt: runStart,
	})
	require.NoError(t, err)

	report, err := f.orch.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sources["curator-batch"].Created)
	assert.Len(t, f.store.EventRows, 1)
	require.Len(t, f.store.RunRows, 1)

	// An empty queue is a no-op and writes no report row.
	report, err = f.orch.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Sources)
	assert.Len(t, f.store.RunRows, 1)
}

func TestErrorKindRetriable(t *testing.T) {
	retriable := []ErrorKind{
		KindNetworkTimeout, KindRateLimited, KindSourceUnavailable,
		KindConflictOnMerge, KindDatabaseError, KindSearchIndexError,
	}
	for _, kind := range retriable {
		assert.True(t, kind.Retriable(), "kind=%s", kind)
	}

	terminal := []ErrorKind{KindParseError, KindValidationError, KindUnknownCity}
	for _, kind := range terminal {
		assert.False(t, kind.Retriable(), "kind=%s", kind)
	}
}

func TestClassifyFetch(t *testing.T) {
	assert.Equal(t, KindNetworkTimeout, classifyFetch(context.DeadlineExceeded))
	wrapped := errors.Join(errors.New("request failed"), context.DeadlineExceeded)
	assert.Equal(t, KindNetworkTimeout, classifyFetch(wrapped))
	assert.Equal(t, KindSourceUnavailable, classifyFetch(errors.New("connection refused")))
}

func TestReportTotals(t *testing.T) {
	report := newReport(runStart)
	a := report.source("a")
	a.Fetched, a.Created = 3, 2
	b := report.source("b")
	b.Fetched, b.Merged, b.Skipped = 2, 1, 1
	report.recordError(NewError(KindSourceUnavailable, "b", errors.New("down")))

	totals := report.Totals()
	assert.Equal(t, 5, totals.Fetched)
	assert.Equal(t, 2, totals.Created)
	assert.Equal(t, 1, totals.Merged)
	assert.Equal(t, 1, totals.Skipped)
	assert.Len(t, totals.Errors, 1)
}
