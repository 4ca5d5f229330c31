package editorial

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/domain/catalog/catalogtest"
)

type fakeProjector struct {
	upserts []int64
	deletes []int64
}

func (p *fakeProjector) UpsertEvent(_ context.Context, eventID int64) error {
	p.upserts = append(p.upserts, eventID)
	return nil
}

func (p *fakeProjector) DeleteEvent(_ context.Context, eventID int64) error {
	p.deletes = append(p.deletes, eventID)
	return nil
}

type serviceFixture struct {
	store     *catalogtest.Store
	service   *Service
	projector *fakeProjector
	city      *catalog.City
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := catalogtest.NewStore()
	region := store.AddRegion("Marrakech-Safi")
	city := store.AddCity(region.ID, "Essaouira")
	projector := &fakeProjector{}
	service := NewService(store, projector, zerolog.Nop())
	return &serviceFixture{store: store, service: service, projector: projector, city: city}
}

func (f *serviceFixture) seedEvent(name string) *catalog.Event {
	return f.store.AddEvent(catalog.Event{
		Name:      name,
		Slug:      name,
		Type:      catalog.TypeFestival,
		StartDate: time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC),
		CityID:    f.city.ID,
		RegionID:  f.city.RegionID,
	})
}

func TestVerify(t *testing.T) {
	f := newServiceFixture(t)
	event := f.seedEvent("gnaoua")
	now := time.Date(2025, time.July, 1, 10, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return now }

	require.NoError(t, f.service.Verify(context.Background(), "admin", event.ID, true, "checked with organizer"))

	updated, err := f.store.Events().GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsVerified)
	require.NotNil(t, updated.LastVerifiedAt)
	assert.Equal(t, now, *updated.LastVerifiedAt)

	require.Len(t, f.store.Actions, 1)
	assert.Equal(t, "verify", f.store.Actions[0].Action)
	assert.Equal(t, "admin", f.store.Actions[0].Actor)
	assert.Equal(t, []int64{event.ID}, f.projector.upserts)
}

func TestVerifyMissingEvent(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.Verify(context.Background(), "admin", 999, true, "")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Empty(t, f.store.Actions)
	assert.Empty(t, f.projector.upserts)
}

func TestPin(t *testing.T) {
	f := newServiceFixture(t)
	event := f.seedEvent("gnaoua")

	require.NoError(t, f.service.Pin(context.Background(), "admin", event.ID, true, "flagship festival"))

	updated, err := f.store.Events().GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsPinned)
	assert.Equal(t, []int64{event.ID}, f.projector.upserts)
}

func TestSetSignificance(t *testing.T) {
	f := newServiceFixture(t)
	event := f.seedEvent("gnaoua")
	ctx := context.Background()

	require.NoError(t, f.service.SetSignificance(ctx, "admin", event.ID, 9))

	updated, err := f.store.Events().GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, updated.CulturalSignificance)

	assert.Error(t, f.service.SetSignificance(ctx, "admin", event.ID, 11))
	assert.Error(t, f.service.SetSignificance(ctx, "admin", event.ID, -1))
}

func TestUpdateStatus(t *testing.T) {
	f := newServiceFixture(t)
	event := f.seedEvent("gnaoua")
	ctx := context.Background()

	require.NoError(t, f.service.UpdateStatus(ctx, "admin", event.ID, catalog.StatusConfirmed, "https://festival-gnaoua.net"))
	assert.Equal(t, []int64{event.ID}, f.projector.upserts)

	require.NoError(t, f.service.UpdateStatus(ctx, "admin", event.ID, catalog.StatusCancelled, ""))
	assert.Equal(t, []int64{event.ID}, f.projector.deletes)

	updated, err := f.store.Events().GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusCancelled, updated.Status)

	assert.Error(t, f.service.UpdateStatus(ctx, "admin", event.ID, "deleted", ""))
}

func TestMerge(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	keeper := f.seedEvent("gnaoua world music")
	loser := f.seedEvent("festival gnaoua")

	source := f.store.AddSource("listings", catalog.SourceScraped, 0.5)
	require.NoError(t, f.store.Sources().CreateEventSource(ctx, catalog.EventSourceCreateParams{
		EventID: loser.ID, SourceID: source.ID, ExternalID: "l1", FetchedAt: loser.StartDate,
	}))

	artist, err := f.store.Reference().GetOrCreateArtist(ctx, "Maalem Hamid El Kasri")
	require.NoError(t, err)
	require.NoError(t, f.store.Reference().LinkEventArtist(ctx, loser.ID, artist.ID))

	require.NoError(t, f.store.Fingerprints().ReplaceForEvent(ctx, loser.ID, []catalog.Fingerprint{
		{Kind: catalog.FingerprintExact, Hash: "abc", EventID: loser.ID},
	}))

	require.NoError(t, f.service.Merge(ctx, "admin", keeper.ID, loser.ID))

	// The loser is snapshotted before deletion.
	require.Len(t, f.store.Snapshots, 1)
	assert.Equal(t, loser.ID, f.store.Snapshots[0].EventID)
	assert.Contains(t, f.store.Snapshots[0].Reason, "merged into")

	_, err = f.store.Events().GetByID(ctx, loser.ID)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	linked, err := f.store.Sources().ListByEvent(ctx, keeper.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "l1", linked[0].ExternalID)

	assert.Equal(t, []int64{artist.ID}, f.store.EventArtists[keeper.ID])
	assert.Empty(t, f.store.EventArtists[loser.ID])
	assert.Empty(t, f.store.FingerprintRows)

	assert.Equal(t, []int64{keeper.ID}, f.projector.upserts)
	assert.Equal(t, []int64{loser.ID}, f.projector.deletes)
}

func TestMergeDuplicateProvenanceCollapses(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	keeper := f.seedEvent("gnaoua world music")
	loser := f.seedEvent("festival gnaoua")

	source := f.store.AddSource("partner", catalog.SourceAPI, 0.8)
	for _, eventID := range []int64{keeper.ID, loser.ID} {
		require.NoError(t, f.store.Sources().CreateEventSource(ctx, catalog.EventSourceCreateParams{
			EventID: eventID, SourceID: source.ID, ExternalID: "same", FetchedAt: keeper.StartDate,
		}))
	}

	require.NoError(t, f.service.Merge(ctx, "admin", keeper.ID, loser.ID))

	linked, err := f.store.Sources().ListByEvent(ctx, keeper.ID)
	require.NoError(t, err)
	assert.Len(t, linked, 1, "colliding provenance rows collapse instead of duplicating")
}

func TestMergeSelf(t *testing.T) {
	f := newServiceFixture(t)
	event := f.seedEvent("gnaoua")

	assert.Error(t, f.service.Merge(context.Background(), "admin", event.ID, event.ID))
}

func TestArchive(t *testing.T) {
	f := newServiceFixture(t)
	event := f.seedEvent("gnaoua")
	ctx := context.Background()

	require.NoError(t, f.service.Archive(ctx, "system", event.ID, "event ended"))

	updated, err := f.store.Events().GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusArchived, updated.Status)
	assert.Equal(t, []int64{event.ID}, f.projector.deletes)
	assert.Empty(t, f.projector.upserts)

	require.Len(t, f.store.Actions, 1)
	assert.Equal(t, "archive", f.store.Actions[0].Action)
	assert.Equal(t, "system", f.store.Actions[0].Actor)
}

func TestReviewQueue(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	source := f.store.AddSource("listings", catalog.SourceScraped, 0.5)
	candidate, err := f.store.Candidates().Insert(ctx, catalog.CandidateInsertParams{
		SourceID:   source.ID,
		ExternalID: "r1",
		RawName:    "Moussem de Tan-Tan",
		Name:       "moussem de tan tan",
		Type:       catalog.TypeRitual,
		StartDate:  time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC),
		IngestedAt: time.Date(2025, time.April, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Candidates().MarkProcessed(ctx, candidate.ID, catalog.OutcomeReview, nil, nil))

	queue, err := f.service.ListReviewQueue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, candidate.ID, queue[0].ID)

	require.NoError(t, f.service.RejectCandidate(ctx, "admin", candidate.ID, "duplicate listing"))

	queue, err = f.service.ListReviewQueue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, queue)

	rejected, err := f.store.Candidates().GetByID(ctx, candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.OutcomeSkipped, rejected.Outcome)
}
