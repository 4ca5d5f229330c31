package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

func cityID(id int64) *int64 { return &id }

func TestGenerateAllKinds(t *testing.T) {
	input := Input{
		NormalizedName: "gnaoua world music",
		StartDate:      time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC),
		CityID:         cityID(2),
	}

	fingerprints := Generate(input)
	require.Len(t, fingerprints, 4)

	kinds := make(map[catalog.FingerprintKind]string, 4)
	for _, fp := range fingerprints {
		assert.Len(t, fp.Hash, 64)
		kinds[fp.Kind] = fp.Hash
	}
	assert.Contains(t, kinds, catalog.FingerprintExact)
	assert.Contains(t, kinds, catalog.FingerprintFuzzyName)
	assert.Contains(t, kinds, catalog.FingerprintDateLocation)
	assert.Contains(t, kinds, catalog.FingerprintWeekLocation)
}

func TestGenerateStable(t *testing.T) {
	input := Input{
		NormalizedName: "gnaoua world music",
		StartDate:      time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC),
		CityID:         cityID(2),
	}

	first := Generate(input)
	second := Generate(input)
	assert.Equal(t, first, second)
}

func TestGenerateFuzzyKeyTruncatesName(t *testing.T) {
	start := time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC)
	long := Generate(Input{NormalizedName: "gnaoua world music essaouira beach", StartDate: start, CityID: cityID(2)})
	short := Generate(Input{NormalizedName: "gnaoua world music", StartDate: start, CityID: cityID(2)})

	hashes := func(fps []catalog.Fingerprint) map[catalog.FingerprintKind]string {
		m := make(map[catalog.FingerprintKind]string)
		for _, fp := range fps {
			m[fp.Kind] = fp.Hash
		}
		return m
	}
	longByKind, shortByKind := hashes(long), hashes(short)

	assert.NotEqual(t, longByKind[catalog.FingerprintExact], shortByKind[catalog.FingerprintExact])
	assert.Equal(t, longByKind[catalog.FingerprintFuzzyName], shortByKind[catalog.FingerprintFuzzyName])
}

func TestGenerateWeekKeySharedAcrossWeek(t *testing.T) {
	thursday := Generate(Input{NormalizedName: "gnaoua", StartDate: time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC), CityID: cityID(2)})
	saturday := Generate(Input{NormalizedName: "gnaoua", StartDate: time.Date(2025, time.June, 28, 0, 0, 0, 0, time.UTC), CityID: cityID(2)})

	find := func(fps []catalog.Fingerprint, kind catalog.FingerprintKind) string {
		for _, fp := range fps {
			if fp.Kind == kind {
				return fp.Hash
			}
		}
		return ""
	}
	assert.Equal(t, find(thursday, catalog.FingerprintWeekLocation), find(saturday, catalog.FingerprintWeekLocation))
	assert.NotEqual(t, find(thursday, catalog.FingerprintDateLocation), find(saturday, catalog.FingerprintDateLocation))
}

func TestGenerateMissingComponents(t *testing.T) {
	start := time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, Generate(Input{NormalizedName: "gnaoua", StartDate: start}))
	assert.Nil(t, Generate(Input{NormalizedName: "gnaoua", CityID: cityID(2)}))

	nameless := Generate(Input{StartDate: start, CityID: cityID(2)})
	require.Len(t, nameless, 2)
	assert.Equal(t, catalog.FingerprintDateLocation, nameless[0].Kind)
	assert.Equal(t, catalog.FingerprintWeekLocation, nameless[1].Kind)
}

func TestGenerateCityChangesHash(t *testing.T) {
	start := time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC)
	a := Generate(Input{NormalizedName: "gnaoua", StartDate: start, CityID: cityID(1)})
	b := Generate(Input{NormalizedName: "gnaoua", StartDate: start, CityID: cityID(2)})
	for i := range a {
		assert.NotEqual(t, a[i].Hash, b[i].Hash)
	}
}

func TestForEvent(t *testing.T) {
	event := &catalog.Event{
		ID:        42,
		Name:      "Festival Gnaoua 2025",
		StartDate: time.Date(2025, time.June, 26, 0, 0, 0, 0, time.UTC),
		CityID:    2,
	}

	fingerprints := ForEvent(event)
	require.Len(t, fingerprints, 4)
	for _, fp := range fingerprints {
		assert.Equal(t, int64(42), fp.EventID)
	}

	// The exact key uses the normalized name, so the raw name with its stop
	// words and year collapses to the same key as the clean form.
	clean := Generate(Input{NormalizedName: "gnaoua", StartDate: event.StartDate, CityID: cityID(2)})
	assert.Equal(t, clean[0].Hash, fingerprints[0].Hash)
}
