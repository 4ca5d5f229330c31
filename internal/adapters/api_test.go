package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

const testFeed = `[
	{
		"id": "gn-2025",
		"url": "https://partner.example.com/events/gn-2025",
		"name": "Festival Gnaoua 2025",
		"event_type": "festival",
		"start_date": "2025-06-26",
		"end_date": "2025-06-28",
		"city": "Essaouira",
		"venue": "Place Moulay Hassan",
		"genres": ["Gnaoua"],
		"artists": ["Maalem Hamid El Kasri"]
	},
	{
		"id": "jc-2025",
		"name": "Jazz au Chellah",
		"start_date": "2025-09-05",
		"city": "Marrakech"
	}
]`

func newTestAPIAdapter(t *testing.T, handler http.Handler) *APIAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAPIAdapter(
		catalog.Source{ID: 10, Name: "partner", Type: catalog.SourceAPI, Reliability: 0.8},
		server.URL,
		"secret-key",
		testNormalizer(),
	)
}

func TestAPIFetch(t *testing.T) {
	var gotAuth, gotSince string
	adapter := newTestAPIAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotSince = r.URL.Query().Get("updated_since")
		fmt.Fprint(w, testFeed)
	}))

	since := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	records, err := adapter.Fetch(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "2025-05-01T00:00:00Z", gotSince)

	require.Len(t, records, 2)
	assert.Equal(t, "gn-2025", records[0].ExternalID)
	assert.Equal(t, "https://partner.example.com/events/gn-2025", records[0].SourceURL)
	assert.Equal(t, "jc-2025", records[1].ExternalID)
	assert.Contains(t, records[1].SourceURL, "/events", "records without a url fall back to the feed url")
}

func TestAPIFetchNoCursorOmitsParam(t *testing.T) {
	adapter := newTestAPIAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("updated_since"))
		fmt.Fprint(w, "[]")
	}))

	records, err := adapter.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAPIFetchMissingID(t *testing.T) {
	adapter := newTestAPIAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"name": "nameless", "start_date": "2025-06-26"}]`)
	}))

	_, err := adapter.Fetch(context.Background(), time.Time{})
	assert.Error(t, err)
}

func TestAPIFetchRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	adapter := newTestAPIAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "[]")
	}))

	_, err := adapter.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAPIFetchDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	adapter := newTestAPIAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := adapter.Fetch(context.Background(), time.Time{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPINormalize(t *testing.T) {
	adapter := newTestAPIAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testFeed)
	}))

	records, err := adapter.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	params, err := adapter.Normalize(records[0])
	require.NoError(t, err)
	assert.Equal(t, "gn-2025", params.ExternalID)
	assert.Equal(t, "Festival Gnaoua 2025", params.RawName)
	assert.Equal(t, catalog.TypeFestival, params.Type)
	require.NotNil(t, params.CityID)
	assert.Equal(t, int64(2), *params.CityID)
	assert.Equal(t, []string{"Maalem Hamid El Kasri"}, params.Artists)

	// Re-normalizing the same record is stable.
	again, err := adapter.Normalize(records[0])
	require.NoError(t, err)
	assert.Equal(t, params, again)
}
