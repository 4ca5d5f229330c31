package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

const validManualPayload = `{
	"source": {
		"type": "manual",
		"name": "curator-batch-2025-05",
		"reliability": 0.9
	},
	"events": [
		{
			"external_id": "tm-2025",
			"name": "Festival Timitar",
			"event_type": "festival",
			"start_date": "2025-07-02",
			"end_date": "2025-07-05",
			"city": "Agadir",
			"venue": "Place Al Amal",
			"artists": ["Oudaden"]
		},
		{
			"external_id": "jc-2025",
			"name": "Jazz au Chellah",
			"start_date": "2025-09-05",
			"city": "Rabat"
		}
	]
}`

func TestParseManualPayload(t *testing.T) {
	payload, recordErrs, err := ParseManualPayload([]byte(validManualPayload))
	require.NoError(t, err)
	assert.Empty(t, recordErrs)

	assert.Equal(t, "manual", payload.Source.Type)
	assert.Equal(t, "curator-batch-2025-05", payload.Source.Name)
	require.NotNil(t, payload.Source.Reliability)
	assert.InDelta(t, 0.9, *payload.Source.Reliability, 1e-9)
	require.Len(t, payload.Events, 2)
	assert.Equal(t, "tm-2025", payload.Events[0].ExternalID)
}

func TestParseManualPayloadDropsInvalidEvents(t *testing.T) {
	raw := `{
		"source": {"type": "manual", "name": "batch"},
		"events": [
			{"external_id": "ok", "name": "Timitar", "start_date": "2025-07-02", "city": "Agadir"},
			{"external_id": "no-name", "start_date": "2025-07-02", "city": "Agadir"},
			{"external_id": "no-city", "name": "Nameless City", "start_date": "2025-07-02"}
		]
	}`

	payload, recordErrs, err := ParseManualPayload([]byte(raw))
	require.NoError(t, err)
	require.Len(t, payload.Events, 1)
	assert.Equal(t, "ok", payload.Events[0].ExternalID)

	require.Len(t, recordErrs, 2)
	assert.Equal(t, 1, recordErrs[0].Index)
	assert.Equal(t, "no-name", recordErrs[0].ExternalID)
	assert.Equal(t, 2, recordErrs[1].Index)
}

func TestParseManualPayloadRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{`},
		{name: "unknown field", raw: `{"source": {"type": "manual", "name": "x"}, "events": [], "extra": 1}`},
		{name: "bad source type", raw: `{"source": {"type": "rumor", "name": "x"}, "events": [{"external_id": "a", "name": "A", "start_date": "2025-07-02", "city": "Agadir"}]}`},
		{name: "reliability out of range", raw: `{"source": {"type": "manual", "name": "x", "reliability": 1.5}, "events": [{"external_id": "a", "name": "A", "start_date": "2025-07-02", "city": "Agadir"}]}`},
		{name: "no events", raw: `{"source": {"type": "manual", "name": "x"}, "events": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseManualPayload([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestManualAdapterFetchAndNormalize(t *testing.T) {
	payload, _, err := ParseManualPayload([]byte(validManualPayload))
	require.NoError(t, err)

	source := catalog.Source{ID: 5, Name: "curator-batch-2025-05", Type: catalog.SourceManual, Reliability: 0.9}
	adapter := NewManualAdapter(source, payload.Events, testNormalizer())

	records, err := adapter.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tm-2025", records[0].ExternalID)

	// The cursor is meaningless for a fixed batch; any value returns
	// everything.
	again, err := adapter.Fetch(context.Background(), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, again, 2)

	params, err := adapter.Normalize(records[0])
	require.NoError(t, err)
	assert.Equal(t, int64(5), params.SourceID)
	assert.Equal(t, "Festival Timitar", params.RawName)
	assert.Equal(t, "timitar", params.Name)
	assert.Equal(t, "Agadir", params.CityName)
	assert.Nil(t, params.CityID, "city outside the canonical table stays null")
	assert.Equal(t, []string{"Oudaden"}, params.Artists)
}

func TestFromSheetRows(t *testing.T) {
	rows := []SheetRow{
		{
			"external_id": "gn-2025",
			"name":        "Festival Gnaoua",
			"event_type":  "Festival",
			"start_date":  "2025-06-26",
			"city":        "Essaouira",
			"genres":      "Gnaoua; Jazz",
			"artists":     "Maalem Hamid El Kasri",
			"confirmed":   "TRUE",
		},
		{
			"external_id": "draft-1",
			"name":        "Unconfirmed Event",
			"start_date":  "2025-08-01",
			"city":        "Rabat",
			"confirmed":   "No",
		},
		{
			"external_id": "bad-flag",
			"name":        "Bad Flag",
			"start_date":  "2025-08-01",
			"city":        "Rabat",
			"confirmed":   "maybe",
		},
		{
			"external_id": "no-name",
			"start_date":  "2025-08-01",
			"city":        "Rabat",
			"confirmed":   "yes",
		},
	}

	events, errs := FromSheetRows(rows)

	require.Len(t, events, 1)
	assert.Equal(t, "gn-2025", events[0].ExternalID)
	assert.Equal(t, "festival", events[0].EventType)
	assert.Equal(t, []string{"Gnaoua", "Jazz"}, events[0].Genres)

	require.Len(t, errs, 2)
	assert.Equal(t, 2, errs[0].Index, "uncoercible confirmed cell is reported")
	assert.Equal(t, "bad-flag", errs[0].ExternalID)
	assert.Equal(t, 3, errs[1].Index, "invalid row is reported")
}

func TestFromSheetRowsWithoutConfirmedColumn(t *testing.T) {
	rows := []SheetRow{{
		"external_id": "x",
		"name":        "Event",
		"start_date":  "2025-08-01",
		"city":        "Rabat",
	}}

	events, errs := FromSheetRows(rows)
	require.Empty(t, errs)
	assert.Len(t, events, 1)
}

func TestCoerceBool(t *testing.T) {
	tests := []struct {
		cell    string
		want    bool
		wantErr bool
	}{
		{"TRUE", true, false},
		{"true", true, false},
		{"Yes", true, false},
		{"1", true, false},
		{" FALSE ", false, false},
		{"no", false, false},
		{"0", false, false},
		{"oui", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		got, err := CoerceBool(tt.cell)
		if tt.wantErr {
			assert.Error(t, err, "cell=%q", tt.cell)
			continue
		}
		require.NoError(t, err, "cell=%q", tt.cell)
		assert.Equal(t, tt.want, got, "cell=%q", tt.cell)
	}
}
