// Package search owns the read-optimized projection of the event catalog in
// the search engine. The synchronizer here is the only writer to the search
// collection; it never reads the collection to make decisions about the
// authoritative store.
package search

import "github.com/mawsim/catalog/internal/search/typesense"

// CollectionName is the single collection the synchronizer owns.
const CollectionName = "events"

func boolPtr(v bool) *bool { return &v }

// Schema declares the events collection: a fixed projection of the Event
// entity enriched with derived fields. Date-like fields are 64-bit Unix
// seconds; start_date is the default sort.
func Schema() typesense.CollectionSchema {
	return typesense.CollectionSchema{
		Name:                CollectionName,
		DefaultSortingField: "start_date",
		TokenSeparators:     []string{"-", "'"},
		Fields: []typesense.Field{
			{Name: "name", Type: "string", Infix: true},
			{Name: "slug", Type: "string", Index: boolPtr(false), Optional: true},
			{Name: "event_type", Type: "string", Facet: true},
			{Name: "description", Type: "string", Optional: true},
			{Name: "start_date", Type: "int64", Facet: true},
			{Name: "end_date", Type: "int64", Optional: true},
			{Name: "year", Type: "int32", Facet: true},
			{Name: "month", Type: "int32", Facet: true},
			{Name: "city_id", Type: "int32", Facet: true},
			{Name: "region_id", Type: "int32", Facet: true},
			{Name: "city_name", Type: "string", Facet: true},
			{Name: "region_name", Type: "string", Facet: true},
			{Name: "city_slug", Type: "string", Index: boolPtr(false), Optional: true},
			{Name: "region_slug", Type: "string", Index: boolPtr(false), Optional: true},
			{Name: "venue_name", Type: "string", Optional: true},
			{Name: "venue_slug", Type: "string", Index: boolPtr(false), Optional: true},
			{Name: "geo_location", Type: "geopoint", Optional: true},
			{Name: "genres", Type: "string[]", Facet: true, Optional: true},
			{Name: "genre_slugs", Type: "string[]", Facet: true, Optional: true},
			{Name: "artists", Type: "string[]", Infix: true, Optional: true},
			{Name: "artist_slugs", Type: "string[]", Index: boolPtr(false), Optional: true},
			{Name: "organizer_name", Type: "string", Optional: true},
			{Name: "official_website", Type: "string", Index: boolPtr(false), Optional: true},
			{Name: "status", Type: "string", Facet: true},
			{Name: "confidence_score", Type: "float"},
			{Name: "is_verified", Type: "bool", Facet: true},
			{Name: "is_pinned", Type: "bool"},
			{Name: "cultural_significance", Type: "int32"},
			{Name: "has_tickets", Type: "bool", Facet: true},
			{Name: "updated_at", Type: "int64"},
		},
	}
}
