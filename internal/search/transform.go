package search

import (
	"strconv"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

// Document is the denormalized search projection of one event. The event row
// stays the single source of truth; denormalization happens only here.
type Document struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Slug                 string     `json:"slug,omitempty"`
	EventType            string     `json:"event_type"`
	Description          string     `json:"description,omitempty"`
	StartDate            int64      `json:"start_date"`
	EndDate              *int64     `json:"end_date,omitempty"`
	Year                 int32      `json:"year"`
	Month                int32      `json:"month"`
	CityID               int32      `json:"city_id"`
	RegionID             int32      `json:"region_id"`
	CityName             string     `json:"city_name"`
	RegionName           string     `json:"region_name"`
	CitySlug             string     `json:"city_slug,omitempty"`
	RegionSlug           string     `json:"region_slug,omitempty"`
	VenueName            string     `json:"venue_name,omitempty"`
	VenueSlug            string     `json:"venue_slug,omitempty"`
	GeoLocation          []float64  `json:"geo_location,omitempty"`
	Genres               []string   `json:"genres,omitempty"`
	GenreSlugs           []string   `json:"genre_slugs,omitempty"`
	Artists              []string   `json:"artists,omitempty"`
	ArtistSlugs          []string   `json:"artist_slugs,omitempty"`
	OrganizerName        string     `json:"organizer_name,omitempty"`
	OfficialWebsite      string     `json:"official_website,omitempty"`
	Status               string     `json:"status"`
	ConfidenceScore      float64    `json:"confidence_score"`
	IsVerified           bool       `json:"is_verified"`
	IsPinned             bool       `json:"is_pinned"`
	CulturalSignificance int32      `json:"cultural_significance"`
	HasTickets           bool       `json:"has_tickets"`
	UpdatedAt            int64      `json:"updated_at"`
}

// Transform materializes the search document for one projected event row.
func Transform(row *catalog.ProjectionRow) Document {
	event := row.Event
	start := event.StartDate.UTC()

	doc := Document{
		ID:                   strconv.FormatInt(event.ID, 10),
		Name:                 event.Name,
		Slug:                 event.Slug,
		EventType:            string(event.Type),
		Description:          event.Description,
		StartDate:            start.Unix(),
		Year:                 int32(start.Year()),
		Month:                int32(start.Month()),
		CityID:               int32(event.CityID),
		RegionID:             int32(event.RegionID),
		CityName:             row.CityName,
		RegionName:           row.RegionName,
		CitySlug:             row.CitySlug,
		RegionSlug:           row.RegionSlug,
		VenueName:            row.VenueName,
		VenueSlug:            row.VenueSlug,
		OrganizerName:        row.OrganizerName,
		OfficialWebsite:      event.OfficialWebsite,
		Status:               string(event.Status),
		ConfidenceScore:      event.ConfidenceScore,
		IsVerified:           event.IsVerified,
		IsPinned:             event.IsPinned,
		CulturalSignificance: int32(event.CulturalSignificance),
		HasTickets:           event.TicketURL != "",
		UpdatedAt:            event.UpdatedAt.UTC().Unix(),
	}

	if event.EndDate != nil {
		end := event.EndDate.UTC().Unix()
		doc.EndDate = &end
	}
	if row.Latitude != nil && row.Longitude != nil {
		doc.GeoLocation = []float64{*row.Latitude, *row.Longitude}
	}
	for _, genre := range row.Genres {
		doc.Genres = append(doc.Genres, genre.Name)
		doc.GenreSlugs = append(doc.GenreSlugs, genre.Slug)
	}
	for _, artist := range row.Artists {
		doc.Artists = append(doc.Artists, artist.Name)
		doc.ArtistSlugs = append(doc.ArtistSlugs, artist.Slug)
	}
	return doc
}
