package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

var _ catalog.EventRepository = (*EventRepository)(nil)

const eventColumns = `id, slug, name, type, description, start_date, end_date,
       city_id, region_id, venue_id, organizer_id, official_website, ticket_url,
       status, is_verified, is_pinned, cultural_significance, confidence_score,
       created_at, updated_at, last_verified_at`

func scanEvent(row pgx.Row) (*catalog.Event, error) {
	var event catalog.Event
	err := row.Scan(
		&event.ID,
		&event.Slug,
		&event.Name,
		&event.Type,
		&event.Description,
		&event.StartDate,
		&event.EndDate,
		&event.CityID,
		&event.RegionID,
		&event.VenueID,
		&event.OrganizerID,
		&event.OfficialWebsite,
		&event.TicketURL,
		&event.Status,
		&event.IsVerified,
		&event.IsPinned,
		&event.CulturalSignificance,
		&event.ConfidenceScore,
		&event.CreatedAt,
		&event.UpdatedAt,
		&event.LastVerifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &event, nil
}

func (r *EventRepository) Create(ctx context.Context, params catalog.EventCreateParams) (*catalog.Event, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO events (slug, name, type, description, start_date, end_date,
                    city_id, region_id, venue_id, organizer_id,
                    official_website, ticket_url, status, confidence_score)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING `+eventColumns,
		params.Slug,
		params.Name,
		params.Type,
		params.Description,
		params.StartDate,
		params.EndDate,
		params.CityID,
		params.RegionID,
		params.VenueID,
		params.OrganizerID,
		params.OfficialWebsite,
		params.TicketURL,
		params.Status,
		params.ConfidenceScore,
	)
	event, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) GetByID(ctx context.Context, id int64) (*catalog.Event, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (r *EventRepository) GetForUpdate(ctx context.Context, id int64) (*catalog.Event, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id)
	return scanEvent(row)
}

func (r *EventRepository) Update(ctx context.Context, id int64, params catalog.EventUpdateParams) error {
	sets := []string{"updated_at = now()"}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Name != nil {
		add("name", *params.Name)
	}
	if params.StartDate != nil {
		add("start_date", *params.StartDate)
	}
	if params.EndDate != nil {
		add("end_date", *params.EndDate)
	}
	if params.VenueID != nil {
		add("venue_id", *params.VenueID)
	}
	if params.OrganizerID != nil {
		add("organizer_id", *params.OrganizerID)
	}
	if params.OfficialWebsite != nil {
		add("official_website", *params.OfficialWebsite)
	}
	if params.TicketURL != nil {
		add("ticket_url", *params.TicketURL)
	}
	if params.Description != nil {
		add("description", *params.Description)
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.IsVerified != nil {
		add("is_verified", *params.IsVerified)
	}
	if params.IsPinned != nil {
		add("is_pinned", *params.IsPinned)
	}
	if params.CulturalSignificance != nil {
		add("cultural_significance", *params.CulturalSignificance)
	}
	if params.ConfidenceScore != nil {
		add("confidence_score", *params.ConfidenceScore)
	}
	if params.LastVerifiedAt != nil {
		add("last_verified_at", *params.LastVerifiedAt)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE events SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := r.queryer().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update event %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *EventRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

const projectionQuery = `
SELECT e.id, e.slug, e.name, e.type, e.description, e.start_date, e.end_date,
       e.city_id, e.region_id, e.venue_id, e.organizer_id, e.official_website,
       e.ticket_url, e.status, e.is_verified, e.is_pinned,
       e.cultural_significance, e.confidence_score, e.created_at, e.updated_at,
       e.last_verified_at,
       c.name, c.slug, rg.name, rg.slug,
       COALESCE(v.name, ''), COALESCE(v.slug, ''), COALESCE(o.name, ''),
       COALESCE(v.latitude, c.latitude), COALESCE(v.longitude, c.longitude)
  FROM events e
  JOIN cities c ON c.id = e.city_id
  JOIN regions rg ON rg.id = e.region_id
  LEFT JOIN venues v ON v.id = e.venue_id
  LEFT JOIN organizers o ON o.id = e.organizer_id`

func scanProjection(rows pgx.Rows) (*catalog.ProjectionRow, error) {
	var row catalog.ProjectionRow
	event := &row.Event
	err := rows.Scan(
		&event.ID,
		&event.Slug,
		&event.Name,
		&event.Type,
		&event.Description,
		&event.StartDate,
		&event.EndDate,
		&event.CityID,
		&event.RegionID,
		&event.VenueID,
		&event.OrganizerID,
		&event.OfficialWebsite,
		&event.TicketURL,
		&event.Status,
		&event.IsVerified,
		&event.IsPinned,
		&event.CulturalSignificance,
		&event.ConfidenceScore,
		&event.CreatedAt,
		&event.UpdatedAt,
		&event.LastVerifiedAt,
		&row.CityName,
		&row.CitySlug,
		&row.RegionName,
		&row.RegionSlug,
		&row.VenueName,
		&row.VenueSlug,
		&row.OrganizerName,
		&row.Latitude,
		&row.Longitude,
	)
	if err != nil {
		return nil, fmt.Errorf("scan projection: %w", err)
	}
	return &row, nil
}

func (r *EventRepository) GetProjection(ctx context.Context, id int64) (*catalog.ProjectionRow, error) {
	q := r.queryer()
	rows, err := q.Query(ctx, projectionQuery+` WHERE e.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get projection: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get projection: %w", err)
		}
		return nil, catalog.ErrNotFound
	}
	row, err := scanProjection(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.loadTaxonomy(ctx, q, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *EventRepository) ListIndexable(ctx context.Context, afterID int64, limit int) ([]catalog.ProjectionRow, error) {
	q := r.queryer()
	rows, err := q.Query(ctx, projectionQuery+`
 WHERE e.status IN ('announced', 'confirmed') AND e.id > $1
 ORDER BY e.id ASC
 LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list indexable: %w", err)
	}
	defer rows.Close()

	result := make([]catalog.ProjectionRow, 0, limit)
	for rows.Next() {
		row, err := scanProjection(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexable: %w", err)
	}
	rows.Close()

	for i := range result {
		if err := r.loadTaxonomy(ctx, q, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *EventRepository) CountIndexable(ctx context.Context) (int, error) {
	var count int
	err := r.queryer().QueryRow(ctx, `SELECT count(*) FROM events WHERE status IN ('announced', 'confirmed')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count indexable: %w", err)
	}
	return count, nil
}

func (r *EventRepository) ListUnverifiedSince(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id FROM events
 WHERE status != 'archived'
   AND (last_verified_at IS NULL OR last_verified_at < $1)
 ORDER BY id ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list unverified: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *EventRepository) ListEnded(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id FROM events
 WHERE status != 'archived'
   AND COALESCE(end_date, start_date) < $1
 ORDER BY id ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list ended: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *EventRepository) ListIDsByCity(ctx context.Context, cityID int64) ([]int64, error) {
	rows, err := r.queryer().Query(ctx, `SELECT id FROM events WHERE city_id = $1 ORDER BY id ASC`, cityID)
	if err != nil {
		return nil, fmt.Errorf("list by city: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *EventRepository) loadTaxonomy(ctx context.Context, q queryer, row *catalog.ProjectionRow) error {
	genreRows, err := q.Query(ctx, `
SELECT g.id, g.name, g.slug
  FROM genres g
  JOIN event_genres eg ON eg.genre_id = g.id
 WHERE eg.event_id = $1
 ORDER BY g.name ASC`, row.Event.ID)
	if err != nil {
		return fmt.Errorf("load genres: %w", err)
	}
	defer genreRows.Close()
	for genreRows.Next() {
		var genre catalog.Genre
		if err := genreRows.Scan(&genre.ID, &genre.Name, &genre.Slug); err != nil {
			return fmt.Errorf("scan genre: %w", err)
		}
		row.Genres = append(row.Genres, genre)
	}
	if err := genreRows.Err(); err != nil {
		return fmt.Errorf("iterate genres: %w", err)
	}

	artistRows, err := q.Query(ctx, `
SELECT a.id, a.name, a.slug
  FROM artists a
  JOIN event_artists ea ON ea.artist_id = a.id
 WHERE ea.event_id = $1
 ORDER BY a.name ASC`, row.Event.ID)
	if err != nil {
		return fmt.Errorf("load artists: %w", err)
	}
	defer artistRows.Close()
	for artistRows.Next() {
		var artist catalog.Artist
		if err := artistRows.Scan(&artist.ID, &artist.Name, &artist.Slug); err != nil {
			return fmt.Errorf("scan artist: %w", err)
		}
		row.Artists = append(row.Artists, artist)
	}
	if err := artistRows.Err(); err != nil {
		return fmt.Errorf("iterate artists: %w", err)
	}
	return nil
}
