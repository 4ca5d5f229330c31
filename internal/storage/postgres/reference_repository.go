package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/normalize"
)

var _ catalog.ReferenceRepository = (*ReferenceRepository)(nil)

func (r *ReferenceRepository) ListCities(ctx context.Context) ([]catalog.City, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, region_id, name, slug, name_variants, latitude, longitude
  FROM cities
 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	var result []catalog.City
	for rows.Next() {
		var city catalog.City
		if err := rows.Scan(&city.ID, &city.RegionID, &city.Name, &city.Slug, &city.NameVariants, &city.Latitude, &city.Longitude); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		result = append(result, city)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cities: %w", err)
	}
	return result, nil
}

func (r *ReferenceRepository) GetCity(ctx context.Context, id int64) (*catalog.City, error) {
	var city catalog.City
	err := r.queryer().QueryRow(ctx, `
SELECT id, region_id, name, slug, name_variants, latitude, longitude
  FROM cities WHERE id = $1`, id).
		Scan(&city.ID, &city.RegionID, &city.Name, &city.Slug, &city.NameVariants, &city.Latitude, &city.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get city %d: %w", id, err)
	}
	return &city, nil
}

func (r *ReferenceRepository) GetRegion(ctx context.Context, id int64) (*catalog.Region, error) {
	var region catalog.Region
	err := r.queryer().QueryRow(ctx, `SELECT id, name, slug FROM regions WHERE id = $1`, id).
		Scan(&region.ID, &region.Name, &region.Slug)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get region %d: %w", id, err)
	}
	return &region, nil
}

func (r *ReferenceRepository) GetVenue(ctx context.Context, id int64) (*catalog.Venue, error) {
	var venue catalog.Venue
	err := r.queryer().QueryRow(ctx, `
SELECT id, city_id, name, slug, latitude, longitude FROM venues WHERE id = $1`, id).
		Scan(&venue.ID, &venue.CityID, &venue.Name, &venue.Slug, &venue.Latitude, &venue.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get venue %d: %w", id, err)
	}
	return &venue, nil
}

func (r *ReferenceRepository) GetOrCreateVenue(ctx context.Context, cityID int64, name string) (*catalog.Venue, error) {
	var venue catalog.Venue
	err := r.queryer().QueryRow(ctx, `
INSERT INTO venues (city_id, name, slug)
VALUES ($1, $2, $3)
ON CONFLICT (city_id, slug) DO UPDATE SET name = venues.name
RETURNING id, city_id, name, slug, latitude, longitude`, cityID, name, normalize.Slug(name)).
		Scan(&venue.ID, &venue.CityID, &venue.Name, &venue.Slug, &venue.Latitude, &venue.Longitude)
	if err != nil {
		return nil, fmt.Errorf("upsert venue %q: %w", name, err)
	}
	return &venue, nil
}

func (r *ReferenceRepository) GetOrCreateOrganizer(ctx context.Context, name string) (*catalog.Organizer, error) {
	var organizer catalog.Organizer
	err := r.queryer().QueryRow(ctx, `
INSERT INTO organizers (name)
VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name`, name).
		Scan(&organizer.ID, &organizer.Name)
	if err != nil {
		return nil, fmt.Errorf("upsert organizer %q: %w", name, err)
	}
	return &organizer, nil
}

func (r *ReferenceRepository) GetOrCreateGenre(ctx context.Context, name string) (*catalog.Genre, error) {
	var genre catalog.Genre
	err := r.queryer().QueryRow(ctx, `
INSERT INTO genres (name, slug)
VALUES ($1, $2)
ON CONFLICT (slug) DO UPDATE SET name = genres.name
RETURNING id, name, slug`, name, normalize.Slug(name)).
		Scan(&genre.ID, &genre.Name, &genre.Slug)
	if err != nil {
		return nil, fmt.Errorf("upsert genre %q: %w", name, err)
	}
	return &genre, nil
}

func (r *ReferenceRepository) GetOrCreateArtist(ctx context.Context, name string) (*catalog.Artist, error) {
	var artist catalog.Artist
	err := r.queryer().QueryRow(ctx, `
INSERT INTO artists (name, slug)
VALUES ($1, $2)
ON CONFLICT (slug) DO UPDATE SET name = artists.name
RETURNING id, name, slug`, name, normalize.Slug(name)).
		Scan(&artist.ID, &artist.Name, &artist.Slug)
	if err != nil {
		return nil, fmt.Errorf("upsert artist %q: %w", name, err)
	}
	return &artist, nil
}

func (r *ReferenceRepository) LinkEventGenre(ctx context.Context, eventID, genreID int64) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO event_genres (event_id, genre_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`, eventID, genreID)
	if err != nil {
		return fmt.Errorf("link genre %d to event %d: %w", genreID, eventID, err)
	}
	return nil
}

func (r *ReferenceRepository) LinkEventArtist(ctx context.Context, eventID, artistID int64) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO event_artists (event_id, artist_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`, eventID, artistID)
	if err != nil {
		return fmt.Errorf("link artist %d to event %d: %w", artistID, eventID, err)
	}
	return nil
}

func (r *ReferenceRepository) MoveEventArtists(ctx context.Context, fromEventID, toEventID int64) error {
	q := r.queryer()
	if _, err := q.Exec(ctx, `
INSERT INTO event_artists (event_id, artist_id)
SELECT $2, artist_id FROM event_artists WHERE event_id = $1
ON CONFLICT DO NOTHING`, fromEventID, toEventID); err != nil {
		return fmt.Errorf("move artists from %d to %d: %w", fromEventID, toEventID, err)
	}
	if _, err := q.Exec(ctx, `DELETE FROM event_artists WHERE event_id = $1`, fromEventID); err != nil {
		return fmt.Errorf("clear artists for event %d: %w", fromEventID, err)
	}
	return nil
}

func (r *ReferenceRepository) DeleteEventLinks(ctx context.Context, eventID int64) error {
	q := r.queryer()
	if _, err := q.Exec(ctx, `DELETE FROM event_genres WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("delete genre links for event %d: %w", eventID, err)
	}
	if _, err := q.Exec(ctx, `DELETE FROM event_artists WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("delete artist links for event %d: %w", eventID, err)
	}
	return nil
}
