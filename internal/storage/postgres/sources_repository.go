package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

var _ catalog.SourceRepository = (*SourceRepository)(nil)

const sourceColumns = `id, name, type, reliability, is_active, last_fetch_at, historical_accuracy`

func scanSource(row pgx.Row) (*catalog.Source, error) {
	var source catalog.Source
	err := row.Scan(
		&source.ID,
		&source.Name,
		&source.Type,
		&source.Reliability,
		&source.IsActive,
		&source.LastFetchAt,
		&source.HistoricalAccuracy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	return &source, nil
}

func (r *SourceRepository) ListActive(ctx context.Context) ([]catalog.Source, error) {
	rows, err := r.queryer().Query(ctx, `SELECT `+sourceColumns+` FROM sources WHERE is_active ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var result []catalog.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return result, nil
}

func (r *SourceRepository) GetByID(ctx context.Context, id int64) (*catalog.Source, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	return scanSource(row)
}

func (r *SourceRepository) GetOrCreate(ctx context.Context, name string, sourceType catalog.SourceType, reliability float64) (*catalog.Source, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO sources (name, type, reliability, is_active)
VALUES ($1, $2, $3, true)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING `+sourceColumns, name, sourceType, reliability)
	source, err := scanSource(row)
	if err != nil {
		return nil, fmt.Errorf("upsert source %q: %w", name, err)
	}
	return source, nil
}

func (r *SourceRepository) UpdateLastFetch(ctx context.Context, id int64, fetchedAt time.Time) error {
	tag, err := r.queryer().Exec(ctx, `UPDATE sources SET last_fetch_at = $2 WHERE id = $1`, id, fetchedAt)
	if err != nil {
		return fmt.Errorf("update source cursor %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// CreateEventSource always appends. Re-ingesting the same external_id records
// a second provenance row rather than refreshing the first, matching the
// candidate store's append-only behavior.
func (r *SourceRepository) CreateEventSource(ctx context.Context, params catalog.EventSourceCreateParams) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO event_sources (event_id, source_id, external_id, source_url, payload,
                           reported_start_date, reported_venue, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		params.EventID,
		params.SourceID,
		params.ExternalID,
		params.SourceURL,
		params.Payload,
		params.ReportedStartDate,
		params.ReportedVenue,
		params.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("link event %d to source %d: %w", params.EventID, params.SourceID, err)
	}
	return nil
}

func (r *SourceRepository) ListByEvent(ctx context.Context, eventID int64) ([]catalog.LinkedSource, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT es.id, es.event_id, es.source_id, es.external_id, es.source_url,
       es.payload, es.reported_start_date, es.reported_venue, es.fetched_at,
       s.name, s.type, s.reliability, s.historical_accuracy
  FROM event_sources es
  JOIN sources s ON s.id = es.source_id
 WHERE es.event_id = $1
 ORDER BY es.id ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event sources: %w", err)
	}
	defer rows.Close()

	var result []catalog.LinkedSource
	for rows.Next() {
		var linked catalog.LinkedSource
		if err := rows.Scan(
			&linked.ID,
			&linked.EventID,
			&linked.SourceID,
			&linked.ExternalID,
			&linked.SourceURL,
			&linked.Payload,
			&linked.ReportedStartDate,
			&linked.ReportedVenue,
			&linked.FetchedAt,
			&linked.SourceName,
			&linked.SourceType,
			&linked.Reliability,
			&linked.HistoricalAccuracy,
		); err != nil {
			return nil, fmt.Errorf("scan event source: %w", err)
		}
		result = append(result, linked)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event sources: %w", err)
	}
	return result, nil
}

func (r *SourceRepository) Relink(ctx context.Context, fromEventID, toEventID int64) error {
	q := r.queryer()
	// Rows that would collide with a linkage the keeper already has are
	// dropped rather than moved.
	if _, err := q.Exec(ctx, `
DELETE FROM event_sources es
 WHERE es.event_id = $1
   AND EXISTS (
     SELECT 1 FROM event_sources keep
      WHERE keep.event_id = $2
        AND keep.source_id = es.source_id
        AND keep.external_id = es.external_id
   )`, fromEventID, toEventID); err != nil {
		return fmt.Errorf("drop duplicate linkages: %w", err)
	}
	if _, err := q.Exec(ctx, `UPDATE event_sources SET event_id = $2 WHERE event_id = $1`, fromEventID, toEventID); err != nil {
		return fmt.Errorf("relink sources from %d to %d: %w", fromEventID, toEventID, err)
	}
	return nil
}
