package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

var _ catalog.CandidateRepository = (*CandidateRepository)(nil)

const candidateColumns = `id, source_id, external_id, source_url, raw_name, raw_payload,
       name, type, start_date, end_date, city_id, city_name, venue_name,
       organizer_name, description, official_website, ticket_url, genres,
       artists, processed, outcome, matched_event_id, match_confidence,
       ingested_at, processed_at`

func scanCandidate(row pgx.Row) (*catalog.Candidate, error) {
	var c catalog.Candidate
	var outcome *string
	err := row.Scan(
		&c.ID,
		&c.SourceID,
		&c.ExternalID,
		&c.SourceURL,
		&c.RawName,
		&c.RawPayload,
		&c.Name,
		&c.Type,
		&c.StartDate,
		&c.EndDate,
		&c.CityID,
		&c.CityName,
		&c.VenueName,
		&c.OrganizerName,
		&c.Description,
		&c.OfficialWebsite,
		&c.TicketURL,
		&c.Genres,
		&c.Artists,
		&c.Processed,
		&outcome,
		&c.MatchedEventID,
		&c.MatchConfidence,
		&c.IngestedAt,
		&c.ProcessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan candidate: %w", err)
	}
	if outcome != nil {
		c.Outcome = *outcome
	}
	return &c, nil
}

func (r *CandidateRepository) Insert(ctx context.Context, params catalog.CandidateInsertParams) (*catalog.Candidate, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO candidates (source_id, external_id, source_url, raw_name, raw_payload,
                        name, type, start_date, end_date, city_id, city_name,
                        venue_name, organizer_name, description,
                        official_website, ticket_url, genres, artists, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
RETURNING `+candidateColumns,
		params.SourceID,
		params.ExternalID,
		params.SourceURL,
		params.RawName,
		params.RawPayload,
		params.Name,
		params.Type,
		params.StartDate,
		params.EndDate,
		params.CityID,
		params.CityName,
		params.VenueName,
		params.OrganizerName,
		params.Description,
		params.OfficialWebsite,
		params.TicketURL,
		params.Genres,
		params.Artists,
		params.IngestedAt,
	)
	candidate, err := scanCandidate(row)
	if err != nil {
		return nil, fmt.Errorf("insert candidate: %w", err)
	}
	return candidate, nil
}

func (r *CandidateRepository) GetByID(ctx context.Context, id int64) (*catalog.Candidate, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id)
	return scanCandidate(row)
}

func (r *CandidateRepository) MarkProcessed(ctx context.Context, id int64, outcome string, matchedEventID *int64, matchConfidence *float64) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE candidates
   SET processed = true, outcome = $2, matched_event_id = $3,
       match_confidence = $4, processed_at = now()
 WHERE id = $1`, id, outcome, matchedEventID, matchConfidence)
	if err != nil {
		return fmt.Errorf("mark candidate %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *CandidateRepository) ListUnprocessed(ctx context.Context, limit int) ([]catalog.Candidate, error) {
	return r.list(ctx, `
SELECT `+candidateColumns+` FROM candidates
 WHERE NOT processed
 ORDER BY ingested_at ASC, id ASC
 LIMIT $1`, limit)
}

func (r *CandidateRepository) ListReviewPending(ctx context.Context, limit int) ([]catalog.Candidate, error) {
	return r.list(ctx, `
SELECT `+candidateColumns+` FROM candidates
 WHERE processed AND outcome = 'review'
 ORDER BY ingested_at ASC, id ASC
 LIMIT $1`, limit)
}

func (r *CandidateRepository) DeleteUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM candidates WHERE NOT processed AND ingested_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale candidates: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *CandidateRepository) list(ctx context.Context, query string, limit int) ([]catalog.Candidate, error) {
	rows, err := r.queryer().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var result []catalog.Candidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return result, nil
}
