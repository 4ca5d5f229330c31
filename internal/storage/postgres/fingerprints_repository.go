package postgres

import (
	"context"
	"fmt"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

var _ catalog.FingerprintRepository = (*FingerprintRepository)(nil)

func (r *FingerprintRepository) FindEventIDs(ctx context.Context, kind catalog.FingerprintKind, hash string) ([]int64, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT event_id FROM fingerprints
 WHERE kind = $1 AND hash = $2
 ORDER BY event_id ASC`, kind, hash)
	if err != nil {
		return nil, fmt.Errorf("find fingerprints: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *FingerprintRepository) ReplaceForEvent(ctx context.Context, eventID int64, fingerprints []catalog.Fingerprint) error {
	q := r.queryer()
	if _, err := q.Exec(ctx, `DELETE FROM fingerprints WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("clear fingerprints for event %d: %w", eventID, err)
	}
	for _, fp := range fingerprints {
		if _, err := q.Exec(ctx, `
INSERT INTO fingerprints (kind, hash, event_id)
VALUES ($1, $2, $3)
ON CONFLICT (kind, hash, event_id) DO NOTHING`, fp.Kind, fp.Hash, eventID); err != nil {
			return fmt.Errorf("insert %s fingerprint for event %d: %w", fp.Kind, eventID, err)
		}
	}
	return nil
}

func (r *FingerprintRepository) DeleteForEvent(ctx context.Context, eventID int64) error {
	if _, err := r.queryer().Exec(ctx, `DELETE FROM fingerprints WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("delete fingerprints for event %d: %w", eventID, err)
	}
	return nil
}
