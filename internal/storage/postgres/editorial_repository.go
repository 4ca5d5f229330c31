package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

var (
	_ catalog.EditorialRepository = (*EditorialRepository)(nil)
	_ catalog.RunRepository       = (*RunRepository)(nil)
)

func (r *EditorialRepository) InsertAction(ctx context.Context, params catalog.EditorialActionParams) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO editorial_actions (action, event_id, actor, payload)
VALUES ($1, $2, $3, $4)`, params.Action, params.EventID, params.Actor, params.Payload)
	if err != nil {
		return fmt.Errorf("insert editorial action: %w", err)
	}
	return nil
}

func (r *EditorialRepository) SnapshotEvent(ctx context.Context, eventID int64, reason string, payload json.RawMessage) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO event_snapshots (event_id, reason, payload)
VALUES ($1, $2, $3)`, eventID, reason, payload)
	if err != nil {
		return fmt.Errorf("snapshot event %d: %w", eventID, err)
	}
	return nil
}

func (r *EditorialRepository) ListActions(ctx context.Context, eventID int64, limit int) ([]catalog.EditorialAction, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, action, event_id, actor, payload, created_at
  FROM editorial_actions
 WHERE event_id = $1
 ORDER BY created_at DESC, id DESC
 LIMIT $2`, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("list editorial actions: %w", err)
	}
	defer rows.Close()

	var result []catalog.EditorialAction
	for rows.Next() {
		var action catalog.EditorialAction
		if err := rows.Scan(&action.ID, &action.Action, &action.EventID, &action.Actor, &action.Payload, &action.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan editorial action: %w", err)
		}
		result = append(result, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate editorial actions: %w", err)
	}
	return result, nil
}

func (r *RunRepository) InsertRun(ctx context.Context, startedAt, finishedAt time.Time, report json.RawMessage) (int64, error) {
	var id int64
	err := r.queryer().QueryRow(ctx, `
INSERT INTO ingestion_runs (started_at, finished_at, report)
VALUES ($1, $2, $3)
RETURNING id`, startedAt, finishedAt, report).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert ingestion run: %w", err)
	}
	return id, nil
}
