// Package editorial applies human-initiated commands to events: verify, pin,
// significance, status, merge, archive, plus review-queue resolution. Every
// command runs in one transaction, appends an audit row, and triggers the
// matching search projection update.
package editorial

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

// Projector mirrors the ingest-side search hook.
type Projector interface {
	UpsertEvent(ctx context.Context, eventID int64) error
	DeleteEvent(ctx context.Context, eventID int64) error
}

type Service struct {
	store     catalog.Store
	projector Projector
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(store catalog.Store, projector Projector, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		projector: projector,
		logger:    logger.With().Str("component", "editorial").Logger(),
		now:       time.Now,
	}
}

// Verify sets is_verified and stamps last_verified_at.
func (s *Service) Verify(ctx context.Context, actor string, eventID int64, flag bool, notes string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, store catalog.Store) error {
		if _, err := store.Events().GetForUpdate(ctx, eventID); err != nil {
			return err
		}
		now := s.now().UTC()
		if err := store.Events().Update(ctx, eventID, catalog.EventUpdateParams{
			IsVerified:     &flag,
			LastVerifiedAt: &now,
		}); err != nil {
			return fmt.Errorf("verify event %d: %w", eventID, err)
		}
		return s.audit(ctx, store, "verify", eventID, actor, map[string]any{"flag": flag, "notes": notes})
	})
	if err != nil {
		return err
	}
	s.upsertProjection(ctx, eventID)
	return nil
}

// Pin sets is_pinned.
func (s *Service) Pin(ctx context.Context, actor string, eventID int64, flag bool, reason string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, store catalog.Store) error {
		if _, err := store.Events().GetForUpdate(ctx, eventID); err != nil {
			return err
		}
		if err := store.Events().Update(ctx, eventID, catalog.EventUpdateParams{IsPinned: &flag}); err != nil {
			return fmt.Errorf("pin event %d: %w", eventID, err)
		}
		return s.audit(ctx, store, "pin", eventID, actor, map[string]any{"flag": flag, "reason": reason})
	})
	if err != nil {
		return err
	}
	s.upsertProjection(ctx, eventID)
	return nil
}

// SetSignificance sets cultural_significance in 0-10.
func (s *Service) SetSignificance(ctx context.Context, actor string, eventID int64, score int) error {
	if score < 0 || score > 10 {
		return fmt.Errorf("significance must be between 0 and 10, got %d", score)
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, store catalog.Store) error {
		if _, err := store.Events().GetForUpdate(ctx, eventID); err != nil {
			return err
		}
		if err := store.Events().Update(ctx, eventID, catalog.EventUpdateParams{CulturalSignificance: &score}); err != nil {
			return fmt.Errorf("set significance on event %d: %w", eventID, err)
		}
		return s.audit(ctx, store, "set_significance", eventID, actor, map[string]any{"score": score})
	})
	if err != nil {
		return err
	}
	s.upsertProjection(ctx, eventID)
	return nil
}

// UpdateStatus moves the event through its lifecycle. Status changes out of
// the indexable set remove the search document; changes into it restore it.
func (s *Service) UpdateStatus(ctx context.Context, actor string, eventID int64, status catalog.EventStatus, sourceURL string) error {
	if !catalog.ValidEventStatus(string(status)) {
		return fmt.Errorf("invalid status %q", status)
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, store catalog.Store) error {
		if _, err := store.Events().GetForUpdate(ctx, eventID); err != nil {
			return err
		}
		if err := store.Events().Update(ctx, eventID, catalog.EventUpdateParams{Status: &status}); err != nil {
			return fmt.Errorf("update status on event %d: %w", eventID, err)
		}
		return s.audit(ctx, store, "update_status", eventID, actor, map[string]any{"status": status, "source_url": sourceURL})
	})
	if err != nil {
		return err
	}
	if status.Indexable() {
		s.upsertProjection(ctx, eventID)
	} else {
		s.deleteProjection(ctx, eventID)
	}
	return nil
}

// Merge folds loseID into keepID: the losing event is snapshotted, its
// provenance and non-duplicate artists re-link to the keeper, and its row is
// deleted. Locks are taken in ascending id order.
func (s *Service) Merge(ctx context.Context, actor string, keepID, loseID int64) error {
	if keepID == loseID {
		return fmt.Errorf("cannot merge an event into itself")
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, store catalog.Store) error {
		first, second := keepID, loseID
		if loseID < keepID {
			first, second = loseID, keepID
		}
		if _, err := store.Events().GetForUpdate(ctx, first); err != nil {
			return err
		}
		if _, err := store.Events().GetForUpdate(ctx, second); err != nil {
			return err
		}

		loser, err := store.Events().GetByID(ctx, loseID)
		if err != nil {
			return err
		}
		snapshot, err := json.Marshal(loser)
		if err != nil {
			return fmt.Errorf("snapshot event %d: %w", loseID, err)
		}
		if err := store.Editorial().SnapshotEvent(ctx, loseID, fmt.Sprintf("merged into %d", keepID), snapshot); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}

		if err := store.Sources().Relink(ctx, loseID, keepID); err != nil {
			return fmt.Errorf("relink sources: %w", err)
		}
		if err := store.Reference().MoveEventArtists(ctx, loseID, keepID); err != nil {
			return fmt.Errorf("relink artists: %w", err)
		}
		if err := store.Reference().DeleteEventLinks(ctx, loseID); err != nil {
			return fmt.Errorf("remove loser links: %w", err)
		}
		if err := store.Fingerprints().DeleteForEvent(ctx, loseID); err != nil {
			return fmt.Errorf("remove loser fingerprints: %w", err)
		}
		if err := store.Events().Delete(ctx, loseID); err != nil {
			return fmt.Errorf("delete event %d: %w", loseID, err)
		}
		return s.audit(ctx, store, "merge", keepID, actor, map[string]any{"kept": keepID, "lost": loseID})
	})
	if err != nil {
		return err
	}
	s.upsertProjection(ctx, keepID)
	s.deleteProjection(ctx, loseID)
	return nil
}

// Archive is terminal for visibility: the event stays in the store, its
// search document is removed.
func (s *Service) Archive(ctx context.Context, actor string, eventID int64, reason string) error {
	status := catalog.StatusArchived
	err := s.store.WithTx(ctx, func(ctx context.Context, store catalog.Store) error {
		if _, err := store.Events().GetForUpdate(ctx, eventID); err != nil {
			return err
		}
		if err := store.Events().Update(ctx, eventID, catalog.EventUpdateParams{Status: &status}); err != nil {
			return fmt.Errorf("archive event %d: %w", eventID, err)
		}
		return s.audit(ctx, store, "archive", eventID, actor, map[string]any{"reason": reason})
	})
	if err != nil {
		return err
	}
	s.deleteProjection(ctx, eventID)
	return nil
}

// ListReviewQueue exposes candidates waiting on a human decision.
func (s *Service) ListReviewQueue(ctx context.Context, limit int) ([]catalog.Candidate, error) {
	return s.store.Candidates().ListReviewPending(ctx, limit)
}

// RejectCandidate closes a review-queue entry without touching any event.
func (s *Service) RejectCandidate(ctx context.Context, actor string, candidateID int64, reason string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, store catalog.Store) error {
		candidate, err := store.Candidates().GetByID(ctx, candidateID)
		if err != nil {
			return err
		}
		if err := store.Candidates().MarkProcessed(ctx, candidateID, catalog.OutcomeSkipped, candidate.MatchedEventID, candidate.MatchConfidence); err != nil {
			return fmt.Errorf("reject candidate %d: %w", candidateID, err)
		}
		eventID := int64(0)
		if candidate.MatchedEventID != nil {
			eventID = *candidate.MatchedEventID
		}
		return s.audit(ctx, store, "reject_candidate", eventID, actor, map[string]any{"candidate_id": candidateID, "reason": reason})
	})
}

func (s *Service) audit(ctx context.Context, store catalog.Store, action string, eventID int64, actor string, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	if err := store.Editorial().InsertAction(ctx, catalog.EditorialActionParams{
		Action:  action,
		EventID: eventID,
		Actor:   actor,
		Payload: encoded,
	}); err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}

func (s *Service) upsertProjection(ctx context.Context, eventID int64) {
	if s.projector == nil {
		return
	}
	if err := s.projector.UpsertEvent(ctx, eventID); err != nil {
		s.logger.Warn().Err(err).Int64("event_id", eventID).Msg("projection upsert failed; next rebuild reconciles")
	}
}

func (s *Service) deleteProjection(ctx context.Context, eventID int64) {
	if s.projector == nil {
		return
	}
	if err := s.projector.DeleteEvent(ctx, eventID); err != nil {
		s.logger.Warn().Err(err).Int64("event_id", eventID).Msg("projection delete failed; next rebuild reconciles")
	}
}
