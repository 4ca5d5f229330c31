// Package confidence recomputes the per-event confidence score from source
// reliability, completeness, cross-source agreement, recency, and the primary
// source's historical accuracy.
package confidence

import (
	"context"
	"fmt"
	"time"

	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/normalize"
)

// Component weights. They sum to 1, which keeps the score in [0,1].
const (
	weightReliability  = 0.35
	weightCompleteness = 0.25
	weightAgreement    = 0.20
	weightRecency      = 0.10
	weightHistory      = 0.10
)

const (
	noSourceReliability = 0.3
	defaultAccuracy     = 0.5
	recencyWindowDays   = 90
)

// Inputs are the extracted facts Compute scores. Kept separate from the
// store-reading Scorer so the formula is testable in isolation.
type Inputs struct {
	MaxReliability     float64 // 0.3 substituted when HasSources is false
	HasSources         bool
	RequiredPresent    int
	RequiredTotal      int
	OptionalPresent    int
	OptionalTotal      int
	Agreement          float64 // already averaged; 0.5 when single-source
	DaysSinceVerified  float64
	HistoricalAccuracy float64
}

// Compute applies the weighted formula. The result is clamped to [0,1].
func Compute(in Inputs) float64 {
	reliability := in.MaxReliability
	if !in.HasSources {
		reliability = noSourceReliability
	}

	completeness := 0.0
	if in.RequiredTotal > 0 {
		completeness += 0.7 * float64(in.RequiredPresent) / float64(in.RequiredTotal)
	}
	if in.OptionalTotal > 0 {
		completeness += 0.3 * float64(in.OptionalPresent) / float64(in.OptionalTotal)
	}

	recency := 1 - in.DaysSinceVerified/recencyWindowDays
	if recency < 0 {
		recency = 0
	}

	score := weightReliability*reliability +
		weightCompleteness*completeness +
		weightAgreement*in.Agreement +
		weightRecency*recency +
		weightHistory*in.HistoricalAccuracy

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Store is the view the scorer needs. Satisfied by catalog.Store.
type Store interface {
	Events() catalog.EventRepository
	Sources() catalog.SourceRepository
}

type Scorer struct {
	now func() time.Time
}

func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Rescore recomputes and writes back confidence_score and last_verified_at
// for one event. Callers run it inside the candidate's transaction so the
// score is never observed stale relative to the source set.
func (s *Scorer) Rescore(ctx context.Context, store Store, eventID int64) error {
	event, err := store.Events().GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("rescore event %d: %w", eventID, err)
	}
	linked, err := store.Sources().ListByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("rescore event %d: load sources: %w", eventID, err)
	}

	now := s.now().UTC()
	score := Compute(s.inputs(event, linked, now))

	if err := store.Events().Update(ctx, eventID, catalog.EventUpdateParams{
		ConfidenceScore: &score,
		LastVerifiedAt:  &now,
	}); err != nil {
		return fmt.Errorf("rescore event %d: write back: %w", eventID, err)
	}
	return nil
}

func (s *Scorer) inputs(event *catalog.Event, linked []catalog.LinkedSource, now time.Time) Inputs {
	in := Inputs{
		HasSources:         len(linked) > 0,
		RequiredTotal:      4, // name, start_date, city, status
		OptionalTotal:      4, // end_date, venue, description, official_website
		HistoricalAccuracy: defaultAccuracy,
		Agreement:          agreementScore(linked),
	}

	var primary *catalog.LinkedSource
	for i, src := range linked {
		if src.Reliability > in.MaxReliability {
			in.MaxReliability = src.Reliability
		}
		if primary == nil || src.Reliability > primary.Reliability {
			primary = &linked[i]
		}
	}
	if primary != nil && primary.HistoricalAccuracy != nil {
		in.HistoricalAccuracy = *primary.HistoricalAccuracy
	}

	if event.Name != "" {
		in.RequiredPresent++
	}
	if !event.StartDate.IsZero() {
		in.RequiredPresent++
	}
	if event.CityID != 0 {
		in.RequiredPresent++
	}
	if event.Status != "" {
		in.RequiredPresent++
	}
	if event.EndDate != nil {
		in.OptionalPresent++
	}
	if event.VenueID != nil {
		in.OptionalPresent++
	}
	if event.Description != "" {
		in.OptionalPresent++
	}
	if event.OfficialWebsite != "" {
		in.OptionalPresent++
	}

	if event.LastVerifiedAt != nil {
		in.DaysSinceVerified = now.Sub(*event.LastVerifiedAt).Hours() / 24
	}
	return in
}

// agreementScore compares the per-source reported start date and venue name.
// Each attribute contributes 1 when all reporting sources agree, 0 otherwise,
// averaged over attributes at least two sources carry. A single source scores
// the neutral 0.5, and repeat rows from one source are no corroboration.
func agreementScore(linked []catalog.LinkedSource) float64 {
	if distinctSources(linked) <= 1 {
		return 0.5
	}

	var considered, agreed int

	var dates []time.Time
	for _, src := range linked {
		if src.ReportedStartDate != nil {
			dates = append(dates, src.ReportedStartDate.UTC())
		}
	}
	if len(dates) >= 2 {
		considered++
		if allDatesEqual(dates) {
			agreed++
		}
	}

	var venues []string
	for _, src := range linked {
		if src.ReportedVenue != "" {
			venues = append(venues, normalize.Text(src.ReportedVenue))
		}
	}
	if len(venues) >= 2 {
		considered++
		if allStringsEqual(venues) {
			agreed++
		}
	}

	if considered == 0 {
		return 0.5
	}
	return float64(agreed) / float64(considered)
}

func distinctSources(linked []catalog.LinkedSource) int {
	seen := make(map[int64]struct{}, len(linked))
	for _, src := range linked {
		seen[src.SourceID] = struct{}{}
	}
	return len(seen)
}

func allDatesEqual(dates []time.Time) bool {
	for _, d := range dates[1:] {
		if !d.Equal(dates[0]) {
			return false
		}
	}
	return true
}

func allStringsEqual(values []string) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
