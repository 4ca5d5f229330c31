// Package dedup maps a staged candidate to one of {create, merge, review}
// against the authoritative store. The resolver is read-only; it performs no
// writes.
package dedup

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xrash/smetrics"

	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/fingerprint"
	"github.com/mawsim/catalog/internal/normalize"
)

// Action is the resolver's verdict for one candidate.
type Action string

const (
	ActionCreate Action = "create"
	ActionMerge  Action = "merge"
	ActionReview Action = "review"
)

// MatchType records which fingerprint bucket produced the decision.
type MatchType string

const (
	MatchExact        MatchType = "exact"
	MatchFuzzyName    MatchType = "fuzzy_name"
	MatchDateLocation MatchType = "date_location"
	MatchNone         MatchType = "none"
)

// Result is the resolver output the merge writer applies.
type Result struct {
	Action          Action
	ExistingEventID *int64
	Confidence      float64
	MatchType       MatchType
}

// Thresholds for the ordered matching stages.
const (
	exactConfidence  = 0.95
	fuzzyThreshold   = 0.85
	reviewThreshold  = 0.70
	jaroWinklerBoost = 0.7
	jaroWinklerSize  = 4
)

// Weights of the similarity components between a candidate and an event.
const (
	weightName     = 0.40
	weightDate     = 0.30
	weightLocation = 0.20
	weightVenue    = 0.10
)

// Store is the read-only view the resolver needs. Satisfied by
// catalog.Store.
type Store interface {
	Events() catalog.EventRepository
	Fingerprints() catalog.FingerprintRepository
	Sources() catalog.SourceRepository
	Reference() catalog.ReferenceRepository
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve runs the ordered matching stages; the first hit wins.
//
//  1. exact fingerprint -> merge at 0.95
//  2. fuzzy_name fingerprint + weighted similarity >= 0.85 -> merge
//  3. date_location fingerprint + Jaro-Winkler >= 0.70 -> review
//  4. otherwise -> create at 1.0
func (r *Resolver) Resolve(ctx context.Context, candidate *catalog.Candidate) (Result, error) {
	fingerprints := fingerprint.Generate(fingerprint.Input{
		NormalizedName: candidate.Name,
		StartDate:      candidate.StartDate,
		CityID:         candidate.CityID,
	})
	byKind := make(map[catalog.FingerprintKind]string, len(fingerprints))
	for _, fp := range fingerprints {
		byKind[fp.Kind] = fp.Hash
	}

	if hash, ok := byKind[catalog.FingerprintExact]; ok {
		eventID, found, err := r.bestMatch(ctx, catalog.FingerprintExact, hash, nil)
		if err != nil {
			return Result{}, err
		}
		if found {
			return Result{Action: ActionMerge, ExistingEventID: &eventID, Confidence: exactConfidence, MatchType: MatchExact}, nil
		}
	}

	if hash, ok := byKind[catalog.FingerprintFuzzyName]; ok {
		accept := func(event *catalog.Event) (float64, bool, error) {
			score, err := r.weightedSimilarity(ctx, candidate, event)
			if err != nil {
				return 0, false, err
			}
			return score, score >= fuzzyThreshold, nil
		}
		eventID, score, found, err := r.bestScoredMatch(ctx, catalog.FingerprintFuzzyName, hash, accept)
		if err != nil {
			return Result{}, err
		}
		if found {
			return Result{Action: ActionMerge, ExistingEventID: &eventID, Confidence: score, MatchType: MatchFuzzyName}, nil
		}
	}

	if hash, ok := byKind[catalog.FingerprintDateLocation]; ok {
		accept := func(event *catalog.Event) (float64, bool, error) {
			score := smetrics.JaroWinkler(candidate.Name, normalize.Text(event.Name), jaroWinklerBoost, jaroWinklerSize)
			return score, score >= reviewThreshold, nil
		}
		eventID, score, found, err := r.bestScoredMatch(ctx, catalog.FingerprintDateLocation, hash, accept)
		if err != nil {
			return Result{}, err
		}
		if found {
			return Result{Action: ActionReview, ExistingEventID: &eventID, Confidence: score, MatchType: MatchDateLocation}, nil
		}
	}

	return Result{Action: ActionCreate, Confidence: 1.0, MatchType: MatchNone}, nil
}

// bestMatch picks one event from a fingerprint bucket. Ties break by highest
// source reliability, then earliest created_at, then lowest id.
func (r *Resolver) bestMatch(ctx context.Context, kind catalog.FingerprintKind, hash string, _ any) (int64, bool, error) {
	ids, err := r.store.Fingerprints().FindEventIDs(ctx, kind, hash)
	if err != nil {
		return 0, false, fmt.Errorf("lookup %s fingerprint: %w", kind, err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	if len(ids) == 1 {
		return ids[0], true, nil
	}

	best, err := r.tieBreak(ctx, ids)
	if err != nil {
		return 0, false, err
	}
	return best, true, nil
}

// bestScoredMatch evaluates every event in the bucket with accept and keeps
// the highest-scoring acceptable one, breaking score ties like bestMatch.
func (r *Resolver) bestScoredMatch(ctx context.Context, kind catalog.FingerprintKind, hash string, accept func(*catalog.Event) (float64, bool, error)) (int64, float64, bool, error) {
	ids, err := r.store.Fingerprints().FindEventIDs(ctx, kind, hash)
	if err != nil {
		return 0, 0, false, fmt.Errorf("lookup %s fingerprint: %w", kind, err)
	}

	var (
		acceptable []int64
		scores     = make(map[int64]float64, len(ids))
		bestScore  = -1.0
	)
	for _, id := range ids {
		event, err := r.store.Events().GetByID(ctx, id)
		if err != nil {
			return 0, 0, false, fmt.Errorf("load event %d: %w", id, err)
		}
		score, ok, err := accept(event)
		if err != nil {
			return 0, 0, false, err
		}
		if !ok {
			continue
		}
		scores[id] = score
		if score > bestScore+1e-9 {
			bestScore = score
			acceptable = []int64{id}
		} else if math.Abs(score-bestScore) <= 1e-9 {
			acceptable = append(acceptable, id)
		}
	}
	if len(acceptable) == 0 {
		return 0, 0, false, nil
	}
	if len(acceptable) == 1 {
		return acceptable[0], scores[acceptable[0]], true, nil
	}
	best, err := r.tieBreak(ctx, acceptable)
	if err != nil {
		return 0, 0, false, err
	}
	return best, scores[best], true, nil
}

func (r *Resolver) tieBreak(ctx context.Context, ids []int64) (int64, error) {
	type ranked struct {
		id          int64
		reliability float64
		createdAt   time.Time
	}
	best := ranked{reliability: -1}
	for _, id := range ids {
		event, err := r.store.Events().GetByID(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("load event %d: %w", id, err)
		}
		linked, err := r.store.Sources().ListByEvent(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("load sources for event %d: %w", id, err)
		}
		reliability := 0.0
		for _, src := range linked {
			if src.Reliability > reliability {
				reliability = src.Reliability
			}
		}
		candidate := ranked{id: id, reliability: reliability, createdAt: event.CreatedAt}
		if candidate.reliability > best.reliability ||
			(candidate.reliability == best.reliability && candidate.createdAt.Before(best.createdAt)) ||
			(candidate.reliability == best.reliability && candidate.createdAt.Equal(best.createdAt) && (best.id == 0 || candidate.id < best.id)) {
			best = candidate
		}
	}
	return best.id, nil
}

// weightedSimilarity scores a candidate against an event: name 0.40 (Jaro-
// Winkler), date 0.30, location 0.20, venue 0.10.
func (r *Resolver) weightedSimilarity(ctx context.Context, candidate *catalog.Candidate, event *catalog.Event) (float64, error) {
	nameScore := smetrics.JaroWinkler(candidate.Name, normalize.Text(event.Name), jaroWinklerBoost, jaroWinklerSize)
	dateScore := dateSimilarity(candidate.StartDate, event.StartDate)

	locationScore := 0.0
	if candidate.CityID != nil && *candidate.CityID == event.CityID {
		locationScore = 1.0
	}

	venueScore, err := r.venueSimilarity(ctx, candidate, event)
	if err != nil {
		return 0, err
	}

	return weightName*nameScore + weightDate*dateScore + weightLocation*locationScore + weightVenue*venueScore, nil
}

func dateSimilarity(a, b time.Time) float64 {
	days := math.Abs(a.Sub(b).Hours() / 24)
	switch {
	case days == 0:
		return 1.0
	case days <= 1:
		return 0.8
	case days <= 7:
		return 0.5
	default:
		return 0
	}
}

// venueSimilarity: 1.0 when both venues are present and equal, 0 when both
// present and different, 0.5 when either side is unknown.
func (r *Resolver) venueSimilarity(ctx context.Context, candidate *catalog.Candidate, event *catalog.Event) (float64, error) {
	if candidate.VenueName == "" || event.VenueID == nil {
		return 0.5, nil
	}
	venue, err := r.store.Reference().GetVenue(ctx, *event.VenueID)
	if err != nil {
		return 0, fmt.Errorf("load venue %d: %w", *event.VenueID, err)
	}
	if normalize.Text(candidate.VenueName) == normalize.Text(venue.Name) {
		return 1.0, nil
	}
	return 0, nil
}
