package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mawsim/catalog/internal/adapters"
	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/domain/dedup"
	"github.com/mawsim/catalog/internal/domain/ingest"
	"github.com/mawsim/catalog/internal/metrics"
)

const (
	defaultFetchConcurrency = 4
	fetchMaxRetries         = 3
	fetchRetryBaseDelay     = 1 * time.Second
	pendingBatchSize        = 200
)

// Orchestrator drives one ingestion run: fetch all sources with bounded
// parallelism, then stage, resolve, and commit candidates sequentially so the
// dedup fingerprint reads never race their own writes.
type Orchestrator struct {
	registry    *adapters.Registry
	store       catalog.Store
	resolver    *dedup.Resolver
	writer      *ingest.Writer
	logger      zerolog.Logger
	concurrency int
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFetchConcurrency bounds the parallel fetch phase (default 4).
func WithFetchConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func NewOrchestrator(registry *adapters.Registry, store catalog.Store, resolver *dedup.Resolver, writer *ingest.Writer, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		store:       store,
		resolver:    resolver,
		writer:      writer,
		logger:      logger.With().Str("component", "pipeline").Logger(),
		concurrency: defaultFetchConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type fetchResult struct {
	adapter   adapters.Adapter
	records   []adapters.RawRecord
	fetchedAt time.Time
	err       *PipelineError
}

// Run executes one full ingestion cycle over every registered adapter and
// persists the run report. The report is returned even when some sources
// failed; Run errors only when the run itself could not proceed or its report
// could not be persisted.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	startedAt := o.now().UTC()
	report := newReport(startedAt)

	all := o.registry.All()
	results := make([]fetchResult, len(all))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.concurrency)
	for i, adapter := range all {
		group.Go(func() error {
			results[i] = o.fetchWithRetry(groupCtx, adapter)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	for _, result := range results {
		o.processSource(ctx, report, result)
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	report.FinishedAt = o.now().UTC()
	if err := o.persist(ctx, report); err != nil {
		return report, err
	}

	totals := report.Totals()
	o.logger.Info().
		Int("fetched", totals.Fetched).
		Int("created", totals.Created).
		Int("merged", totals.Merged).
		Int("review_needed", totals.ReviewNeeded).
		Int("errors", len(totals.Errors)).
		Msg("ingestion run complete")
	return report, nil
}

// RunOne fetches and processes a single adapter outside the scheduled cycle.
// The report is persisted like a full run's.
func (o *Orchestrator) RunOne(ctx context.Context, adapter adapters.Adapter) (*Report, error) {
	startedAt := o.now().UTC()
	report := newReport(startedAt)

	o.processSource(ctx, report, o.fetchWithRetry(ctx, adapter))
	if err := ctx.Err(); err != nil {
		return report, err
	}

	report.FinishedAt = o.now().UTC()
	if err := o.persist(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

// Stage fetches one adapter's records and inserts them as unprocessed
// candidates without resolving them. The manual import surface stages through
// here; ProcessPending (or the hourly drain) picks the candidates up.
func (o *Orchestrator) Stage(ctx context.Context, adapter adapters.Adapter) (int, error) {
	result := o.fetchWithRetry(ctx, adapter)
	if result.err != nil {
		return 0, result.err
	}

	source := adapter.Source()
	staged := 0
	for _, record := range result.records {
		params, err := adapter.Normalize(record)
		if err != nil {
			o.logger.Warn().Err(err).Str("external_id", record.ExternalID).Msg("record rejected at staging")
			continue
		}
		if _, err := o.store.Candidates().Insert(ctx, params); err != nil {
			return staged, fmt.Errorf("stage candidate %s: %w", record.ExternalID, err)
		}
		staged++
	}
	metrics.CandidatesFetched.WithLabelValues(source.Name).Add(float64(staged))
	return staged, nil
}

// ProcessPending drains candidates that were staged but never resolved. The
// hourly manual-import job runs through here; it also picks up candidates an
// interrupted run left behind. An empty queue writes no report row.
func (o *Orchestrator) ProcessPending(ctx context.Context) (*Report, error) {
	startedAt := o.now().UTC()
	report := newReport(startedAt)

	candidates, err := o.store.Candidates().ListUnprocessed(ctx, pendingBatchSize)
	if err != nil {
		return report, fmt.Errorf("list pending candidates: %w", err)
	}
	if len(candidates) == 0 {
		report.FinishedAt = o.now().UTC()
		return report, nil
	}

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		o.processStaged(ctx, report, &candidates[i])
	}

	report.FinishedAt = o.now().UTC()
	if err := o.persist(ctx, report); err != nil {
		return report, err
	}
	o.logger.Info().Int("drained", len(candidates)).Msg("pending candidates processed")
	return report, nil
}

func (o *Orchestrator) processStaged(ctx context.Context, report *Report, candidate *catalog.Candidate) {
	sourceName := fmt.Sprintf("source-%d", candidate.SourceID)
	if source, err := o.store.Sources().GetByID(ctx, candidate.SourceID); err == nil {
		sourceName = source.Name
	}
	src := report.source(sourceName)
	src.Fetched++

	fail := func(kind ErrorKind, err error) {
		pErr := NewError(kind, sourceName, err)
		metrics.PipelineErrors.WithLabelValues(sourceName, string(kind)).Inc()
		report.recordError(pErr)
		src.Skipped++
	}

	decision, err := o.resolver.Resolve(ctx, candidate)
	if err != nil {
		fail(KindDatabaseError, fmt.Errorf("resolve candidate %d: %w", candidate.ID, err))
		return
	}

	applied, err := o.writer.Apply(ctx, candidate, decision)
	if err != nil {
		fail(KindConflictOnMerge, fmt.Errorf("apply candidate %d: %w", candidate.ID, err))
		return
	}

	metrics.CandidateOutcomes.WithLabelValues(sourceName, applied.Outcome).Inc()
	switch applied.Outcome {
	case catalog.OutcomeCreated:
		src.Created++
	case catalog.OutcomeMerged:
		src.Merged++
	case catalog.OutcomeReview:
		src.ReviewNeeded++
	default:
		src.Skipped++
	}
}

// fetchWithRetry fetches one source, retrying retriable failures with
// exponential backoff (1s, 2s, 4s).
func (o *Orchestrator) fetchWithRetry(ctx context.Context, adapter adapters.Adapter) fetchResult {
	source := adapter.Source()
	fetchedAt := o.now().UTC()

	since := time.Time{}
	if source.LastFetchAt != nil {
		since = *source.LastFetchAt
	}

	var lastKind ErrorKind
	var lastErr error
	for attempt := 0; attempt <= fetchMaxRetries; attempt++ {
		if attempt > 0 {
			delay := fetchRetryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fetchResult{adapter: adapter, err: NewError(KindSourceUnavailable, source.Name, ctx.Err())}
			}
		}

		records, err := adapter.Fetch(ctx, since)
		if err == nil {
			return fetchResult{adapter: adapter, records: records, fetchedAt: fetchedAt}
		}
		lastKind = classifyFetch(err)
		lastErr = err
		if !lastKind.Retriable() || ctx.Err() != nil {
			break
		}
		o.logger.Warn().Err(err).Str("source", source.Name).Int("attempt", attempt+1).Msg("fetch failed; retrying")
	}
	return fetchResult{adapter: adapter, err: NewError(lastKind, source.Name, lastErr)}
}

// processSource stages and resolves a fetch result's records in order. The
// source cursor advances only when the fetch itself was clean; record-level
// failures are reported but do not hold the cursor back.
func (o *Orchestrator) processSource(ctx context.Context, report *Report, result fetchResult) {
	source := result.adapter.Source()
	src := report.source(source.Name)

	if result.err != nil {
		metrics.PipelineErrors.WithLabelValues(source.Name, string(result.err.Kind)).Inc()
		report.recordError(result.err)
		o.logger.Error().Err(result.err).Str("source", source.Name).Msg("source fetch failed")
		return
	}

	src.Fetched += len(result.records)
	metrics.CandidatesFetched.WithLabelValues(source.Name).Add(float64(len(result.records)))

	for _, record := range result.records {
		if err := ctx.Err(); err != nil {
			return
		}
		o.processRecord(ctx, report, result.adapter, source, record)
	}

	if err := o.store.Sources().UpdateLastFetch(ctx, source.ID, result.fetchedAt); err != nil {
		pErr := NewError(KindDatabaseError, source.Name, fmt.Errorf("advance cursor: %w", err))
		metrics.PipelineErrors.WithLabelValues(source.Name, string(pErr.Kind)).Inc()
		report.recordError(pErr)
	}
}

func (o *Orchestrator) processRecord(ctx context.Context, report *Report, adapter adapters.Adapter, source catalog.Source, record adapters.RawRecord) {
	src := report.source(source.Name)

	fail := func(kind ErrorKind, err error) {
		pErr := NewError(kind, source.Name, err)
		metrics.PipelineErrors.WithLabelValues(source.Name, string(kind)).Inc()
		report.recordError(pErr)
		src.Skipped++
		o.logger.Warn().Err(pErr).Str("external_id", record.ExternalID).Msg("record failed")
	}

	params, err := adapter.Normalize(record)
	if err != nil {
		fail(KindValidationError, err)
		return
	}
	if params.CityID == nil && params.CityName != "" {
		// Not fatal; the candidate proceeds and the writer routes it to
		// review, but the miss is worth surfacing per source.
		pErr := NewError(KindUnknownCity, source.Name, fmt.Errorf("record %s: city %q matched no canonical city", record.ExternalID, params.CityName))
		metrics.PipelineErrors.WithLabelValues(source.Name, string(KindUnknownCity)).Inc()
		report.recordError(pErr)
	}

	candidate, err := o.store.Candidates().Insert(ctx, params)
	if err != nil {
		fail(KindDatabaseError, fmt.Errorf("stage candidate: %w", err))
		return
	}

	decision, err := o.resolver.Resolve(ctx, candidate)
	if err != nil {
		fail(KindDatabaseError, fmt.Errorf("resolve candidate %d: %w", candidate.ID, err))
		return
	}

	applied, err := o.writer.Apply(ctx, candidate, decision)
	if err != nil {
		fail(KindConflictOnMerge, fmt.Errorf("apply candidate %d: %w", candidate.ID, err))
		return
	}

	metrics.CandidateOutcomes.WithLabelValues(source.Name, applied.Outcome).Inc()
	switch applied.Outcome {
	case catalog.OutcomeCreated:
		src.Created++
	case catalog.OutcomeMerged:
		src.Merged++
	case catalog.OutcomeReview:
		src.ReviewNeeded++
	default:
		src.Skipped++
	}
}

func (o *Orchestrator) persist(ctx context.Context, report *Report) error {
	payload, err := report.marshal()
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	if _, err := o.store.Runs().InsertRun(ctx, report.StartedAt, report.FinishedAt, payload); err != nil {
		return fmt.Errorf("persist run report: %w", err)
	}
	return nil
}
