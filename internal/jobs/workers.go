package jobs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/domain/confidence"
	"github.com/mawsim/catalog/internal/domain/editorial"
	"github.com/mawsim/catalog/internal/pipeline"
	"github.com/mawsim/catalog/internal/search"
)

const (
	// archiveGrace is how long after its end date an event stays visible
	// before the nightly job archives it.
	archiveGrace = 30 * 24 * time.Hour
	// rescoreAfter bounds how stale a confidence score may get before the
	// nightly refresh recomputes it.
	rescoreAfter = 30 * 24 * time.Hour
	// candidateRetention is how long unprocessed candidates survive before
	// the weekly cleanup drops them.
	candidateRetention = 30 * 24 * time.Hour
)

type IngestionArgs struct{}

func (IngestionArgs) Kind() string { return JobKindIngestion }

type ManualImportArgs struct{}

func (ManualImportArgs) Kind() string { return JobKindManualImport }

type MaintenanceArgs struct{}

func (MaintenanceArgs) Kind() string { return JobKindMaintenance }

type CandidateCleanupArgs struct{}

func (CandidateCleanupArgs) Kind() string { return JobKindCandidateCleanup }

type ProjectionSyncArgs struct {
	EventID int64 `json:"event_id"`
}

func (ProjectionSyncArgs) Kind() string { return JobKindProjectionSync }

// IngestionWorker runs one full pipeline cycle over every registered source.
type IngestionWorker struct {
	river.WorkerDefaults[IngestionArgs]
	Orchestrator *pipeline.Orchestrator
}

func (IngestionWorker) Kind() string { return JobKindIngestion }

func (w IngestionWorker) Work(ctx context.Context, _ *river.Job[IngestionArgs]) error {
	if w.Orchestrator == nil {
		return fmt.Errorf("orchestrator not configured")
	}
	_, err := w.Orchestrator.Run(ctx)
	return err
}

// ManualImportWorker drains the manual-import queue: candidates staged by the
// curator surface (or left behind by an interrupted run) but not yet resolved.
type ManualImportWorker struct {
	river.WorkerDefaults[ManualImportArgs]
	Orchestrator *pipeline.Orchestrator
}

func (ManualImportWorker) Kind() string { return JobKindManualImport }

func (w ManualImportWorker) Work(ctx context.Context, _ *river.Job[ManualImportArgs]) error {
	if w.Orchestrator == nil {
		return fmt.Errorf("orchestrator not configured")
	}
	_, err := w.Orchestrator.ProcessPending(ctx)
	return err
}

// SitemapNotifier pings the public site's sitemap endpoint after the nightly
// rebuild so crawlers pick up new event pages.
type SitemapNotifier interface {
	NotifySitemap(ctx context.Context) error
}

// HTTPSitemapNotifier pings a fixed URL. A nil or empty URL disables it.
type HTTPSitemapNotifier struct {
	URL    string
	Client *http.Client
}

func (n *HTTPSitemapNotifier) NotifySitemap(ctx context.Context) error {
	if n == nil || n.URL == "" {
		return nil
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.URL, nil)
	if err != nil {
		return fmt.Errorf("create sitemap ping: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sitemap ping: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sitemap ping status %d", resp.StatusCode)
	}
	return nil
}

// MaintenanceWorker runs the nightly sequence: archive ended events, refresh
// stale confidence scores, rebuild the search collection, ping the sitemap.
// Each phase proceeds even when an earlier one reports per-item failures.
type MaintenanceWorker struct {
	river.WorkerDefaults[MaintenanceArgs]
	Store     catalog.Store
	Editorial *editorial.Service
	Scorer    *confidence.Scorer
	Sync      *search.Synchronizer
	Sitemap   SitemapNotifier
	Logger    zerolog.Logger
}

func (MaintenanceWorker) Kind() string { return JobKindMaintenance }

func (w MaintenanceWorker) Work(ctx context.Context, _ *river.Job[MaintenanceArgs]) error {
	if w.Store == nil || w.Editorial == nil || w.Scorer == nil || w.Sync == nil {
		return fmt.Errorf("maintenance worker not fully configured")
	}
	now := time.Now().UTC()

	if err := w.archiveEnded(ctx, now); err != nil {
		return err
	}
	if err := w.refreshConfidence(ctx, now); err != nil {
		return err
	}

	indexed, failed, err := w.Sync.FullRebuild(ctx)
	if err != nil {
		return fmt.Errorf("nightly rebuild: %w", err)
	}
	w.Logger.Info().Int("indexed", indexed).Int("errors", failed).Msg("nightly rebuild done")

	if w.Sitemap != nil {
		if err := w.Sitemap.NotifySitemap(ctx); err != nil {
			// The rebuild already succeeded; a missed ping self-heals on the
			// next cycle.
			w.Logger.Warn().Err(err).Msg("sitemap notify failed")
		}
	}
	return nil
}

func (w MaintenanceWorker) archiveEnded(ctx context.Context, now time.Time) error {
	ids, err := w.Store.Events().ListEnded(ctx, now.Add(-archiveGrace))
	if err != nil {
		return fmt.Errorf("list ended events: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Editorial.Archive(ctx, "system", id, "event ended"); err != nil {
			w.Logger.Warn().Err(err).Int64("event_id", id).Msg("archive failed")
		}
	}
	if len(ids) > 0 {
		w.Logger.Info().Int("count", len(ids)).Msg("archived ended events")
	}
	return nil
}

func (w MaintenanceWorker) refreshConfidence(ctx context.Context, now time.Time) error {
	ids, err := w.Store.Events().ListUnverifiedSince(ctx, now.Add(-rescoreAfter))
	if err != nil {
		return fmt.Errorf("list stale events: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Scorer.Rescore(ctx, w.Store, id); err != nil {
			w.Logger.Warn().Err(err).Int64("event_id", id).Msg("rescore failed")
			continue
		}
		if err := w.Sync.UpsertEvent(ctx, id); err != nil {
			w.Logger.Warn().Err(err).Int64("event_id", id).Msg("projection refresh failed")
		}
	}
	return nil
}

// CandidateCleanupWorker drops unprocessed candidates older than the
// retention window.
type CandidateCleanupWorker struct {
	river.WorkerDefaults[CandidateCleanupArgs]
	Store  catalog.Store
	Logger zerolog.Logger
}

func (CandidateCleanupWorker) Kind() string { return JobKindCandidateCleanup }

func (w CandidateCleanupWorker) Work(ctx context.Context, _ *river.Job[CandidateCleanupArgs]) error {
	if w.Store == nil {
		return fmt.Errorf("store not configured")
	}
	cutoff := time.Now().UTC().Add(-candidateRetention)
	deleted, err := w.Store.Candidates().DeleteUnprocessedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete stale candidates: %w", err)
	}
	if deleted > 0 {
		w.Logger.Info().Int64("deleted", deleted).Msg("stale candidates removed")
	}
	return nil
}

// ProjectionSyncWorker retries a single event's search projection after a
// post-commit upsert failed.
type ProjectionSyncWorker struct {
	river.WorkerDefaults[ProjectionSyncArgs]
	Sync *search.Synchronizer
}

func (ProjectionSyncWorker) Kind() string { return JobKindProjectionSync }

func (w ProjectionSyncWorker) Work(ctx context.Context, job *river.Job[ProjectionSyncArgs]) error {
	if w.Sync == nil {
		return fmt.Errorf("synchronizer not configured")
	}
	return w.Sync.UpsertEvent(ctx, job.Args.EventID)
}

// Enqueuer adapts the River client to the merge writer's retry port.
type Enqueuer struct {
	Client *river.Client[pgx.Tx]
}

func (e *Enqueuer) EnqueueProjectionRetry(ctx context.Context, eventID int64) error {
	if e == nil || e.Client == nil {
		return fmt.Errorf("job client not configured")
	}
	opts := InsertOptsForKind(JobKindProjectionSync)
	_, err := e.Client.Insert(ctx, ProjectionSyncArgs{EventID: eventID}, &opts)
	return err
}

// NewWorkers registers every worker with its dependencies.
func NewWorkers(orchestrator *pipeline.Orchestrator, store catalog.Store, editorialSvc *editorial.Service, scorer *confidence.Scorer, sync *search.Synchronizer, sitemap SitemapNotifier, logger zerolog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[IngestionArgs](workers, IngestionWorker{Orchestrator: orchestrator})
	river.AddWorker[ManualImportArgs](workers, ManualImportWorker{Orchestrator: orchestrator})
	river.AddWorker[MaintenanceArgs](workers, MaintenanceWorker{
		Store:     store,
		Editorial: editorialSvc,
		Scorer:    scorer,
		Sync:      sync,
		Sitemap:   sitemap,
		Logger:    logger,
	})
	river.AddWorker[CandidateCleanupArgs](workers, CandidateCleanupWorker{Store: store, Logger: logger})
	river.AddWorker[ProjectionSyncArgs](workers, ProjectionSyncWorker{Sync: sync})
	return workers
}
