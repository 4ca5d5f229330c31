// Package jobs schedules the background work of the catalog on River:
// periodic ingestion runs, nightly maintenance, candidate cleanup, and the
// projection retry queue.
package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindIngestion        = "ingestion"
	JobKindManualImport     = "manual_import"
	JobKindMaintenance      = "maintenance"
	JobKindCandidateCleanup = "candidate_cleanup"
	JobKindProjectionSync   = "projection_sync"
)

const (
	IngestionMaxAttempts      = 3
	ManualImportMaxAttempts   = 3
	MaintenanceMaxAttempts    = 2
	CleanupMaxAttempts        = 2
	ProjectionSyncMaxAttempts = 5
)

// Schedule for the periodic jobs. Maintenance is pinned to a wall-clock hour
// rather than an interval so the nightly sequence lands in the quiet window.
const (
	IngestionInterval    = 6 * time.Hour
	ManualImportInterval = time.Hour
	MaintenanceHourUTC   = 2
	CleanupInterval      = 7 * 24 * time.Hour
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential
// backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: MaintenanceMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindIngestion: {
				MaxAttempts: IngestionMaxAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    30 * time.Minute,
			},
			JobKindManualImport: {
				MaxAttempts: ManualImportMaxAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    15 * time.Minute,
			},
			JobKindProjectionSync: {
				MaxAttempts: ProjectionSyncMaxAttempts,
				BaseDelay:   30 * time.Second,
				MaxDelay:    10 * time.Minute,
			},
			JobKindCandidateCleanup: {
				MaxAttempts: CleanupMaxAttempts,
				BaseDelay:   5 * time.Minute,
				MaxDelay:    1 * time.Hour,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

// InsertOptsForKind returns default insert options for a job kind.
func InsertOptsForKind(kind string) river.InsertOpts {
	config := NewRetryPolicy().configFor(kind)
	return river.InsertOpts{MaxAttempts: config.MaxAttempts}
}

// NewClientConfig builds a River client configuration with the retry policy.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, periodicJobs []*river.PeriodicJob, maxWorkers int) *river.Config {
	policy := NewRetryPolicy()
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	config := &river.Config{
		Workers:      workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
	}
	if logger != nil {
		config.Logger = logger
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, periodicJobs []*river.PeriodicJob, maxWorkers int) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, periodicJobs, maxWorkers))
}

// dailyAtUTC fires once a day at a fixed UTC hour.
type dailyAtUTC struct {
	hour int
}

func (s dailyAtUTC) Next(current time.Time) time.Time {
	t := current.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), s.hour, 0, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// NewPeriodicJobs creates the standing schedule:
//   - ingestion run every 6 hours
//   - manual-import queue drain hourly
//   - maintenance (archival, confidence refresh, rebuild, sitemap ping)
//     daily at 02:00 UTC
//   - stale candidate cleanup weekly
func NewPeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(IngestionInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return IngestionArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(ManualImportInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ManualImportArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
		river.NewPeriodicJob(
			dailyAtUTC{hour: MaintenanceHourUTC},
			func() (river.JobArgs, *river.InsertOpts) {
				return MaintenanceArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(CleanupInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return CandidateCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
	}
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: MaintenanceMaxAttempts, BaseDelay: 30 * time.Second, MaxDelay: 30 * time.Minute}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}
