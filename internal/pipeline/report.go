package pipeline

import (
	"encoding/json"
	"time"
)

// SourceReport aggregates one source's counters for a run.
type SourceReport struct {
	Fetched      int      `json:"fetched"`
	Created      int      `json:"created"`
	Merged       int      `json:"merged"`
	ReviewNeeded int      `json:"review_needed"`
	Skipped      int      `json:"skipped"`
	Errors       []string `json:"errors,omitempty"`
}

// Report is the persisted record of one ingestion run.
type Report struct {
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Sources    map[string]*SourceReport `json:"sources"`
}

func newReport(startedAt time.Time) *Report {
	return &Report{
		StartedAt: startedAt,
		Sources:   make(map[string]*SourceReport),
	}
}

func (r *Report) source(name string) *SourceReport {
	if existing, ok := r.Sources[name]; ok {
		return existing
	}
	created := &SourceReport{}
	r.Sources[name] = created
	return created
}

func (r *Report) recordError(err *PipelineError) {
	src := r.source(err.Source)
	src.Errors = append(src.Errors, err.Error())
}

// Totals sums the per-source counters.
func (r *Report) Totals() SourceReport {
	var total SourceReport
	for _, src := range r.Sources {
		total.Fetched += src.Fetched
		total.Created += src.Created
		total.Merged += src.Merged
		total.ReviewNeeded += src.ReviewNeeded
		total.Skipped += src.Skipped
		total.Errors = append(total.Errors, src.Errors...)
	}
	return total
}

func (r *Report) marshal() (json.RawMessage, error) {
	return json.Marshal(r)
}
