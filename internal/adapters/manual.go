package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ManualSource identifies the source block of a manual import payload. When
// Reliability is omitted the default for the source type applies.
type ManualSource struct {
	Type        string   `json:"type" validate:"required,oneof=official_website api scraped manual"`
	Name        string   `json:"name" validate:"required,max=200"`
	URL         string   `json:"url" validate:"omitempty,url"`
	Reliability *float64 `json:"reliability" validate:"omitempty,gte=0,lte=1"`
}

// ManualEvent is one event entry of a manual import payload. Date fields are
// strings so they pass through the shared date normalization with everything
// else.
type ManualEvent struct {
	ExternalID  string   `json:"external_id" validate:"required,max=200"`
	URL         string   `json:"url" validate:"omitempty,url"`
	Name        string   `json:"name" validate:"required,max=300"`
	EventType   string   `json:"event_type" validate:"omitempty,oneof=festival concert showcase ritual conference"`
	StartDate   string   `json:"start_date" validate:"required"`
	EndDate     string   `json:"end_date"`
	City        string   `json:"city" validate:"required,max=120"`
	Venue       string   `json:"venue" validate:"max=200"`
	Organizer   string   `json:"organizer" validate:"max=200"`
	Description string   `json:"description" validate:"max=5000"`
	Website     string   `json:"official_website" validate:"omitempty,url"`
	TicketURL   string   `json:"ticket_url" validate:"omitempty,url"`
	Genres      []string `json:"genres" validate:"max=20,dive,max=80"`
	Artists     []string `json:"artists" validate:"max=50,dive,max=200"`
}

// ManualPayload is the JSON document accepted by the manual import surface.
type ManualPayload struct {
	Source ManualSource  `json:"source" validate:"required"`
	Events []ManualEvent `json:"events" validate:"required,min=1,dive"`
}

// RecordError ties a validation failure to its position in the payload, so
// one bad entry never blocks its siblings.
type RecordError struct {
	Index      int
	ExternalID string
	Err        error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("event %d (%s): %v", e.Index, e.ExternalID, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// ParseManualPayload decodes and validates a manual import document. The
// source block must be valid as a whole; per-event failures are returned
// alongside the payload and the offending events are dropped from it.
func ParseManualPayload(raw []byte) (*ManualPayload, []RecordError, error) {
	var payload ManualPayload
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("decode payload: %w", err)
	}

	if err := validate.Struct(payload.Source); err != nil {
		return nil, nil, fmt.Errorf("invalid source block: %w", err)
	}
	if len(payload.Events) == 0 {
		return nil, nil, fmt.Errorf("payload contains no events")
	}

	var (
		kept      []ManualEvent
		recordErr []RecordError
	)
	for i, event := range payload.Events {
		if err := validate.Struct(event); err != nil {
			recordErr = append(recordErr, RecordError{Index: i, ExternalID: event.ExternalID, Err: err})
			continue
		}
		kept = append(kept, event)
	}
	payload.Events = kept
	return &payload, recordErr, nil
}

// ManualAdapter serves a fixed, already-validated batch of events. Manual
// imports have no upstream to poll, so Fetch ignores the cursor and returns
// the whole batch every time.
type ManualAdapter struct {
	source     catalog.Source
	events     []ManualEvent
	normalizer *Normalizer
	now        func() time.Time
}

func NewManualAdapter(source catalog.Source, events []ManualEvent, normalizer *Normalizer) *ManualAdapter {
	return &ManualAdapter{
		source:     source,
		events:     events,
		normalizer: normalizer,
		now:        time.Now,
	}
}

func (a *ManualAdapter) Source() catalog.Source { return a.source }

func (a *ManualAdapter) Fetch(ctx context.Context, _ time.Time) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fetchedAt := a.now().UTC()
	records := make([]RawRecord, 0, len(a.events))
	for _, event := range a.events {
		encoded, err := json.Marshal(event.payload())
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", event.ExternalID, err)
		}
		records = append(records, RawRecord{
			ExternalID: event.ExternalID,
			SourceURL:  event.URL,
			Payload:    encoded,
			FetchedAt:  fetchedAt,
		})
	}
	return records, nil
}

func (a *ManualAdapter) Normalize(record RawRecord) (catalog.CandidateInsertParams, error) {
	var payload eventPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return catalog.CandidateInsertParams{}, fmt.Errorf("parse manual record %s: %w", record.ExternalID, err)
	}
	return a.normalizer.candidate(a.source, record, payload)
}

func (e ManualEvent) payload() eventPayload {
	return eventPayload{
		Name:        e.Name,
		EventType:   e.EventType,
		StartDate:   e.StartDate,
		EndDate:     e.EndDate,
		City:        e.City,
		Venue:       e.Venue,
		Organizer:   e.Organizer,
		Description: e.Description,
		Website:     e.Website,
		TicketURL:   e.TicketURL,
		Genres:      e.Genres,
		Artists:     e.Artists,
	}
}

// SheetRow is one row of a curator spreadsheet export, keyed by lowercase
// column header.
type SheetRow map[string]string

// sheetListSeparator splits multi-value cells (genres, artists).
const sheetListSeparator = ";"

// FromSheetRows converts spreadsheet rows into manual events. Rows whose
// "confirmed" cell coerces to false are skipped without error; rows with an
// uncoercible cell are reported. Row indexes in errors are zero-based over
// the input slice.
func FromSheetRows(rows []SheetRow) ([]ManualEvent, []RecordError) {
	var (
		events []ManualEvent
		errs   []RecordError
	)
	for i, row := range rows {
		externalID := row.cell("external_id")
		if confirmed, ok := row["confirmed"]; ok {
			keep, err := CoerceBool(confirmed)
			if err != nil {
				errs = append(errs, RecordError{Index: i, ExternalID: externalID, Err: err})
				continue
			}
			if !keep {
				continue
			}
		}
		event := ManualEvent{
			ExternalID:  externalID,
			URL:         row.cell("url"),
			Name:        row.cell("name"),
			EventType:   strings.ToLower(row.cell("event_type")),
			StartDate:   row.cell("start_date"),
			EndDate:     row.cell("end_date"),
			City:        row.cell("city"),
			Venue:       row.cell("venue"),
			Organizer:   row.cell("organizer"),
			Description: row.cell("description"),
			Website:     row.cell("official_website"),
			TicketURL:   row.cell("ticket_url"),
			Genres:      splitCell(row.cell("genres")),
			Artists:     splitCell(row.cell("artists")),
		}
		if err := validate.Struct(event); err != nil {
			errs = append(errs, RecordError{Index: i, ExternalID: externalID, Err: err})
			continue
		}
		events = append(events, event)
	}
	return events, errs
}

// CoerceBool maps the boolean spellings spreadsheets produce. Accepted forms
// are TRUE, FALSE, Yes, No, 1, 0, true and false, case-insensitively.
func CoerceBool(cell string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("cannot interpret %q as boolean", cell)
	}
}

func (r SheetRow) cell(key string) string {
	return strings.TrimSpace(r[key])
}

func splitCell(cell string) []string {
	if cell == "" {
		return nil
	}
	parts := strings.Split(cell, sheetListSeparator)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
