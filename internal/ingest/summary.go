package ingest

import (
	"fmt"
	"strings"

	"github.com/comixcatalog/etl/internal/store"
)

// Outcome is the per-series result recorded in the run summary.
type Outcome string

// Per-series outcomes.
const (
	OutcomeOK       Outcome = "ok"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
)

// SeriesOutcome reports what happened to one worklist entry.
type SeriesOutcome struct {
	Title        string
	Status       Outcome
	IssuesLoaded int
	Err          string
}

// Summary aggregates one run: per-series outcomes plus the counters written
// to the audit row.
type Summary struct {
	RunID          int64
	Status         store.RunStatus
	Outcomes       []SeriesOutcome
	RecordsRead    int
	RecordsLoaded  int
	RecordsSkipped int
}

// Notes renders the free-text audit notes: per-series failures only, so a
// clean run keeps an empty notes column.
func (s *Summary) Notes() string {
	var parts []string
	for _, o := range s.Outcomes {
		switch o.Status {
		case OutcomeNotFound:
			parts = append(parts, fmt.Sprintf("%s: not_found", o.Title))
		case OutcomeError:
			parts = append(parts, fmt.Sprintf("%s: %s", o.Title, o.Err))
		}
	}
	return strings.Join(parts, "; ")
}

// String renders the human-readable run report printed after a run.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %d: %s\n", s.RunID, s.Status)
	for _, o := range s.Outcomes {
		switch o.Status {
		case OutcomeOK:
			fmt.Fprintf(&b, " - %s: ok (issues=%d)\n", o.Title, o.IssuesLoaded)
		case OutcomeNotFound:
			fmt.Fprintf(&b, " - %s: not_found\n", o.Title)
		case OutcomeError:
			fmt.Fprintf(&b, " - %s: error (%s)\n", o.Title, o.Err)
		}
	}
	fmt.Fprintf(&b, "records read=%d loaded=%d skipped=%d\n",
		s.RecordsRead, s.RecordsLoaded, s.RecordsSkipped)
	return b.String()
}
