package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/comixcatalog/etl/internal/config"
	"github.com/comixcatalog/etl/internal/marvel"
	"github.com/comixcatalog/etl/internal/store"
)

// fakeCatalog serves canned series and issue payloads.
type fakeCatalog struct {
	series     map[string]marvel.Series
	issues     map[int64][]marvel.Comic
	resolveErr map[string]error
	issuesErr  map[int64]error
}

func (c *fakeCatalog) ResolveSeries(_ context.Context, title string) (*marvel.Series, bool, error) {
	if err := c.resolveErr[title]; err != nil {
		return nil, false, err
	}
	s, ok := c.series[title]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *fakeCatalog) IssuesForSeries(_ context.Context, seriesID int64) ([]marvel.Comic, error) {
	if err := c.issuesErr[seriesID]; err != nil {
		return nil, err
	}
	return c.issues[seriesID], nil
}

func (c *fakeCatalog) CrawlSeries(_ context.Context, visit func(marvel.Series) error) error {
	for _, s := range c.orderedSeries() {
		if err := visit(s); err != nil {
			if errors.Is(err, marvel.ErrStopCrawl) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (c *fakeCatalog) orderedSeries() []marvel.Series {
	out := make([]marvel.Series, 0, len(c.series))
	var ids []int64
	byID := make(map[int64]marvel.Series, len(c.series))
	for _, s := range c.series {
		ids = append(ids, s.ID)
		byID[s.ID] = s
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

type runRow struct {
	status store.RunStatus
	read   int
	loaded int
	notes  string
	closed bool
}

// memWriter is an in-memory Writer with the same identity semantics as the
// real store: find-or-create publishers, fingerprinted series, issues keyed
// by external id then natural key.
type memWriter struct {
	nextID     int64
	publishers map[string]int64
	seriesByFP map[string]int64
	issueByCID map[int64]int64
	issueByNat map[string]int64
	runs       map[int64]*runRow

	startErr       error
	upsertIssueErr error
}

func newMemWriter() *memWriter {
	return &memWriter{
		publishers: map[string]int64{},
		seriesByFP: map[string]int64{},
		issueByCID: map[int64]int64{},
		issueByNat: map[string]int64{},
		runs:       map[int64]*runRow{},
	}
}

func (w *memWriter) id() int64 {
	w.nextID++
	return w.nextID
}

func (w *memWriter) GetOrCreatePublisher(_ context.Context, name string) (store.Publisher, error) {
	if id, ok := w.publishers[name]; ok {
		return store.Publisher{ID: id, Name: name}, nil
	}
	id := w.id()
	w.publishers[name] = id
	return store.Publisher{ID: id, Name: name}, nil
}

func (w *memWriter) UpsertSeries(_ context.Context, publisherID int64, title, sourceKey string) (store.Series, error) {
	if id, ok := w.seriesByFP[sourceKey]; ok {
		return store.Series{ID: id, Title: title, PublisherID: &publisherID}, nil
	}
	id := w.id()
	w.seriesByFP[sourceKey] = id
	return store.Series{ID: id, Title: title, PublisherID: &publisherID}, nil
}

func (w *memWriter) UpsertIssue(_ context.Context, seriesID int64, rec store.IssueRecord) (int64, bool, error) {
	if w.upsertIssueErr != nil {
		return 0, false, w.upsertIssueErr
	}
	if rec.IssueNumber == nil {
		return 0, false, nil
	}
	if rec.SourceComicID != nil {
		if id, ok := w.issueByCID[*rec.SourceComicID]; ok {
			return id, true, nil
		}
	}
	natKey := fmt.Sprintf("%d/%s", seriesID, *rec.IssueNumber)
	if id, ok := w.issueByNat[natKey]; ok {
		return id, true, nil
	}
	id := w.id()
	w.issueByNat[natKey] = id
	if rec.SourceComicID != nil {
		w.issueByCID[*rec.SourceComicID] = id
	}
	return id, true, nil
}

func (w *memWriter) StartRun(_ context.Context, _ time.Time) (int64, error) {
	if w.startErr != nil {
		return 0, w.startErr
	}
	id := w.id()
	w.runs[id] = &runRow{status: store.RunStarted}
	return id, nil
}

func (w *memWriter) FinishRun(_ context.Context, runID int64, status store.RunStatus, _ time.Time, read, loaded int, notes string) error {
	row, ok := w.runs[runID]
	if !ok {
		return fmt.Errorf("unknown run %d", runID)
	}
	row.status = status
	row.read = read
	row.loaded = loaded
	row.notes = notes
	row.closed = true
	return nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func testComics(n int, startID int64) []marvel.Comic {
	out := make([]marvel.Comic, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, marvel.Comic{
			ID:          startID + int64(i),
			Title:       fmt.Sprintf("Uncanny X-Men #%d", 265+i),
			IssueNumber: marvel.NumberOrString(fmt.Sprintf("%d", 265+i)),
		})
	}
	return out
}

func newTestRunner(t *testing.T, catalog Catalog, writer Writer) *Runner {
	cfg := config.IngestConfig{
		SourceSystem:  "marvel",
		PublisherName: "Marvel",
	}
	clock := fixedClock{at: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	return NewRunner(catalog, writer, clock, marvel.NopPauser{}, cfg, zaptest.NewLogger(t))
}

func TestRunFreshIngest(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{
		series: map[string]marvel.Series{
			"Uncanny X-Men": {ID: 2258, Title: "Uncanny X-Men (1963 - 2011)"},
		},
		issues: map[int64][]marvel.Comic{
			2258: testComics(3, 12000),
		},
	}
	writer := newMemWriter()
	runner := newTestRunner(t, catalog, writer)

	summary, err := runner.Run(context.Background(), []string{"Uncanny X-Men"})
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, summary.Status)
	require.Equal(t, 3, summary.RecordsRead)
	require.Equal(t, 3, summary.RecordsLoaded)
	require.Zero(t, summary.RecordsSkipped)
	require.Len(t, summary.Outcomes, 1)
	require.Equal(t, OutcomeOK, summary.Outcomes[0].Status)
	require.Equal(t, 3, summary.Outcomes[0].IssuesLoaded)

	require.Len(t, writer.seriesByFP, 1)
	require.Len(t, writer.issueByNat, 3)

	row := writer.runs[summary.RunID]
	require.NotNil(t, row)
	require.True(t, row.closed)
	require.Equal(t, store.RunSuccess, row.status)
	require.Equal(t, 3, row.read)
	require.Equal(t, 3, row.loaded)
	require.Empty(t, row.notes)
}

func TestRunIsIdempotentAcrossReruns(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{
		series: map[string]marvel.Series{
			"Uncanny X-Men": {ID: 2258, Title: "Uncanny X-Men (1963 - 2011)"},
		},
		issues: map[int64][]marvel.Comic{
			2258: testComics(3, 12000),
		},
	}
	writer := newMemWriter()
	runner := newTestRunner(t, catalog, writer)

	_, err := runner.Run(context.Background(), []string{"Uncanny X-Men"})
	require.NoError(t, err)

	firstSeriesID := writer.seriesByFP["2258"]
	firstIssueIDs := make(map[string]int64, len(writer.issueByNat))
	for k, v := range writer.issueByNat {
		firstIssueIDs[k] = v
	}

	// A fourth issue appears upstream between runs.
	catalog.issues[2258] = testComics(4, 12000)

	summary, err := runner.Run(context.Background(), []string{"Uncanny X-Men"})
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, summary.Status)
	require.Equal(t, 4, summary.RecordsRead)
	require.Equal(t, 4, summary.RecordsLoaded)

	require.Len(t, writer.seriesByFP, 1)
	require.Equal(t, firstSeriesID, writer.seriesByFP["2258"])
	require.Len(t, writer.issueByNat, 4)
	for k, v := range firstIssueIDs {
		require.Equal(t, v, writer.issueByNat[k], "issue %s changed identity", k)
	}
	require.Len(t, writer.runs, 2)
}

func TestRunIsolatesUpstreamFailurePerSeries(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{
		series: map[string]marvel.Series{
			"Alias": {ID: 622, Title: "Alias (2001 - 2003)"},
		},
		resolveErr: map[string]error{
			"Bad Series": &marvel.APIError{
				Kind:       marvel.KindRetryExhausted,
				Endpoint:   "series",
				StatusCode: 502,
				Message:    "retries exhausted",
			},
		},
		issues: map[int64][]marvel.Comic{
			622: testComics(2, 40000),
		},
	}
	writer := newMemWriter()
	runner := newTestRunner(t, catalog, writer)

	summary, err := runner.Run(context.Background(), []string{"Bad Series", "Alias"})
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, summary.Status)
	require.Len(t, summary.Outcomes, 2)
	require.Equal(t, OutcomeError, summary.Outcomes[0].Status)
	require.Equal(t, OutcomeOK, summary.Outcomes[1].Status)
	require.Equal(t, 2, summary.RecordsLoaded)

	row := writer.runs[summary.RunID]
	require.Equal(t, store.RunSuccess, row.status)
	require.Contains(t, row.notes, "Bad Series")
}

func TestRunTreatsMissingSeriesAsSkip(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{series: map[string]marvel.Series{}}
	writer := newMemWriter()
	runner := newTestRunner(t, catalog, writer)

	summary, err := runner.Run(context.Background(), []string{"Nonexistent Comic"})
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, summary.Status)
	require.Len(t, summary.Outcomes, 1)
	require.Equal(t, OutcomeNotFound, summary.Outcomes[0].Status)

	row := writer.runs[summary.RunID]
	require.Contains(t, row.notes, "Nonexistent Comic: not_found")
}

func TestRunStoreFailureIsFatal(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{
		series: map[string]marvel.Series{
			"Alias": {ID: 622, Title: "Alias (2001 - 2003)"},
		},
		issues: map[int64][]marvel.Comic{
			622: testComics(2, 40000),
		},
	}
	writer := newMemWriter()
	writer.upsertIssueErr = errors.New("connection refused")
	runner := newTestRunner(t, catalog, writer)

	summary, err := runner.Run(context.Background(), []string{"Alias"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, store.RunFailed, summary.Status)

	row := writer.runs[summary.RunID]
	require.True(t, row.closed)
	require.Equal(t, store.RunFailed, row.status)
	require.Contains(t, row.notes, "connection refused")
}

func TestRunStartFailureReturnsImmediately(t *testing.T) {
	t.Parallel()

	writer := newMemWriter()
	writer.startErr = errors.New("db down")
	runner := newTestRunner(t, &fakeCatalog{}, writer)

	summary, err := runner.Run(context.Background(), []string{"Alias"})
	require.Error(t, err)
	require.Nil(t, summary)
}

func TestRunClosesAuditRowOnCancellation(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{
		series: map[string]marvel.Series{
			"Alias": {ID: 622, Title: "Alias (2001 - 2003)"},
		},
	}
	writer := newMemWriter()
	runner := newTestRunner(t, catalog, writer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := runner.Run(ctx, []string{"Alias"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, store.RunFailed, summary.Status)

	row := writer.runs[summary.RunID]
	require.True(t, row.closed)
	require.Equal(t, store.RunFailed, row.status)
}

func TestRunCountsSkippedRecords(t *testing.T) {
	t.Parallel()

	comics := testComics(2, 40000)
	comics = append(comics, marvel.Comic{ID: 40099, Title: "No Number"})
	catalog := &fakeCatalog{
		series: map[string]marvel.Series{
			"Alias": {ID: 622, Title: "Alias (2001 - 2003)"},
		},
		issues: map[int64][]marvel.Comic{622: comics},
	}
	writer := newMemWriter()
	runner := newTestRunner(t, catalog, writer)

	summary, err := runner.Run(context.Background(), []string{"Alias"})
	require.NoError(t, err)
	require.Equal(t, 3, summary.RecordsRead)
	require.Equal(t, 2, summary.RecordsLoaded)
	require.Equal(t, 1, summary.RecordsSkipped)
}

func TestRunCatalogVisitsEverySeries(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{
		series: map[string]marvel.Series{
			"Alias":         {ID: 622, Title: "Alias (2001 - 2003)"},
			"Uncanny X-Men": {ID: 2258, Title: "Uncanny X-Men (1963 - 2011)"},
		},
		issues: map[int64][]marvel.Comic{
			622:  testComics(2, 40000),
			2258: testComics(3, 12000),
		},
	}
	writer := newMemWriter()
	runner := newTestRunner(t, catalog, writer)

	summary, err := runner.RunCatalog(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, summary.Status)
	require.Len(t, summary.Outcomes, 2)
	require.Equal(t, 5, summary.RecordsLoaded)
	require.Len(t, writer.seriesByFP, 2)
}

func TestRunCatalogHonorsSeriesCap(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{
		series: map[string]marvel.Series{
			"Alias":         {ID: 622, Title: "Alias (2001 - 2003)"},
			"Uncanny X-Men": {ID: 2258, Title: "Uncanny X-Men (1963 - 2011)"},
		},
		issues: map[int64][]marvel.Comic{
			622:  testComics(2, 40000),
			2258: testComics(3, 12000),
		},
	}
	writer := newMemWriter()
	runner := newTestRunner(t, catalog, writer)

	summary, err := runner.RunCatalog(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, summary.Status)
	require.Len(t, summary.Outcomes, 1)
}

func TestSummaryNotesListsOnlyFailures(t *testing.T) {
	t.Parallel()

	s := &Summary{
		Outcomes: []SeriesOutcome{
			{Title: "Alias", Status: OutcomeOK, IssuesLoaded: 28},
			{Title: "Ghost", Status: OutcomeNotFound},
			{Title: "Flaky", Status: OutcomeError, Err: "retries exhausted"},
		},
	}

	notes := s.Notes()
	require.NotContains(t, notes, "Alias")
	require.Contains(t, notes, "Ghost: not_found")
	require.Contains(t, notes, "Flaky: retries exhausted")
}
