// Package ingest drives the crawl → normalize → upsert pipeline across a
// worklist of series and records a durable audit trail of each run.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/comixcatalog/etl/internal/config"
	"github.com/comixcatalog/etl/internal/marvel"
	"github.com/comixcatalog/etl/internal/metrics"
	"github.com/comixcatalog/etl/internal/normalize"
	"github.com/comixcatalog/etl/internal/store"
)

// Catalog abstracts the upstream source consumed by the runner.
type Catalog interface {
	ResolveSeries(ctx context.Context, title string) (*marvel.Series, bool, error)
	IssuesForSeries(ctx context.Context, seriesID int64) ([]marvel.Comic, error)
	CrawlSeries(ctx context.Context, visit func(marvel.Series) error) error
}

// Writer abstracts the relational sink.
type Writer interface {
	GetOrCreatePublisher(ctx context.Context, name string) (store.Publisher, error)
	UpsertSeries(ctx context.Context, publisherID int64, title, sourceKey string) (store.Series, error)
	UpsertIssue(ctx context.Context, seriesID int64, rec store.IssueRecord) (int64, bool, error)
	StartRun(ctx context.Context, startedAt time.Time) (int64, error)
	FinishRun(ctx context.Context, runID int64, status store.RunStatus, finishedAt time.Time, read, loaded int, notes string) error
}

// Clock supplies run timestamps.
type Clock interface {
	Now() time.Time
}

// Runner executes ingestion runs: one EtlRun row per invocation, per-series
// failure isolation, per-series commit granularity.
type Runner struct {
	catalog Catalog
	writer  Writer
	clock   Clock
	pause   marvel.Pauser
	cfg     config.IngestConfig
	logger  *zap.Logger
}

// NewRunner wires a Runner.
func NewRunner(catalog Catalog, writer Writer, clock Clock, pause marvel.Pauser, cfg config.IngestConfig, logger *zap.Logger) *Runner {
	return &Runner{
		catalog: catalog,
		writer:  writer,
		clock:   clock,
		pause:   pause,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run ingests the given worklist of series titles. A failure confined to one
// series is logged and recorded in the summary; the loop continues. A
// run-level failure (store, cache, cancellation) marks the EtlRun failed and
// is returned to the caller, which should exit non-zero.
func (r *Runner) Run(ctx context.Context, titles []string) (*Summary, error) {
	logger := r.logger.With(zap.String("run_uid", uuid.NewString()))

	runID, err := r.writer.StartRun(ctx, r.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	logger.Info("ingest run started",
		zap.Int64("run_id", runID),
		zap.Int("worklist", len(titles)))

	summary := &Summary{RunID: runID}

	publisher, err := r.writer.GetOrCreatePublisher(ctx, r.cfg.PublisherName)
	if err != nil {
		return summary, r.fail(ctx, logger, runID, summary, fmt.Errorf("ensure publisher: %w", err))
	}

	for i, title := range titles {
		if err := ctx.Err(); err != nil {
			return summary, r.fail(ctx, logger, runID, summary, err)
		}
		if i > 0 {
			r.pause.Pause(ctx, r.cfg.SeriesDelay())
		}

		outcome, fatal := r.processTitle(ctx, logger, publisher, title, summary)
		summary.Outcomes = append(summary.Outcomes, outcome)
		metrics.ObserveSeriesOutcome(string(outcome.Status))
		if fatal != nil {
			return summary, r.fail(ctx, logger, runID, summary, fatal)
		}
	}

	return summary, r.finishSuccess(ctx, logger, runID, summary)
}

// RunCatalog ingests every series the prefix crawl discovers, up to
// maxSeries when positive. Same isolation and audit semantics as Run.
func (r *Runner) RunCatalog(ctx context.Context, maxSeries int) (*Summary, error) {
	logger := r.logger.With(zap.String("run_uid", uuid.NewString()))

	runID, err := r.writer.StartRun(ctx, r.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	logger.Info("catalog run started", zap.Int64("run_id", runID))

	summary := &Summary{RunID: runID}

	publisher, err := r.writer.GetOrCreatePublisher(ctx, r.cfg.PublisherName)
	if err != nil {
		return summary, r.fail(ctx, logger, runID, summary, fmt.Errorf("ensure publisher: %w", err))
	}

	visited := 0
	var fatal error
	crawlErr := r.catalog.CrawlSeries(ctx, func(s marvel.Series) error {
		if visited > 0 {
			r.pause.Pause(ctx, r.cfg.SeriesDelay())
		}
		visited++

		outcome, seriesFatal := r.processSeries(ctx, logger, publisher, s.Title, &s, summary)
		summary.Outcomes = append(summary.Outcomes, outcome)
		metrics.ObserveSeriesOutcome(string(outcome.Status))
		if seriesFatal != nil {
			fatal = seriesFatal
			return seriesFatal
		}
		if maxSeries > 0 && visited >= maxSeries {
			return marvel.ErrStopCrawl
		}
		return nil
	})

	if fatal != nil {
		return summary, r.fail(ctx, logger, runID, summary, fatal)
	}
	if crawlErr != nil {
		// The prefix crawl itself failed; nothing downstream to isolate.
		return summary, r.fail(ctx, logger, runID, summary, crawlErr)
	}
	return summary, r.finishSuccess(ctx, logger, runID, summary)
}

// processTitle resolves a worklist title to an upstream series, then ingests
// it. The returned fatal error, when non-nil, aborts the whole run.
func (r *Runner) processTitle(ctx context.Context, logger *zap.Logger, publisher store.Publisher, title string, summary *Summary) (SeriesOutcome, error) {
	detail, found, err := r.catalog.ResolveSeries(ctx, title)
	if err != nil {
		if marvel.IsAPIError(err) {
			logger.Error("series resolution failed",
				zap.String("title", title),
				zap.Error(err))
			return SeriesOutcome{Title: title, Status: OutcomeError, Err: err.Error()}, nil
		}
		return SeriesOutcome{Title: title, Status: OutcomeError, Err: err.Error()}, err
	}
	if !found {
		logger.Warn("series not found upstream", zap.String("title", title))
		return SeriesOutcome{Title: title, Status: OutcomeNotFound}, nil
	}
	return r.processSeries(ctx, logger, publisher, title, detail, summary)
}

// processSeries upserts one resolved series and all of its issues.
func (r *Runner) processSeries(ctx context.Context, logger *zap.Logger, publisher store.Publisher, title string, detail *marvel.Series, summary *Summary) (SeriesOutcome, error) {
	seriesTitle := detail.Title
	if seriesTitle == "" {
		seriesTitle = title
	}
	sourceKey := strconv.FormatInt(detail.ID, 10)

	seriesRow, err := r.writer.UpsertSeries(ctx, publisher.ID, seriesTitle, sourceKey)
	if err != nil {
		// Store failures are run-level: the sink is unusable.
		return SeriesOutcome{Title: title, Status: OutcomeError, Err: err.Error()}, err
	}
	logger.Info("series upserted",
		zap.String("title", seriesTitle),
		zap.String("source_key", sourceKey),
		zap.Int64("series_id", seriesRow.ID))

	comics, err := r.catalog.IssuesForSeries(ctx, detail.ID)
	if err != nil {
		if marvel.IsAPIError(err) {
			logger.Error("issue crawl failed",
				zap.String("title", seriesTitle),
				zap.String("source_key", sourceKey),
				zap.Error(err))
			return SeriesOutcome{Title: title, Status: OutcomeError, Err: err.Error()}, nil
		}
		return SeriesOutcome{Title: title, Status: OutcomeError, Err: err.Error()}, err
	}

	summary.RecordsRead += len(comics)
	loaded := 0
	for order, comic := range comics {
		rec := normalize.MapComic(comic)
		rec.IssueOrder = order + 1

		_, ok, err := r.writer.UpsertIssue(ctx, seriesRow.ID, rec)
		if err != nil {
			return SeriesOutcome{Title: title, Status: OutcomeError, Err: err.Error()}, err
		}
		if ok {
			loaded++
			metrics.ObserveIssueUpserted()
		} else {
			summary.RecordsSkipped++
			metrics.ObserveIssueSkipped()
		}
	}
	summary.RecordsLoaded += loaded

	logger.Info("series ingested",
		zap.String("title", seriesTitle),
		zap.Int("issues_read", len(comics)),
		zap.Int("issues_loaded", loaded))
	return SeriesOutcome{Title: title, Status: OutcomeOK, IssuesLoaded: loaded}, nil
}

func (r *Runner) finishSuccess(ctx context.Context, logger *zap.Logger, runID int64, summary *Summary) error {
	summary.Status = store.RunSuccess
	if err := r.writer.FinishRun(ctx, runID, store.RunSuccess, r.clock.Now(),
		summary.RecordsRead, summary.RecordsLoaded, summary.Notes()); err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	logger.Info("ingest run succeeded",
		zap.Int64("run_id", runID),
		zap.Int("records_read", summary.RecordsRead),
		zap.Int("records_loaded", summary.RecordsLoaded),
		zap.Int("records_skipped", summary.RecordsSkipped))
	return nil
}

// fail marks the run failed with the error in the audit notes, then returns
// the original error for the caller to propagate as a non-zero exit.
func (r *Runner) fail(ctx context.Context, logger *zap.Logger, runID int64, summary *Summary, cause error) error {
	summary.Status = store.RunFailed
	logger.Error("ingest run failed", zap.Int64("run_id", runID), zap.Error(cause))

	// The terminal write must go through even when the triggering context is
	// already canceled.
	finishCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := r.writer.FinishRun(finishCtx, runID, store.RunFailed, r.clock.Now(),
		summary.RecordsRead, summary.RecordsLoaded, cause.Error()); err != nil {
		logger.Error("failed to close audit row", zap.Int64("run_id", runID), zap.Error(err))
	}
	return cause
}
