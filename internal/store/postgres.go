package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/comixcatalog/etl/internal/config"
)

// pgxPool is the subset of pgxpool.Pool the store needs. pgxmock satisfies
// it in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store is the idempotent writer over the relational sink.
type Store struct {
	pool         pgxPool
	sourceSystem string
	overwrite    bool
	logger       *zap.Logger
}

// New connects a Store to Postgres. overwrite controls whether an existing
// issue row's descriptive fields are refreshed by later payloads.
func New(ctx context.Context, cfg config.DBConfig, sourceSystem string, overwrite bool, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithPool(pool, sourceSystem, overwrite, logger), nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool, sourceSystem string, overwrite bool, logger *zap.Logger) *Store {
	return &Store{
		pool:         pool,
		sourceSystem: sourceSystem,
		overwrite:    overwrite,
		logger:       logger,
	}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// GetOrCreatePublisher finds a publisher by name, creating it on first
// encounter. Safe to call repeatedly.
func (s *Store) GetOrCreatePublisher(ctx context.Context, name string) (Publisher, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT publisher_id FROM publisher WHERE name = $1`, name).Scan(&id)
	switch {
	case err == nil:
		return Publisher{ID: id, Name: name}, nil
	case errors.Is(err, pgx.ErrNoRows):
		err = s.pool.QueryRow(ctx,
			`INSERT INTO publisher (name) VALUES ($1) RETURNING publisher_id`, name).Scan(&id)
		if err != nil {
			return Publisher{}, fmt.Errorf("insert publisher %q: %w", name, err)
		}
		return Publisher{ID: id, Name: name}, nil
	default:
		return Publisher{}, fmt.Errorf("select publisher %q: %w", name, err)
	}
}

// UpsertSeries finds a series by its (source_system, source_key) fingerprint
// when sourceKey is known, falling back to a title-equality lookup. A found
// row gains the publisher link if it was missing and is otherwise returned
// unchanged; a missing row is inserted. Repeated identical calls never
// create duplicates.
func (s *Store) UpsertSeries(ctx context.Context, publisherID int64, title, sourceKey string) (Series, error) {
	var (
		id        int64
		curPubID  *int64
		lookupErr error
	)
	if sourceKey != "" {
		lookupErr = s.pool.QueryRow(ctx,
			`SELECT series_id, publisher_id FROM series WHERE source_system = $1 AND source_key = $2`,
			s.sourceSystem, sourceKey).Scan(&id, &curPubID)
	} else {
		lookupErr = s.pool.QueryRow(ctx,
			`SELECT series_id, publisher_id FROM series WHERE title = $1`,
			title).Scan(&id, &curPubID)
	}

	switch {
	case lookupErr == nil:
		if curPubID == nil {
			if _, err := s.pool.Exec(ctx,
				`UPDATE series SET publisher_id = $1 WHERE series_id = $2`,
				publisherID, id); err != nil {
				return Series{}, fmt.Errorf("backfill publisher for series %d: %w", id, err)
			}
			curPubID = &publisherID
		}
		return Series{
			ID:           id,
			Title:        title,
			PublisherID:  curPubID,
			SourceSystem: s.sourceSystem,
			SourceKey:    nilIfEmpty(sourceKey),
		}, nil

	case errors.Is(lookupErr, pgx.ErrNoRows):
		err := s.pool.QueryRow(ctx,
			`INSERT INTO series (title, publisher_id, source_system, source_key)
			 VALUES ($1, $2, $3, $4)
			 RETURNING series_id`,
			title, publisherID, s.sourceSystem, nilIfEmpty(sourceKey)).Scan(&id)
		if err != nil {
			return Series{}, fmt.Errorf("insert series %q: %w", title, err)
		}
		s.logger.Info("series created",
			zap.Int64("series_id", id),
			zap.String("title", title),
			zap.String("source_key", sourceKey))
		return Series{
			ID:           id,
			Title:        title,
			PublisherID:  &publisherID,
			SourceSystem: s.sourceSystem,
			SourceKey:    nilIfEmpty(sourceKey),
		}, nil

	default:
		return Series{}, fmt.Errorf("lookup series %q: %w", title, lookupErr)
	}
}

// UpsertIssue writes one issue under its series. The external comic id is
// the preferred identity; the (series_id, issue_number) natural key is the
// fallback. Existing rows have their descriptive fields overwritten in place
// unless the store was built with overwrite disabled. The loaded flag is
// false only when the record lacks the minimum identifying data and was
// skipped.
func (s *Store) UpsertIssue(ctx context.Context, seriesID int64, rec IssueRecord) (issueID int64, loaded bool, err error) {
	if rec.IssueNumber == nil {
		return 0, false, nil
	}

	var id int64
	var lookupErr error
	if rec.SourceComicID != nil {
		lookupErr = s.pool.QueryRow(ctx,
			`SELECT issue_id FROM issue WHERE source_comic_id = $1`,
			*rec.SourceComicID).Scan(&id)
	} else {
		lookupErr = s.pool.QueryRow(ctx,
			`SELECT issue_id FROM issue WHERE series_id = $1 AND issue_number = $2`,
			seriesID, *rec.IssueNumber).Scan(&id)
	}

	switch {
	case lookupErr == nil:
		if !s.overwrite {
			return id, true, nil
		}
		if _, err := s.pool.Exec(ctx,
			`UPDATE issue SET
				title = $1,
				description = $2,
				release_date = $3,
				onsale_date = $4,
				price_cents = $5,
				isbn = $6,
				upc = $7,
				cover_url = $8,
				source_comic_id = $9,
				is_variant = $10,
				variant_name = $11
			 WHERE issue_id = $12`,
			rec.Title, rec.Description, rec.ReleaseDate, rec.OnsaleDate,
			rec.PriceCents, rec.ISBN, rec.UPC, rec.CoverURL,
			rec.SourceComicID, rec.IsVariant, rec.VariantName, id); err != nil {
			return 0, false, fmt.Errorf("update issue %d: %w", id, err)
		}
		return id, true, nil

	case errors.Is(lookupErr, pgx.ErrNoRows):
		err := s.pool.QueryRow(ctx,
			`INSERT INTO issue (
				series_id, issue_number, title, description,
				release_date, onsale_date, price_cents, isbn, upc,
				cover_url, source_comic_id, is_variant, variant_name, issue_order)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			 RETURNING issue_id`,
			seriesID, *rec.IssueNumber, rec.Title, rec.Description,
			rec.ReleaseDate, rec.OnsaleDate, rec.PriceCents, rec.ISBN, rec.UPC,
			rec.CoverURL, rec.SourceComicID, rec.IsVariant, rec.VariantName,
			rec.IssueOrder).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("insert issue %s of series %d: %w",
				*rec.IssueNumber, seriesID, err)
		}
		return id, true, nil

	default:
		return 0, false, fmt.Errorf("lookup issue of series %d: %w", seriesID, lookupErr)
	}
}

// StartRun opens an EtlRun audit row with status started and zero counters.
// It is committed immediately so the record survives a later crash.
func (s *Store) StartRun(ctx context.Context, startedAt time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO etl_run (source_system, status, started_at, records_read, records_loaded, notes)
		 VALUES ($1, $2, $3, 0, 0, '')
		 RETURNING run_id`,
		s.sourceSystem, RunStarted, startedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start etl run: %w", err)
	}
	return id, nil
}

// FinishRun performs the single terminal write to an EtlRun row.
func (s *Store) FinishRun(ctx context.Context, runID int64, status RunStatus, finishedAt time.Time, read, loaded int, notes string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE etl_run
		 SET status = $1, finished_at = $2, records_read = $3, records_loaded = $4, notes = $5
		 WHERE run_id = $6`,
		status, finishedAt, read, loaded, notes, runID); err != nil {
		return fmt.Errorf("finish etl run %d: %w", runID, err)
	}
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
