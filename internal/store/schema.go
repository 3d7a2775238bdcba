package store

import (
	"context"
	"fmt"
)

// schemaDDL creates the catalog tables. Idempotent via IF NOT EXISTS.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS publisher (
	publisher_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS series (
	series_id     BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	title         TEXT NOT NULL,
	publisher_id  BIGINT REFERENCES publisher (publisher_id),
	start_year    INTEGER,
	volume        INTEGER,
	source_system TEXT,
	source_key    TEXT,
	UNIQUE (source_system, source_key)
);

CREATE TABLE IF NOT EXISTS issue (
	issue_id        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	series_id       BIGINT NOT NULL REFERENCES series (series_id),
	issue_number    TEXT NOT NULL,
	title           TEXT,
	description     TEXT,
	release_date    DATE,
	onsale_date     DATE,
	price_cents     INTEGER,
	isbn            TEXT,
	upc             TEXT,
	cover_url       TEXT,
	source_comic_id BIGINT UNIQUE,
	is_variant      BOOLEAN NOT NULL DEFAULT FALSE,
	variant_name    TEXT,
	issue_order     INTEGER,
	UNIQUE (series_id, issue_number)
);

CREATE INDEX IF NOT EXISTS issue_series_idx ON issue (series_id);

CREATE TABLE IF NOT EXISTS etl_run (
	run_id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	source_system  TEXT NOT NULL,
	status         TEXT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ,
	records_read   INTEGER NOT NULL DEFAULT 0,
	records_loaded INTEGER NOT NULL DEFAULT 0,
	notes          TEXT NOT NULL DEFAULT ''
);
`

// CreateSchema creates the catalog tables if they do not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
