// Package store persists catalog entities in Postgres through find-or-create
// and update-in-place operations. It never deletes rows.
package store

import "time"

// RunStatus is the lifecycle state of an EtlRun audit row.
type RunStatus string

// Run status values persisted in the etl_run table.
const (
	RunStarted RunStatus = "started"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Publisher is the identity anchor for a catalog source.
type Publisher struct {
	ID   int64
	Name string
}

// Series is a titled run of issues, fingerprinted by
// (source_system, source_key) when the external id is known.
type Series struct {
	ID           int64
	Title        string
	PublisherID  *int64
	StartYear    *int
	Volume       *int
	SourceSystem string
	SourceKey    *string
}

// IssueRecord is the flat, normalized form of one upstream issue, ready to
// be upserted. Nil pointers mean the field was absent upstream.
type IssueRecord struct {
	SourceComicID *int64
	IssueNumber   *string
	Title         *string
	Description   *string
	ReleaseDate   *time.Time
	OnsaleDate    *time.Time
	PriceCents    *int
	ISBN          *string
	UPC           *string
	CoverURL      *string
	IsVariant     bool
	VariantName   *string
	IssueOrder    int
}

// EtlRun is the durable audit record of one ingestion execution.
type EtlRun struct {
	ID            int64
	SourceSystem  string
	Status        RunStatus
	StartedAt     time.Time
	FinishedAt    *time.Time
	RecordsRead   int
	RecordsLoaded int
	Notes         string
}
