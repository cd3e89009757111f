package etl

import (
	"context"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// Extractor returns one page of records per call. A nil offset asks for the
// first page; a nil next offset means there are no more pages.
type Extractor interface {
	Extract(ctx context.Context, offset any) ([]models.Record, any, error)
}

// Loader writes normalized rows to a destination.
type Loader interface {
	// EnsureTable creates the table or adds the columns it is missing. It
	// may change column types in table to the wider types already stored,
	// and fails when a stored column cannot hold the new values.
	EnsureTable(ctx context.Context, table *models.TableSchema) error
	// Truncate removes all rows before a replace load.
	Truncate(ctx context.Context, table *models.TableSchema) error
	// Load appends or upserts rows according to the table's write disposition.
	Load(ctx context.Context, table *models.TableSchema, rows []models.Record) error
	Close() error
}
