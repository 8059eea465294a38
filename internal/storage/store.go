package storage

import (
	"context"

	"snapdiff/internal/catalog"
	"snapdiff/internal/narrate"
)

// HistoryStore exports the outcome of one run for ad-hoc querying.
type HistoryStore interface {
	// SaveCatalog writes every snapshot and every version chain of the catalog.
	SaveCatalog(ctx context.Context, cat *catalog.Catalog) error

	// SaveChanges writes the narrated change lines.
	SaveChanges(ctx context.Context, sections []narrate.Section) error

	Close() error
}
