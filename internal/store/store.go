// Package store is the row-level access to the business tables. It exposes
// only what the PDF pipeline needs: lookup by a single column (primary key or
// glide_row_id), batched IN lookups, the pdf url write-back, and the scan for
// documents still missing a PDF.
package store

import (
	"context"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

// Repository is implemented by Gorm and Memory. Table names are passed
// unprefixed; implementations apply the deployment prefix.
type Repository interface {
	// FindOne returns nil, nil when no row matches.
	FindOne(ctx context.Context, table, column, value string) (models.Row, error)
	FindMany(ctx context.Context, table, column, value string) ([]models.Row, error)
	FindIn(ctx context.Context, table, column string, values []string) ([]models.Row, error)
	// UpdateColumn sets one column of the row whose id equals id.
	UpdateColumn(ctx context.Context, table, id, column string, value any) error
	// ListPending pages through table ordered by id.
	ListPending(ctx context.Context, table string, q PendingQuery) ([]models.Row, error)
}

// PendingQuery selects one scan page.
type PendingQuery struct {
	// IncludeLinked also returns rows whose supabase_pdf_url is set.
	IncludeLinked bool
	// Exclude drops rows whose Row.Key is listed.
	Exclude []string
	Limit   int
	Offset  int
}
