// Package resolver loads a document row and every row it references through
// glide references (rowid_* columns holding another row's glide_row_id).
package resolver

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/documentpdfflow/internal/apperr"
	"github.com/Lllllllleong/documentpdfflow/internal/models"
	"github.com/Lllllllleong/documentpdfflow/internal/store"
)

// Result is the raw material for one aggregate. Relations that could not be
// loaded are empty, never an error.
type Result struct {
	Type   models.DocumentType
	Config models.DocumentConfig
	Root   models.Row
	// Account is nil when rowid_accounts is empty or does not resolve.
	Account models.Row
	Lines   []models.Row
	// Products is keyed by glide_row_id.
	Products map[string]models.Row
	Payments []models.Row
	// LegacyLines is set when purchase order lines came from the products table.
	LegacyLines bool
}

type Resolver struct {
	repo store.Repository
	log  *slog.Logger
}

func New(repo store.Repository, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{repo: repo, log: log}
}

// Resolve loads the root by primary key, falling back to glide_row_id, then
// fetches account, lines (with their products) and payments concurrently.
func (r *Resolver) Resolve(ctx context.Context, docType models.DocumentType, docID string) (*Result, error) {
	root, err := r.Root(ctx, docType, docID)
	if err != nil {
		return nil, err
	}
	return r.Relations(ctx, docType, root)
}

// Root loads only the document row.
func (r *Resolver) Root(ctx context.Context, docType models.DocumentType, docID string) (models.Row, error) {
	ctx, span := otel.Tracer("documentpdfflow/resolver").Start(ctx, "resolver.Root")
	defer span.End()
	span.SetAttributes(attribute.String("document.type", string(docType)), attribute.String("document.id", docID))

	cfg, err := models.ConfigFor(docType)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	root, err := r.findRoot(ctx, r.log.With("documentType", docType, "documentId", docID), cfg, docID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return root, nil
}

// Relations fetches everything root references. Failed relation queries are
// logged and leave that relation empty.
func (r *Resolver) Relations(ctx context.Context, docType models.DocumentType, root models.Row) (*Result, error) {
	ctx, span := otel.Tracer("documentpdfflow/resolver").Start(ctx, "resolver.Relations")
	defer span.End()

	cfg, err := models.ConfigFor(docType)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	logCtx := r.log.With("documentType", docType, "documentId", root.String(models.ColID))

	res := &Result{Type: docType, Config: cfg, Root: root, Products: map[string]models.Row{}}
	glideID := root.String(models.ColGlideRowID)
	if glideID == "" {
		logCtx.Warn("Document has no glide_row_id; rendering without relations.")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.Account = r.account(gctx, logCtx, root)
		return nil
	})
	if glideID != "" {
		g.Go(func() error {
			res.Lines, res.Products, res.LegacyLines = r.lines(gctx, logCtx, cfg, glideID)
			return nil
		})
		g.Go(func() error {
			res.Payments = r.many(gctx, logCtx, "payments", cfg.PaymentsTable, cfg.PaymentRefField, glideID)
			return nil
		})
	}
	_ = g.Wait()

	logCtx.Debug("Resolved document relations.",
		"hasAccount", res.Account != nil, "lines", len(res.Lines), "products", len(res.Products), "payments", len(res.Payments))
	return res, nil
}

func (r *Resolver) findRoot(ctx context.Context, logCtx *slog.Logger, cfg models.DocumentConfig, docID string) (models.Row, error) {
	if docID == "" {
		return nil, apperr.Validation("document id is required")
	}
	// A glide_row_id is not a valid primary key value on every backend, so a
	// failing id lookup still falls through to the glide_row_id lookup.
	row, idErr := r.repo.FindOne(ctx, cfg.Table, models.ColID, docID)
	if idErr == nil && row != nil {
		return row, nil
	}
	if idErr != nil {
		logCtx.Debug("Lookup by id failed; trying glide_row_id.", "error", idErr)
	}
	row, err := r.repo.FindOne(ctx, cfg.Table, models.ColGlideRowID, docID)
	if err != nil {
		return nil, apperr.Fetch("failed to fetch "+string(cfg.Type)+" "+docID, err)
	}
	if row == nil {
		if idErr != nil {
			return nil, apperr.Fetch("failed to fetch "+string(cfg.Type)+" "+docID, idErr)
		}
		return nil, apperr.NotFound(string(cfg.Type) + " " + docID + " not found")
	}
	return row, nil
}

func (r *Resolver) account(ctx context.Context, logCtx *slog.Logger, root models.Row) models.Row {
	ref := models.RefOf[models.Account](root, models.ColAccountRef)
	if ref.IsZero() {
		return nil
	}
	row, err := r.repo.FindOne(ctx, models.AccountsTable, models.ColGlideRowID, ref.String())
	if err != nil {
		logCtx.Warn("Relation query failed; continuing with empty relation.", "relation", "account", "error", err)
		return nil
	}
	if row == nil {
		logCtx.Info("Referenced account not found.", "rowidAccounts", ref.String())
	}
	return row
}

func (r *Resolver) many(ctx context.Context, logCtx *slog.Logger, relation, table, column, glideID string) []models.Row {
	if table == "" || column == "" {
		return nil
	}
	rows, err := r.repo.FindMany(ctx, table, column, glideID)
	if err != nil {
		logCtx.Warn("Relation query failed; continuing with empty relation.", "relation", relation, "table", table, "error", err)
		return nil
	}
	return rows
}

func (r *Resolver) lines(ctx context.Context, logCtx *slog.Logger, cfg models.DocumentConfig, glideID string) ([]models.Row, map[string]models.Row, bool) {
	var lines []models.Row
	for _, field := range cfg.LineRefFields {
		lines = r.many(ctx, logCtx, "lines", cfg.LinesTable, field, glideID)
		if len(lines) > 0 {
			break
		}
	}

	if len(lines) == 0 && cfg.LegacyLinesTable != "" {
		legacy := r.many(ctx, logCtx, "legacy lines", cfg.LegacyLinesTable, cfg.LegacyLineRefField, glideID)
		if len(legacy) > 0 {
			products := make(map[string]models.Row, len(legacy))
			for _, p := range legacy {
				if id := p.String(models.ColGlideRowID); id != "" {
					products[id] = p
				}
			}
			return legacy, products, true
		}
	}

	return lines, r.products(ctx, logCtx, lines), false
}

// products resolves every distinct rowid_products of lines with one IN query.
func (r *Resolver) products(ctx context.Context, logCtx *slog.Logger, lines []models.Row) map[string]models.Row {
	out := map[string]models.Row{}
	seen := map[string]bool{}
	var refs []string
	for _, l := range lines {
		ref := models.RefOf[models.Product](l, models.ColProductRef)
		if ref.IsZero() || seen[ref.String()] {
			continue
		}
		seen[ref.String()] = true
		refs = append(refs, ref.String())
	}
	if len(refs) == 0 {
		return out
	}
	sort.Strings(refs)

	rows, err := r.repo.FindIn(ctx, models.ProductsTable, models.ColGlideRowID, refs)
	if err != nil {
		logCtx.Warn("Relation query failed; continuing with empty relation.", "relation", "products", "error", err)
		return out
	}
	for _, p := range rows {
		out[p.String(models.ColGlideRowID)] = p
	}
	return out
}
