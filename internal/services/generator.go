package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Lllllllleong/documentpdfflow/internal/aggregate"
	"github.com/Lllllllleong/documentpdfflow/internal/apperr"
	"github.com/Lllllllleong/documentpdfflow/internal/blob"
	"github.com/Lllllllleong/documentpdfflow/internal/lock"
	"github.com/Lllllllleong/documentpdfflow/internal/models"
	"github.com/Lllllllleong/documentpdfflow/internal/pdf"
	"github.com/Lllllllleong/documentpdfflow/internal/resolver"
	"github.com/Lllllllleong/documentpdfflow/internal/store"
)

var tracer = otel.Tracer("documentpdfflow/services")

// GenerateOptions gate regeneration of a document that already has a PDF.
// Uploads always overwrite; these only decide whether to upload at all.
type GenerateOptions struct {
	ForceRegenerate   bool `json:"forceRegenerate"`
	OverwriteExisting bool `json:"overwriteExisting"`
}

func (o GenerateOptions) regenerate() bool { return o.ForceRegenerate || o.OverwriteExisting }

// Outcome of one single-document generation.
type Outcome struct {
	Type models.DocumentType
	// ID is the surrogate id of the document row.
	ID         string
	URL        string
	StorageKey string
	// Skipped is set when the existing URL was returned without rendering.
	Skipped bool
	Pages   int
}

// Generator runs the single-document pipeline: resolve, build, render,
// upload, link.
type Generator struct {
	repo     store.Repository
	resolver *resolver.Resolver
	renderer *pdf.Renderer
	objects  blob.ObjectStore
	locker   lock.Locker
	log      *slog.Logger
}

func NewGenerator(repo store.Repository, objects blob.ObjectStore, locker lock.Locker, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Generator{
		repo:     repo,
		resolver: resolver.New(repo, log),
		renderer: pdf.NewRenderer(),
		objects:  objects,
		locker:   locker,
		log:      log,
	}
}

// Generate produces, stores and links the PDF of one document. docID may be
// the surrogate id or the glide_row_id. Every failure is an *apperr.Error.
func (g *Generator) Generate(ctx context.Context, docType models.DocumentType, docID string, opts GenerateOptions) (*Outcome, error) {
	_, out, err := g.generate(ctx, docType, docID, opts)
	return out, err
}

// generate also returns the document key (Row.Key of the root) the run was
// locked under, so callers track outcomes under one id whichever id they were
// given. Before the root is found the key is docID.
func (g *Generator) generate(ctx context.Context, docType models.DocumentType, docID string, opts GenerateOptions) (key string, out *Outcome, err error) {
	ctx, span := tracer.Start(ctx, "services.Generate", trace.WithAttributes(
		attribute.String("document.type", string(docType)),
		attribute.String("document.id", docID),
		attribute.Bool("document.force", opts.regenerate()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// --- 1. Validate the request ---
	cfg, err := models.ConfigFor(docType)
	if err != nil {
		return docID, nil, apperr.Validation("%v", err)
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return docID, nil, apperr.Validation("document id is required")
	}

	// --- 2. Find the root and its key ---
	root, err := g.resolver.Root(ctx, docType, docID)
	if err != nil {
		return docID, nil, err
	}
	key = root.Key()
	if key == "" {
		key = docID
	}
	span.SetAttributes(attribute.String("document.key", key))
	logCtx := g.log.With("documentType", docType, "documentId", key)

	// --- 3. Take the per-document lock and re-read under it ---
	release, err := g.locker.Acquire(ctx, lock.Key(string(docType), key))
	if errors.Is(err, lock.ErrNotObtained) {
		logCtx.Warn("Lock not obtained; another run is generating this document.")
		return key, nil, apperr.Conflict(fmt.Sprintf("%s %s is already being generated", docType, key), err)
	}
	if err != nil {
		logCtx.Warn("Lock unavailable; continuing unlocked.", "error", err)
	} else {
		defer release(context.WithoutCancel(ctx))
		if root, err = g.resolver.Root(ctx, docType, key); err != nil {
			return key, nil, err
		}
	}

	// --- 4. Short-circuit on an existing PDF ---
	if existing := root.String(models.ColPDFURL); existing != "" && !opts.regenerate() {
		logCtx.Info("PDF already linked; skipping generation.", "url", existing)
		return key, &Outcome{Type: docType, ID: root.String(models.ColID), URL: existing, Skipped: true}, nil
	}

	// --- 5. Resolve relations and build the aggregate ---
	agg, err := g.build(ctx, docType, root)
	if err != nil {
		return key, nil, err
	}
	doc := agg.Header()

	// --- 6. Render and post-process ---
	data, info, err := g.render(ctx, agg)
	if err != nil {
		return key, nil, err
	}
	logCtx.Info("Rendered PDF.", "pages", info.Pages, "bytes", info.OptimizedSize, "originalBytes", info.OriginalSize)

	// --- 7. Upload ---
	objectKey, err := StorageKey(docType, doc)
	if err != nil {
		return key, nil, apperr.Generation("failed to derive storage key", err)
	}
	if err := g.upload(ctx, objectKey, data); err != nil {
		return key, nil, err
	}
	url := g.objects.PublicURL(objectKey)
	if url == "" {
		return key, nil, apperr.Storage("no public url for "+objectKey, nil)
	}

	// --- 8. Link the URL to the document row ---
	if err := g.link(ctx, cfg, doc.ID, url); err != nil {
		logCtx.Error("PDF uploaded but linking failed; reconcile manually.",
			"storageKey", objectKey, "url", url, "table", cfg.Table, "surrogateId", doc.ID, "error", err)
		return key, nil, err
	}

	logCtx.Info("PDF generated and linked.", "storageKey", objectKey, "url", url)
	return key, &Outcome{Type: docType, ID: doc.ID, URL: url, StorageKey: objectKey, Pages: info.Pages}, nil
}

// Prepare resolves and builds a document without rendering or storing it.
// It returns the aggregate and the filename the PDF is stored under.
func (g *Generator) Prepare(ctx context.Context, docType models.DocumentType, docID string) (models.Aggregate, string, error) {
	if _, err := models.ConfigFor(docType); err != nil {
		return nil, "", apperr.Validation("%v", err)
	}
	root, err := g.resolver.Root(ctx, docType, strings.TrimSpace(docID))
	if err != nil {
		return nil, "", err
	}
	agg, err := g.build(ctx, docType, root)
	if err != nil {
		return nil, "", err
	}
	name, err := Filename(docType, agg.Header())
	if err != nil {
		return nil, "", apperr.Generation("failed to derive filename", err)
	}
	return agg, name, nil
}

// RenderTo streams agg to w as a PDF.
func (g *Generator) RenderTo(ctx context.Context, w io.Writer, agg models.Aggregate) (n int64, err error) {
	_, span := tracer.Start(ctx, "services.RenderTo")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Generation("renderer panicked", fmt.Errorf("%v", r))
		}
	}()
	n, err = g.renderer.RenderTo(w, agg)
	if err != nil {
		return n, apperr.Generation("failed to render pdf", err)
	}
	return n, nil
}

func (g *Generator) build(ctx context.Context, docType models.DocumentType, root models.Row) (models.Aggregate, error) {
	res, err := g.resolver.Relations(ctx, docType, root)
	if err != nil {
		return nil, err
	}
	agg, err := aggregate.Build(res)
	if err != nil {
		return nil, apperr.Generation("failed to build aggregate", err)
	}
	return agg, nil
}

func (g *Generator) render(ctx context.Context, agg models.Aggregate) (data []byte, info pdf.Info, err error) {
	_, span := tracer.Start(ctx, "services.Render")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Generation("renderer panicked", fmt.Errorf("%v", r))
		}
	}()

	raw, err := g.renderer.Render(agg)
	if err != nil {
		return nil, info, apperr.Generation("failed to render pdf", err)
	}
	if len(raw) == 0 {
		return nil, info, apperr.Generation("renderer returned no bytes", nil)
	}
	data, info, err = pdf.Inspect(raw)
	if err != nil {
		return nil, info, apperr.Generation("rendered pdf is invalid", err)
	}
	span.SetAttributes(attribute.Int("pdf.pages", info.Pages), attribute.Int("pdf.bytes", info.OptimizedSize))
	return data, info, nil
}

func (g *Generator) upload(ctx context.Context, key string, data []byte) error {
	ctx, span := tracer.Start(ctx, "services.Upload", trace.WithAttributes(attribute.String("storage.key", key)))
	defer span.End()
	if err := g.objects.Upload(ctx, key, data, blob.ContentTypePDF); err != nil {
		span.RecordError(err)
		return apperr.Storage("failed to upload "+key, err)
	}
	return nil
}

func (g *Generator) link(ctx context.Context, cfg models.DocumentConfig, id, url string) error {
	ctx, span := tracer.Start(ctx, "services.Link")
	defer span.End()
	if id == "" {
		return apperr.Database("cannot link pdf: document has no id", nil)
	}
	if err := g.repo.UpdateColumn(ctx, cfg.Table, id, models.ColPDFURL, url); err != nil {
		span.RecordError(err)
		return apperr.Database("failed to link pdf url", err)
	}
	return nil
}
