package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/dgallion1/ragdoc/internal/chunker"
	"github.com/dgallion1/ragdoc/internal/config"
	"github.com/dgallion1/ragdoc/internal/document"
	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/parser"
	"github.com/dgallion1/ragdoc/internal/vectorstore"
)

// Embedder produces the vector for one fragment, or nil when the
// fragment has nothing embeddable.
type Embedder interface {
	Embed(ctx context.Context, f fragment.Fragment) ([]float32, error)
}

// Result summarises one ingestion run.
type Result struct {
	DocumentKey  string `json:"document_key"`
	ManifestPath string `json:"manifest_path"`
	Cached       bool   `json:"cached"`
	Fragments    int    `json:"fragments"`
	Embedded     int    `json:"embedded"`
	Skipped      int    `json:"skipped"`
	Stored       int    `json:"stored"`
}

// Ingester turns a document URL into stored fragment vectors.
type Ingester struct {
	storageRoot string
	fetcher     *Fetcher
	parseOpts   parser.Options
	chunkCfg    chunker.Config
	embedder    Embedder
	store       vectorstore.Store
	pool        *ants.Pool
	log         *slog.Logger
}

// NewIngester builds an ingester whose embedding fan-out is bounded by
// cfg.EmbedWorkers. Call Close to release the worker pool.
func NewIngester(cfg config.Config, embedder Embedder, store vectorstore.Store, log *slog.Logger) (*Ingester, error) {
	root, err := filepath.Abs(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}

	pool, err := ants.NewPool(max(cfg.EmbedWorkers, 1),
		ants.WithExpiryDuration(30*time.Second),
		ants.WithPanicHandler(func(p any) {
			log.Error("embed worker panic", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create embed pool: %w", err)
	}

	return &Ingester{
		storageRoot: root,
		fetcher:     NewFetcher(cfg.MaxDownloadBytes, log),
		parseOpts: parser.Options{
			FallbackPdftotext: cfg.PDFFallbackPdftotext,
			ExtractImages:     cfg.IngestImages,
		},
		chunkCfg: chunker.Config{
			MaxChars: cfg.ChunkMaxChars,
			Overlap:  cfg.ChunkOverlap,
		},
		embedder: embedder,
		store:    store,
		pool:     pool,
		log:      log,
	}, nil
}

// Close releases the embed worker pool.
func (in *Ingester) Close() {
	in.pool.Release()
}

// StorageRoot is the absolute directory documents are cached under.
func (in *Ingester) StorageRoot() string {
	return in.storageRoot
}

// Ingest runs the whole pipeline for one URL.
func (in *Ingester) Ingest(ctx context.Context, rawURL string) (*Result, error) {
	return in.Run(ctx, rawURL, nil)
}

// Run is Ingest with progress reporting. Any failure aborts the run
// before the store is written.
func (in *Ingester) Run(ctx context.Context, rawURL string, p Progress) (*Result, error) {
	if p == nil {
		p = nopProgress{}
	}

	key := DocumentKey(rawURL)
	dir := DocumentDir(in.storageRoot, key)
	log := in.log.With("url", rawURL, "document_key", key)

	// Phase 1: Fetch
	p.SetPhase(StatusFetching)
	src := filepath.Join(dir, "source"+sourceExt(rawURL))
	cached, err := in.fetcher.Fetch(ctx, rawURL, src)
	if err != nil {
		return nil, err
	}

	// Phase 2: Extract
	p.SetPhase(StatusExtracting)
	doc, err := in.extract(src)
	if err != nil {
		return nil, err
	}

	frags, err := in.buildFragments(doc, dir)
	if err != nil {
		return nil, err
	}
	p.SetTotalFragments(len(frags))

	manifestPath := filepath.Join(dir, ManifestFile)
	err = WriteManifest(manifestPath, &fragment.Manifest{
		DocumentURL: rawURL,
		DocumentKey: key,
		Title:       doc.Title,
		CreatedAt:   time.Now().UTC(),
		Fragments:   frags,
	})
	if err != nil {
		return nil, err
	}
	log.Info("wrote manifest", "fragments", len(frags), "pages", len(doc.Pages), "images", doc.ImageCount())

	// Phase 3: Embed
	p.SetPhase(StatusEmbedding)
	vectors, err := in.embedAll(ctx, frags, p)
	if err != nil {
		return nil, err
	}

	entries := make([]vectorstore.Entry, 0, len(frags))
	for i, f := range frags {
		if vectors[i] == nil {
			log.Debug("dropping fragment with nothing to embed", "fragment_id", f.ID)
			continue
		}
		f.Embedding = vectors[i]
		entries = append(entries, vectorstore.EntryFor(f))
	}

	// Phase 4: Store
	p.SetPhase(StatusStoring)
	stored, err := in.store.Upsert(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("store fragments: %w", err)
	}

	res := &Result{
		DocumentKey:  key,
		ManifestPath: manifestPath,
		Cached:       cached,
		Fragments:    len(frags),
		Embedded:     len(entries),
		Skipped:      len(frags) - len(entries),
		Stored:       stored,
	}
	log.Info("ingestion complete", "embedded", res.Embedded, "skipped", res.Skipped, "stored", res.Stored)
	return res, nil
}

// sourceExt keeps a supported extension from the URL path so non-PDF
// sources reach the right parser. Everything else is treated as PDF.
func sourceExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".pdf"
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || !parser.IsSupportedExtension("f"+ext) {
		return ".pdf"
	}
	return ext
}

func (in *Ingester) extract(src string) (*document.Document, error) {
	p, err := parser.ForFile(src, in.parseOpts)
	if err != nil {
		return nil, &ExtractionError{Source: src, Err: err}
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, &ExtractionError{Source: src, Err: err}
	}
	defer f.Close()

	doc, err := p.Parse(f, filepath.Base(src))
	if err != nil {
		return nil, &ExtractionError{Source: src, Err: err}
	}
	return doc, nil
}

// buildFragments segments each page's text and writes each page image to
// its deterministic path. Per page, text fragments come before images.
func (in *Ingester) buildFragments(doc *document.Document, dir string) ([]fragment.Fragment, error) {
	var frags []fragment.Fragment
	for _, page := range doc.Pages {
		for i, seg := range chunker.Segment(page.Text, in.chunkCfg) {
			frags = append(frags, fragment.NewText(page.Number, i, seg))
		}
		for _, img := range page.Images {
			if len(img.Data) == 0 {
				continue
			}
			name := img.Filename(page.Number)
			imgPath := filepath.Join(dir, name)
			if err := os.WriteFile(imgPath, img.Data, 0o644); err != nil {
				return nil, fmt.Errorf("write image %s: %w", name, err)
			}
			frags = append(frags, fragment.NewImage(page.Number, name, imgPath))
		}
	}
	if frags == nil {
		frags = []fragment.Fragment{}
	}
	return frags, nil
}

// embedAll embeds fragments on the worker pool. The first error cancels
// the remaining work and is returned. Slots of fragments with nothing to
// embed stay nil.
func (in *Ingester) embedAll(ctx context.Context, frags []fragment.Fragment, p Progress) ([][]float32, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	vectors := make([][]float32, len(frags))
	var wg sync.WaitGroup

	for i := range frags {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := in.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					cancel(fmt.Errorf("embed %s: panic: %v", frags[i].ID, r))
				}
			}()
			if ctx.Err() != nil {
				return
			}
			v, err := in.embedder.Embed(ctx, frags[i])
			if err != nil {
				cancel(err)
				return
			}
			vectors[i] = v
			p.IncrEmbedded()
		})
		if err != nil {
			wg.Done()
			cancel(fmt.Errorf("submit embed task: %w", err))
			break
		}
	}
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return vectors, nil
}
