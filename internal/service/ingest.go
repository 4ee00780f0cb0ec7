package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"recipechat/internal/domain"
	"recipechat/internal/metrics"
)

// ErrNoDocuments is returned when an index build ends without a single
// indexed document.
var ErrNoDocuments = errors.New("no documents could be indexed")

// DocumentReport describes what happened to one source document.
type DocumentReport struct {
	Path   string
	Name   string
	Chunks int
	Err    error
}

// Report summarizes an index build.
type Report struct {
	Documents []DocumentReport
	Chunks    int
	Summary   string
}

// Failed returns the documents that were dropped.
func (r Report) Failed() []DocumentReport {
	var out []DocumentReport
	for _, d := range r.Documents {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// IngestorConfig tunes an Ingestor.
type IngestorConfig struct {
	// FailFast aborts the build on the first document failure instead of
	// dropping that document.
	FailFast         bool
	Concurrency      int
	TopK             int
	SummarySentences int
	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
}

// Ingestor loads, chunks and embeds documents into a vector store.
type Ingestor struct {
	loader     domain.DocumentLoader
	chunker    domain.Chunker
	embedder   domain.Embedder
	store      domain.VectorStore
	summarizer domain.Summarizer
	cfg        IngestorConfig
	log        zerolog.Logger
}

func NewIngestor(loader domain.DocumentLoader, chunker domain.Chunker, embedder domain.Embedder, store domain.VectorStore, summarizer domain.Summarizer, cfg IngestorConfig) *Ingestor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	return &Ingestor{
		loader:     loader,
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		summarizer: summarizer,
		cfg:        cfg,
		log:        cfg.Logger.With().Str("component", "ingest").Logger(),
	}
}

type loaded struct {
	doc    domain.Document
	chunks []domain.Chunk
}

// Ingest builds a fresh index from paths and returns a Retriever over it.
func (s *Ingestor) Ingest(ctx context.Context, paths []string) (*Retriever, Report, error) {
	report := Report{Documents: make([]DocumentReport, len(paths))}
	docs := make([]*loaded, len(paths))

	// Load and chunk
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, p := range paths {
		report.Documents[i].Path = p
		g.Go(func() error {
			doc, err := s.loader.Load(gctx, p)
			if err == nil {
				var chunks []domain.Chunk
				chunks, err = s.chunker.Chunk(doc)
				if err == nil && len(chunks) == 0 {
					err = errors.New("document has no text")
				}
				if err == nil {
					docs[i] = &loaded{doc: doc, chunks: chunks}
					report.Documents[i].Name = doc.Name
					return nil
				}
			}
			err = fmt.Errorf("load %s: %w", p, err)
			report.Documents[i].Err = err
			if s.cfg.FailFast {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}
	for _, d := range report.Documents {
		if d.Err != nil {
			s.drop(d.Path, d.Err)
		}
	}

	// Prepare embedder with corpus
	var corpus []string
	for _, d := range docs {
		if d == nil {
			continue
		}
		for _, ch := range d.chunks {
			corpus = append(corpus, ch.Text)
		}
	}
	if len(corpus) == 0 {
		return nil, report, ErrNoDocuments
	}
	if err := s.embedder.Prepare(corpus); err != nil {
		return nil, report, fmt.Errorf("prepare embedder: %w", err)
	}

	// Embed per document so one failure drops only that document
	vectors := make([][][]float64, len(docs))
	for i, d := range docs {
		if d == nil {
			continue
		}
		texts := make([]string, len(d.chunks))
		for j, ch := range d.chunks {
			texts[j] = ch.Text
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			err = fmt.Errorf("embed %s: %w", d.doc.Path, err)
			if s.cfg.FailFast || ctx.Err() != nil {
				return nil, report, err
			}
			report.Documents[i].Err = err
			s.drop(d.doc.Path, err)
			docs[i] = nil
			continue
		}
		vectors[i] = vecs
	}

	var (
		allChunks  []domain.Chunk
		allVectors [][]float64
		content    strings.Builder
	)
	for i, d := range docs {
		if d == nil {
			continue
		}
		allChunks = append(allChunks, d.chunks...)
		allVectors = append(allVectors, vectors[i]...)
		report.Documents[i].Chunks = len(d.chunks)
		content.WriteString("\n")
		content.WriteString(d.doc.Content)
	}
	if len(allChunks) == 0 {
		return nil, report, ErrNoDocuments
	}

	if err := s.store.Clear(ctx); err != nil {
		return nil, report, fmt.Errorf("clear store: %w", err)
	}
	if err := s.store.Init(ctx, s.embedder.Dimension()); err != nil {
		return nil, report, fmt.Errorf("init store: %w", err)
	}
	if err := s.store.Upsert(ctx, allChunks, allVectors); err != nil {
		return nil, report, fmt.Errorf("upsert: %w", err)
	}
	report.Chunks = len(allChunks)
	s.cfg.Metrics.AddIngestedChunks(len(allChunks))

	summary, err := s.summarizer.Summarize(content.String(), s.cfg.SummarySentences)
	if err != nil {
		return nil, report, fmt.Errorf("summarize: %w", err)
	}
	report.Summary = summary

	s.log.Info().
		Int("documents", len(paths)-len(report.Failed())).
		Int("dropped", len(report.Failed())).
		Int("chunks", report.Chunks).
		Str("embedder", s.embedder.Name()).
		Msg("index built")

	return &Retriever{
		embedder: s.embedder,
		store:    s.store,
		chunks:   allChunks,
		topK:     s.cfg.TopK,
		log:      s.cfg.Logger.With().Str("component", "retriever").Logger(),
		metrics:  s.cfg.Metrics,
	}, report, nil
}

func (s *Ingestor) drop(path string, err error) {
	s.cfg.Metrics.IncIngestFailures()
	s.log.Warn().Err(err).Str("path", path).Msg("document dropped")
}
