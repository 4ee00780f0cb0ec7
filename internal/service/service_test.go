package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipechat/internal/chunker"
	"recipechat/internal/domain"
	"recipechat/internal/loader"
	"recipechat/internal/summarizer"
	"recipechat/internal/vectorstore/memory"
)

// keywordEmbedder counts a fixed vocabulary so tests control similarity.
type keywordEmbedder struct {
	vocab  []string
	poison string
}

func (e *keywordEmbedder) Name() string { return "keyword" }
func (e *keywordEmbedder) Prepare([]string) error { return nil }
func (e *keywordEmbedder) Dimension() int { return len(e.vocab) }
func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if e.poison != "" && strings.Contains(text, e.poison) {
		return nil, errors.New("embedding endpoint rejected input")
	}
	words := strings.Fields(strings.ToLower(text))
	v := make([]float64, len(e.vocab))
	for i, term := range e.vocab {
		for _, w := range words {
			if w == term {
				v[i]++
			}
		}
	}
	return v, nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type countingLoader struct {
	domain.DocumentLoader
	calls atomic.Int32
}

func (l *countingLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	l.calls.Add(1)
	return l.DocumentLoader.Load(ctx, path)
}

const (
	docA = "dumpling fold the dumpling\n\ndumpling steam the dumpling\n\ndumpling dip the dumpling"
	docB = "tofu press the tofu\n\ntofu cube the tofu\n\ntofu fry the tofu\n\ntofu braise the tofu\n\ntofu serve the tofu"
)

func writeDocs(t *testing.T) (string, string) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte(docA), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(docB), 0o644))
	return a, b
}

func newIngestor(l domain.DocumentLoader, emb domain.Embedder, cfg IngestorConfig) *Ingestor {
	cfg.Logger = zerolog.Nop()
	return NewIngestor(l, chunker.NewCharacterChunker(30, 0, "\n\n"), emb, memory.NewStorage(), summarizer.NewFrequencySummarizer(), cfg)
}

func vocabEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocab: []string{"tofu", "dumpling", "noodle"}}
}

func TestContextComesFromNearestDocument(t *testing.T) {
	a, b := writeDocs(t)
	ing := newIngestor(loader.NewMultiLoader(), vocabEmbedder(), IngestorConfig{Concurrency: 2, TopK: 4})

	r, report, err := ing.Ingest(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 8, report.Chunks)
	assert.Empty(t, report.Failed())

	ctxText, err := r.Context(context.Background(), "how do I cook tofu")
	require.NoError(t, err)

	parts := strings.Split(ctxText, ContextSeparator)
	assert.Equal(t, []string{"tofu press the tofu", "tofu cube the tofu", "tofu fry the tofu"}, parts)
}

func TestQueryReturnsTopK(t *testing.T) {
	a, b := writeDocs(t)
	ing := newIngestor(loader.NewMultiLoader(), vocabEmbedder(), IngestorConfig{TopK: 4})
	r, _, err := ing.Ingest(context.Background(), []string{a, b})
	require.NoError(t, err)

	res, err := r.Query(context.Background(), "tofu", 0)
	require.NoError(t, err)
	require.Len(t, res, 4)
	for _, sr := range res {
		assert.Equal(t, "b.txt", sr.Chunk.Source)
	}
}

func TestContextNeverExceedsThreeChunks(t *testing.T) {
	a, b := writeDocs(t)
	ing := newIngestor(loader.NewMultiLoader(), vocabEmbedder(), IngestorConfig{TopK: 10})
	r, _, err := ing.Ingest(context.Background(), []string{a, b})
	require.NoError(t, err)

	for _, q := range []string{"tofu", "dumpling", "tofu dumpling", "press"} {
		ctxText, err := r.Context(context.Background(), q)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(strings.Split(ctxText, ContextSeparator)), MaxContextChunks, q)
	}
}

func TestLexicalFallbackOnZeroVector(t *testing.T) {
	a, b := writeDocs(t)
	ing := newIngestor(loader.NewMultiLoader(), vocabEmbedder(), IngestorConfig{TopK: 2})
	r, _, err := ing.Ingest(context.Background(), []string{a, b})
	require.NoError(t, err)

	res, err := r.Query(context.Background(), "braise", 2)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "tofu braise the tofu", res[0].Chunk.Text)
}

func TestIngestDropsUnreadableDocument(t *testing.T) {
	a, _ := writeDocs(t)
	missing := filepath.Join(t.TempDir(), "missing.txt")
	ing := newIngestor(loader.NewMultiLoader(), vocabEmbedder(), IngestorConfig{})

	r, report, err := ing.Ingest(context.Background(), []string{missing, a})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Chunks())

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, missing, failed[0].Path)
	assert.ErrorIs(t, failed[0].Err, os.ErrNotExist)
	assert.Equal(t, 3, report.Documents[1].Chunks)
}

func TestIngestFailFast(t *testing.T) {
	a, _ := writeDocs(t)
	missing := filepath.Join(t.TempDir(), "missing.txt")
	ing := newIngestor(loader.NewMultiLoader(), vocabEmbedder(), IngestorConfig{FailFast: true})

	_, _, err := ing.Ingest(context.Background(), []string{missing, a})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIngestDropsDocumentOnEmbeddingFailure(t *testing.T) {
	a, b := writeDocs(t)
	emb := vocabEmbedder()
	emb.poison = "braise"
	ing := newIngestor(loader.NewMultiLoader(), emb, IngestorConfig{})

	r, report, err := ing.Ingest(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Chunks())
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, b, report.Failed()[0].Path)
}

func TestIngestWithoutDocuments(t *testing.T) {
	ing := newIngestor(loader.NewMultiLoader(), vocabEmbedder(), IngestorConfig{})
	_, _, err := ing.Ingest(context.Background(), []string{filepath.Join(t.TempDir(), "nope.txt")})
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestIndexBuildsOnce(t *testing.T) {
	a, b := writeDocs(t)
	l := &countingLoader{DocumentLoader: loader.NewMultiLoader()}
	ix := NewIndex(newIngestor(l, vocabEmbedder(), IngestorConfig{}), []string{a, b}, zerolog.Nop())

	var wg sync.WaitGroup
	got := make([]*Retriever, 5)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := ix.Build(context.Background())
			assert.NoError(t, err)
			got[i] = r
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), l.calls.Load())
	for _, r := range got {
		assert.Same(t, got[0], r)
	}
	assert.True(t, ix.Ready())
}

func TestIndexRetriesAfterFailedBuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.txt")
	ix := NewIndex(newIngestor(loader.NewMultiLoader(), vocabEmbedder(), IngestorConfig{}), []string{path}, zerolog.Nop())

	_, err := ix.Build(context.Background())
	require.Error(t, err)
	assert.False(t, ix.Ready())
	rep, ok := ix.Report()
	require.True(t, ok)
	assert.Len(t, rep.Failed(), 1)

	require.NoError(t, os.WriteFile(path, []byte(docB), 0o644))
	r, err := ix.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, r.Chunks())
}

func TestIndexContextBeforeBuild(t *testing.T) {
	ix := NewIndex(newIngestor(loader.NewMultiLoader(), vocabEmbedder(), IngestorConfig{}), nil, zerolog.Nop())
	_, err := ix.Context(context.Background(), "tofu")
	assert.ErrorIs(t, err, ErrIndexNotReady)
}
