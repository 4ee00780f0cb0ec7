package service

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"recipechat/internal/domain"
	"recipechat/internal/metrics"
)

// MaxContextChunks caps how many retrieved chunks go into one prompt.
const MaxContextChunks = 3

// ContextSeparator joins chunk texts in the prompt context.
const ContextSeparator = "\n\n"

// Retriever answers similarity queries over a built index. It is read-only.
type Retriever struct {
	embedder domain.Embedder
	store    domain.VectorStore
	chunks   []domain.Chunk
	topK     int
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// Query returns up to topK chunks ranked by score. When the embedding carries
// no signal it falls back to lexical token overlap.
func (r *Retriever) Query(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = r.topK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if isZero(vec) {
		return r.lexicalSearch(query, topK), nil
	}
	res, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	allZero := true
	for _, sr := range res {
		if sr.Score > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		return r.lexicalSearch(query, topK), nil
	}
	return res, nil
}

// Context retrieves the configured number of chunks for query, keeps the
// first MaxContextChunks and joins their texts with blank lines.
func (r *Retriever) Context(ctx context.Context, query string) (string, error) {
	start := time.Now()
	res, err := r.Query(ctx, query, r.topK)
	if err != nil {
		r.metrics.ObserveRetrieval(metrics.OutcomeError, time.Since(start))
		return "", err
	}
	if len(res) > MaxContextChunks {
		res = res[:MaxContextChunks]
	}
	texts := make([]string, 0, len(res))
	for _, sr := range res {
		texts = append(texts, sr.Chunk.Text)
		r.log.Debug().Str("source", sr.Chunk.Source).Int("page", sr.Chunk.Page).Float64("score", sr.Score).Msg("context chunk")
	}
	r.metrics.ObserveRetrieval(metrics.OutcomeOK, time.Since(start))
	return strings.Join(texts, ContextSeparator), nil
}

// Chunks returns the number of indexed chunks.
func (r *Retriever) Chunks() int { return len(r.chunks) }

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

func (r *Retriever) lexicalSearch(query string, topK int) []domain.SearchResult {
	qset := toTokenSet(query)
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(r.chunks))
	for i, ch := range r.chunks {
		scores[i] = pair{i, overlapOchiai(qset, ch.Text)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	topK = min(topK, len(scores))
	out := make([]domain.SearchResult, 0, topK)
	for _, p := range scores[:topK] {
		out = append(out, domain.SearchResult{Chunk: r.chunks[p.idx], Score: p.score})
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai scores |A∩B| / sqrt(|A||B|) over distinct tokens.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	stoks := unicodeWordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
