package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrIndexNotReady is returned by Index.Context before a successful build.
var ErrIndexNotReady = errors.New("document index is not ready")

// Index is the process-wide handle to the document index. The index is built
// lazily on the first Build call and reused afterwards; concurrent callers
// wait for the one build in flight. A failed build leaves the handle empty so
// a later Build can try again.
type Index struct {
	ingestor *Ingestor
	paths    []string
	log      zerolog.Logger

	mu        sync.Mutex // serializes builds
	retriever atomic.Pointer[Retriever]
	report    atomic.Pointer[Report]
}

func NewIndex(ingestor *Ingestor, paths []string, log zerolog.Logger) *Index {
	return &Index{ingestor: ingestor, paths: paths, log: log}
}

// Build returns the retriever, building the index if it does not exist yet.
func (ix *Index) Build(ctx context.Context) (*Retriever, error) {
	if r := ix.retriever.Load(); r != nil {
		return r, nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if r := ix.retriever.Load(); r != nil {
		return r, nil
	}
	r, report, err := ix.ingestor.Ingest(ctx, ix.paths)
	ix.report.Store(&report)
	if err != nil {
		ix.log.Error().Err(err).Msg("index build failed")
		return nil, err
	}
	ix.retriever.Store(r)
	return r, nil
}

// Ready reports whether a build has succeeded.
func (ix *Index) Ready() bool { return ix.retriever.Load() != nil }

// Report returns the outcome of the last build attempt.
func (ix *Index) Report() (Report, bool) {
	rep := ix.report.Load()
	if rep == nil {
		return Report{}, false
	}
	return *rep, true
}

// Context retrieves prompt context for query. It never triggers a build.
func (ix *Index) Context(ctx context.Context, query string) (string, error) {
	r := ix.retriever.Load()
	if r == nil {
		return "", ErrIndexNotReady
	}
	return r.Context(ctx, query)
}
