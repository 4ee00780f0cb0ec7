// Package chat runs one conversation turn: record the user message, add
// retrieved context when asked, stream the reply and commit it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"recipechat/internal/domain"
	"recipechat/internal/metrics"
	"recipechat/internal/prompt"
	"recipechat/internal/session"
)

// ErrAborted is recorded on a turn closed before its stream finished.
var ErrAborted = errors.New("reply aborted")

// ContextSource supplies retrieved document context for a question.
type ContextSource interface {
	Context(ctx context.Context, query string) (string, error)
}

type Config struct {
	Model            string
	Temperature      float32
	RetrievalTimeout time.Duration
	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
}

// Service orchestrates chat turns. It holds no per-session state.
type Service struct {
	completer domain.Completer
	retriever ContextSource
	cfg       Config
	log       zerolog.Logger
}

// NewService creates a chat service. retriever may be nil, in which case
// RAG turns fall back to the plain question.
func NewService(completer domain.Completer, retriever ContextSource, cfg Config) *Service {
	if cfg.RetrievalTimeout == 0 {
		cfg.RetrievalTimeout = 30 * time.Second
	}
	return &Service{
		completer: completer,
		retriever: retriever,
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "chat").Logger(),
	}
}

// Submit starts a turn for text on sess. The user's text is stored verbatim;
// with useRAG the copy sent to the endpoint is wrapped with retrieved context.
// The caller must drain or Close the returned turn.
func (s *Service) Submit(ctx context.Context, sess *session.Session, text string, useRAG bool) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyMessage
	}
	msgs, err := sess.BeginReply(text)
	if err != nil {
		return nil, err
	}

	t := &Turn{sess: sess, metrics: s.cfg.Metrics, log: s.log.With().Str("session", sess.ID()).Logger()}
	if useRAG {
		if rctx, notice := s.retrieve(ctx, text); rctx != "" {
			msgs[len(msgs)-1].Content = prompt.Compose(text, rctx)
			t.augmented = true
		} else {
			t.notice = notice
		}
	}

	t.start = time.Now()
	stream, err := s.completer.Stream(ctx, domain.CompletionRequest{
		Model:       s.cfg.Model,
		Messages:    msgs,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		sess.EndReply("", false)
		s.cfg.Metrics.ObserveCompletion(metrics.OutcomeError, time.Since(t.start))
		t.log.Error().Err(err).Msg("completion failed")
		return nil, err
	}
	t.stream = stream
	return t, nil
}

// retrieve returns context for text, or an empty string and a notice for
// the user when retrieval is unavailable.
func (s *Service) retrieve(ctx context.Context, text string) (string, string) {
	if s.retriever == nil {
		return "", "Document search is not configured; answering without it."
	}
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RetrievalTimeout)
	defer cancel()
	out, err := s.retriever.Context(rctx, text)
	if err != nil {
		s.cfg.Metrics.ObserveRetrieval(metrics.OutcomeFallback, 0)
		s.log.Warn().Err(err).Msg("retrieval failed, sending question without context")
		return "", fmt.Sprintf("Document search unavailable (%v); answering without it.", err)
	}
	if out == "" {
		return "", "No matching passages found in the recipe books."
	}
	return out, ""
}

// Turn is one streamed reply. Methods are safe to call from one goroutine
// pulling fragments while another calls Close.
type Turn struct {
	sess    *session.Session
	stream  domain.CompletionStream
	metrics *metrics.Metrics
	log     zerolog.Logger
	start   time.Time

	augmented bool
	notice    string

	mu         sync.Mutex
	reply      strings.Builder
	done       bool
	incomplete bool
	err        error
}

// Next returns the next fragment. At the end of the reply it returns io.EOF
// and the reply is committed to the session. Any other error aborts the turn,
// committing partial text as an incomplete message.
func (t *Turn) Next() (domain.Completion, error) {
	f, err := t.stream.Recv()
	if errors.Is(err, io.EOF) {
		t.finish(nil)
		return domain.Completion{}, io.EOF
	}
	if err != nil {
		t.finish(err)
		return domain.Completion{}, err
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return domain.Completion{}, t.Err()
	}
	t.reply.WriteString(f.Text)
	t.mu.Unlock()
	t.metrics.IncFragments()
	return f, nil
}

// Wait drains the turn and returns the reply text.
func (t *Turn) Wait() (string, error) {
	for {
		if _, err := t.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return t.Text(), nil
			}
			return t.Text(), err
		}
	}
}

// Close ends the turn. Closing before the stream finished aborts it.
func (t *Turn) Close() { t.finish(ErrAborted) }

func (t *Turn) finish(err error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	reply := t.reply.String()
	t.err = err
	t.incomplete = err != nil && reply != ""
	t.mu.Unlock()

	t.stream.Close()
	t.sess.EndReply(reply, t.incomplete)

	took := time.Since(t.start)
	switch {
	case err == nil:
		t.metrics.ObserveCompletion(metrics.OutcomeOK, took)
		t.log.Info().Int("chars", len(reply)).Dur("took", took).Bool("rag", t.augmented).Msg("reply committed")
	case t.incomplete:
		t.metrics.ObserveCompletion(metrics.OutcomePartial, took)
		t.log.Warn().Err(err).Int("chars", len(reply)).Msg("reply cut short, kept as incomplete")
	default:
		t.metrics.ObserveCompletion(metrics.OutcomeError, took)
		t.log.Error().Err(err).Msg("reply failed")
	}
}

// Text returns the reply received so far.
func (t *Turn) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reply.String()
}

// Err returns the error that ended the turn, if any.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Incomplete reports whether partial text was committed.
func (t *Turn) Incomplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.incomplete
}

// Augmented reports whether retrieved context was added to the question.
func (t *Turn) Augmented() bool { return t.augmented }

// Notice is a user-facing note about retrieval, empty when there is none.
func (t *Turn) Notice() string { return t.notice }
