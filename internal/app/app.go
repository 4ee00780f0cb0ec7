// Package app assembles the application's components from configuration.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"recipechat/internal/chat"
	"recipechat/internal/chunker"
	"recipechat/internal/completion"
	"recipechat/internal/config"
	"recipechat/internal/domain"
	"recipechat/internal/embedding/openai"
	"recipechat/internal/embedding/tfidf"
	"recipechat/internal/imagegen"
	"recipechat/internal/loader"
	"recipechat/internal/metrics"
	"recipechat/internal/prompt"
	"recipechat/internal/service"
	"recipechat/internal/session"
	"recipechat/internal/summarizer"
	"recipechat/internal/vectorstore"
)

// App holds the wired components shared by the terminal UI and the HTTP API.
type App struct {
	Config   *config.AppConfig
	Chat     *chat.Service
	Images   domain.ImageGenerator
	Index    *service.Index
	Sessions *session.Registry

	sessionCfg session.Config
}

// New builds every component. documents overrides the configured document
// list when non-empty. m may be nil.
func New(cfg *config.AppConfig, apiKey string, documents []string, log zerolog.Logger, m *metrics.Metrics) (*App, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, domain.ErrMissingCredential
	}
	if len(documents) == 0 {
		documents = cfg.Ingest.Documents
	}

	apiCfg := goopenai.DefaultConfig(apiKey)
	apiCfg.BaseURL = strings.TrimRight(cfg.OpenAI.BaseURL, "/")
	api := goopenai.NewClientWithConfig(apiCfg)

	emb, err := newEmbedder(cfg.Embedder, api, log)
	if err != nil {
		return nil, err
	}
	ch, err := newChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	st, err := vectorstore.New(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	sum, err := newSummarizer(cfg.Summarizer)
	if err != nil {
		return nil, err
	}

	ingestor := service.NewIngestor(loader.NewMultiLoader(), ch, emb, st, sum, service.IngestorConfig{
		FailFast:         cfg.Ingest.FailFast,
		Concurrency:      cfg.Ingest.Concurrency,
		TopK:             cfg.Retrieval.TopK,
		SummarySentences: cfg.Summarizer.MaxSentences,
		Logger:           log,
		Metrics:          m,
	})
	index := service.NewIndex(ingestor, documents, log)

	completer := completion.NewClient(api, completion.Config{
		Model:   cfg.Completion.Model,
		Timeout: seconds(cfg.Completion.TimeoutSecs),
		Logger:  log,
	})
	// retrieval.enabled only sets the default toggle; the index serves every
	// turn that asks for it.
	chatSvc := chat.NewService(completer, index, chat.Config{
		Model:            cfg.Completion.Model,
		Temperature:      cfg.Completion.Temperature,
		RetrievalTimeout: seconds(cfg.Retrieval.TimeoutSecs),
		Logger:           log,
		Metrics:          m,
	})

	images := imagegen.NewClient(api, imagegen.Config{
		Model:   cfg.Image.Model,
		Size:    cfg.Image.Size,
		Timeout: seconds(cfg.Image.TimeoutSecs),
		Logger:  log,
		Metrics: m,
	})

	sessionCfg := session.Config{
		MaxMessages:      cfg.Session.MaxMessages,
		SummarizeEvicted: cfg.Session.SummarizeEvicted,
		SummarySentences: cfg.Session.SummarySentences,
		Summarizer:       sum,
	}

	sessions := session.NewRegistry(prompt.SystemPrompt, sessionCfg, session.Limits{
		MaxSessions: cfg.Session.MaxSessions,
		IdleTTL:     time.Duration(cfg.Session.IdleTTLMins) * time.Minute,
	}, m)

	return &App{
		Config:     cfg,
		Chat:       chatSvc,
		Images:     images,
		Index:      index,
		Sessions:   sessions,
		sessionCfg: sessionCfg,
	}, nil
}

// NewSession returns a standalone session outside the registry.
func (a *App) NewSession() *session.Session {
	return session.New(prompt.SystemPrompt, a.sessionCfg)
}

func newEmbedder(cfg config.EmbedderConfig, api *goopenai.Client, log zerolog.Logger) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai", "":
		oc := cfg.OpenAI
		if oc == nil {
			oc = &config.OpenAIEmbedderConfig{}
		}
		return openai.NewClient(api, openai.Config{
			Model:             oc.Model,
			Timeout:           seconds(oc.TimeoutSecs),
			BatchSize:         oc.BatchSize,
			MaxRetries:        oc.MaxRetries,
			RequestsPerSecond: oc.RequestsPerSecond,
			Logger:            log.With().Str("component", "embedder").Logger(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "character", "":
		return chunker.NewCharacterChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separator), nil
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Type)
	}
}

func newSummarizer(cfg config.SummarizerConfig) (domain.Summarizer, error) {
	switch cfg.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Type)
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
