// Package httpapi exposes chat sessions and image generation over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"recipechat/internal/chat"
	"recipechat/internal/domain"
	"recipechat/internal/metrics"
	"recipechat/internal/session"
)

// IndexStatus reports whether document search is available.
type IndexStatus interface {
	Ready() bool
}

// RouterDependencies holds everything the router needs.
type RouterDependencies struct {
	Chat        *chat.Service
	Images      domain.ImageGenerator
	Sessions    *session.Registry
	Index       IndexStatus
	Gatherer    prometheus.Gatherer
	Logger      zerolog.Logger
	CORSOrigins []string
	// DefaultRAG applies when a message request does not set use_rag.
	DefaultRAG bool
}

// NewRouter creates the chi router for the API.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ready := deps.Index != nil && deps.Index.Ready()
		RespondWithJSON(w, http.StatusOK, map[string]any{"status": "ok", "index_ready": ready})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	h := &handlers{deps: deps}
	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.HandleCreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Delete("/", h.HandleDeleteSession)
				r.Get("/messages", h.HandleListMessages)
				r.Post("/messages", h.HandleSendMessage)
				r.Delete("/messages", h.HandleResetSession)
			})
		})
		r.With(middleware.Timeout(3*time.Minute)).Post("/images", h.HandleGenerateImage)
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("http request")
		})
	}
}
