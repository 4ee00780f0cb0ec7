package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"recipechat/internal/app"
	"recipechat/internal/config"
	"recipechat/internal/domain"
	"recipechat/internal/httpapi"
	"recipechat/internal/logging"
	"recipechat/internal/metrics"
	"recipechat/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath string
		serve   bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/recipechat/config.yaml if not provided)")
	flag.BoolVar(&serve, "serve", false, "Serve the HTTP API instead of the terminal UI")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: recipechat [--config=config.yaml] [--serve] [document.pdf ...]")
		flag.PrintDefaults()
	}
	flag.Parse()
	documents := flag.Args()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if serve {
		cfg.Logging.File = ""
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to open log: %v", err)
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	build := func(apiKey string) (*app.App, error) {
		return app.New(cfg, apiKey, documents, logger, m)
	}

	if serve {
		err = runServer(ctx, cfg, build, reg, logger)
	} else {
		err = runTUI(ctx, cfg, build, reg, logger)
	}
	if err != nil {
		logger.Error().Err(err).Msg("exiting")
		closer.Close()
		log.Fatal(err)
	}
}

func runServer(ctx context.Context, cfg *config.AppConfig, build tui.Builder, reg *prometheus.Registry, logger zerolog.Logger) error {
	a, err := build(cfg.APIKey())
	if errors.Is(err, domain.ErrMissingCredential) {
		return fmt.Errorf("set %s: %w", cfg.OpenAI.APIKeyEnv, err)
	}
	if err != nil {
		return err
	}

	go func() {
		if _, err := a.Index.Build(ctx); err != nil {
			logger.Warn().Err(err).Msg("serving without document search")
		}
	}()
	go a.Sessions.Run(ctx, time.Minute)

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpapi.NewRouter(httpapi.RouterDependencies{
			Chat:        a.Chat,
			Images:      a.Images,
			Sessions:    a.Sessions,
			Index:       a.Index,
			Gatherer:    reg,
			Logger:      logger,
			CORSOrigins: cfg.Server.CORSOrigins,
			DefaultRAG:  cfg.Retrieval.Enabled,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func runTUI(ctx context.Context, cfg *config.AppConfig, build tui.Builder, reg *prometheus.Registry, logger zerolog.Logger) error {
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		go func() {
			err := http.ListenAndServe(cfg.Metrics.Addr, mux)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	model := tui.New(ctx, build, cfg.APIKey(), cfg.Retrieval.Enabled)
	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
