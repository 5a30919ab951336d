package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/babel/internal/adapters/http"
	"github.com/dkeye/babel/internal/app"
	"github.com/dkeye/babel/internal/app/orch"
	"github.com/dkeye/babel/internal/app/pipeline"
	"github.com/dkeye/babel/internal/app/sfu"
	"github.com/dkeye/babel/internal/config"
	"github.com/dkeye/babel/internal/domain"
	"github.com/dkeye/babel/internal/gateway"
	"github.com/dkeye/babel/internal/journal"
	"github.com/dkeye/babel/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	catalog, err := domain.NewCatalog(cfg.Languages)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid language list")
	}
	defaultLang, err := catalog.Parse(cfg.DefaultLanguage)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid default language")
	}

	m := metrics.New()

	gw, err := newGateway(cfg, catalog, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure gateway")
	}

	j, err := newJournal(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open journal")
	}

	var relays *sfu.RelayManager
	if cfg.RTC.Enabled {
		relays = sfu.NewRelayManager()
	}

	msgRouter := app.NewRouter(app.PolicyByName(cfg.SlowReader), m)
	o := &orch.Orchestrator{
		Registry:        app.NewRegistry(),
		Rooms:           app.NewRoomManager(),
		Router:          msgRouter,
		Pipeline:        pipeline.New(gw, msgRouter, j, m, cfg.Pipeline.Workers),
		Gateway:         gw,
		Catalog:         catalog,
		Journal:         j,
		Metrics:         m,
		Relays:          relays,
		DefaultLanguage: defaultLang,
		Context:         ctx,
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Babel server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	o.Wait()
	if err := j.Close(); err != nil {
		log.Error().Err(err).Msg("journal close")
	}
	log.Info().Msg("Server exited gracefully")
}

func newGateway(cfg *config.Config, catalog *domain.Catalog, m *metrics.Metrics) (*gateway.Gateway, error) {
	if cfg.Gateway.APIKey == "" {
		log.Warn().Str("module", "main").Msg("no gateway api key, using offline echo collaborator")
		echo := gateway.Echo{Language: cfg.DefaultLanguage}
		return gateway.New(echo, echo, catalog, cfg.Gateway.Timeout, m), nil
	}
	groq, err := gateway.NewGroqClient(gateway.GroqConfig{
		BaseURL:            cfg.Gateway.BaseURL,
		APIKey:             cfg.Gateway.APIKey,
		TranscriptionModel: cfg.Gateway.TranscriptionModel,
		TranslationModel:   cfg.Gateway.TranslationModel,
	})
	if err != nil {
		return nil, err
	}
	return gateway.New(groq, groq, catalog, cfg.Gateway.Timeout, m), nil
}

func newJournal(cfg *config.Config) (journal.Journal, error) {
	if cfg.Journal.Path == "" {
		return journal.NewMemory(cfg.Journal.MaxPerRoom), nil
	}
	return journal.OpenPebble(cfg.Journal.Path)
}
