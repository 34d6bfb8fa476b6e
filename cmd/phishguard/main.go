package main

import (
	"log/slog"
	"os"

	"github.com/phishguard/risk-engine/internal/adapters/feeds"
	"github.com/phishguard/risk-engine/internal/adapters/httpapi"
	"github.com/phishguard/risk-engine/internal/adapters/storage"
	"github.com/phishguard/risk-engine/internal/application"
	"github.com/phishguard/risk-engine/internal/config"
	"github.com/phishguard/risk-engine/internal/domain/breach"
	"github.com/phishguard/risk-engine/internal/domain/redirect"
	"github.com/phishguard/risk-engine/internal/domain/tlscheck"
	"github.com/phishguard/risk-engine/internal/domain/urlcheck"
	"github.com/phishguard/risk-engine/internal/ml"
	"github.com/phishguard/risk-engine/internal/ports"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// A missing corpus file degrades to an empty corpus; the service
	// still serves every other signal.
	corpus, err := breach.Load(cfg.BreachDataFile)
	if err != nil {
		slog.Warn("breach corpus unavailable, starting empty",
			"file", cfg.BreachDataFile, "error", err)
	} else {
		passwords, emails := corpus.Size()
		slog.Info("breach corpus loaded", "passwords", passwords, "emails", emails)
	}

	urlModel := ml.NewURLClassifier(cfg.ModelsDir)
	emailModel := ml.NewEmailClassifier(cfg.ModelsDir)

	// Persistence is optional: without DATABASE_URL assessments are
	// served but not recorded.
	var store ports.AssessmentStore
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.InitSchema(); err != nil {
			slog.Error("failed to initialize schema", "error", err)
			os.Exit(1)
		}
		store = pg
		slog.Info("assessment history enabled")
	}

	svc := application.NewAssessmentService(application.Deps{
		URLAnalyzer: urlcheck.NewAnalyzer(
			urlcheck.WithShortenerOverrides(cfg.ShortenerOverrides),
		),
		TLS:        tlscheck.NewAnalyzer(cfg.RequestTimeout),
		Expander:   redirect.NewExpander(cfg.MaxRedirects, cfg.RequestTimeout),
		Corpus:     corpus,
		URLModel:   urlModel,
		EmailModel: emailModel,
		Feeds: []ports.ThreatFeed{
			feeds.NewSafeBrowsingFeed(cfg.SafeBrowsingAPIKey, cfg.RequestTimeout),
			feeds.NewScanAggregatorFeed(cfg.ScanAggregatorAPIKey, cfg.RequestTimeout),
		},
		Store:   store,
		Timeout: cfg.RequestTimeout,
	})

	handler := httpapi.NewHandler(svc, urlModel, emailModel)
	router := httpapi.NewRouter(handler, cfg.RateLimitRPM)

	slog.Info("listening", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
