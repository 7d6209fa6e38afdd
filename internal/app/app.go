package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/dotapulse/matches-service/external/liquipedia"
	"github.com/dotapulse/matches-service/external/twitch"
	"github.com/dotapulse/matches-service/internal/config"
	"github.com/dotapulse/matches-service/internal/infrastructure/repository/memory"
	"github.com/dotapulse/matches-service/internal/interfaces/httpapi"
	"github.com/dotapulse/matches-service/internal/platform/logging"
	"github.com/dotapulse/matches-service/internal/platform/resilience"
	"github.com/dotapulse/matches-service/internal/usecase"
)

// App owns the wired service graph and its background loops.
type App struct {
	cfg    config.Config
	logger *logging.Logger

	server    *http.Server
	refresh   *usecase.RefreshService
	reminders *usecase.ReminderService
}

// Options overrides default collaborators, mainly for tests and for
// deployments that deliver reminders somewhere real.
type Options struct {
	Parser       liquipedia.PageParser
	ReminderSink usecase.ReminderSink
}

func New(cfg config.Config, logger *logging.Logger, opts Options) (*App, error) {
	parser := opts.Parser
	if parser == nil {
		parser = liquipedia.NewWikiParser()
	}

	source, err := liquipedia.NewClient(liquipedia.ClientConfig{
		BaseURL:     cfg.LiquipediaBaseURL,
		AppName:     cfg.LiquipediaAppName,
		ParsePeriod: cfg.LiquipediaParsePeriod,
		RawPeriod:   cfg.LiquipediaRawPeriod,
		Parser:      parser,
		Logger:      logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.LiquipediaCircuitEnabled,
			FailureThreshold: cfg.LiquipediaCircuitFailureCount,
			OpenTimeout:      cfg.LiquipediaCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.LiquipediaCircuitHalfOpenMaxReq,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build liquipedia client: %w", err)
	}

	var provider usecase.StreamProvider = noopStreamProvider{}
	var thumbnails httpapi.ThumbnailFetcher
	if cfg.TwitchEnabled {
		thumbnails = newStreamThumbnails()
		provider = newTwitchStreamProvider(twitch.NewClient(twitch.ClientConfig{
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
			Timeout:      cfg.TwitchTimeout,
			Logger:       logger,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.TwitchCircuitEnabled,
				FailureThreshold: cfg.TwitchCircuitFailureCount,
				OpenTimeout:      cfg.TwitchCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.TwitchCircuitHalfOpenMaxReq,
			},
		}))
	}

	scorer := usecase.NewStreamScorer(usecase.StreamScorerConfig{
		PrimaryLanguage:   cfg.StreamPrimaryLanguage,
		SecondaryLanguage: cfg.StreamSecondaryLanguage,
	})
	matcher, err := usecase.NewStreamMatcher(provider, scorer, usecase.StreamMatcherConfig{
		GameID:          cfg.TwitchGameName,
		RefreshInterval: cfg.StreamRefreshInterval,
		MinScore:        cfg.StreamMinScore,
		MaxResults:      cfg.StreamMaxResults,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build stream matcher: %w", err)
	}

	refresh, err := usecase.NewRefreshService(source, matcher, usecase.NewReconciler(), usecase.RefreshConfig{
		Interval:         cfg.RefreshInterval,
		MaxMatches:       cfg.RefreshMaxMatch,
		StreamLeadWindow: cfg.StreamLeadWindow,
		MaxWorkers:       cfg.RefreshWorkers,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build refresh service: %w", err)
	}

	index := memory.NewSubscriptionIndex()
	subscriptions, err := usecase.NewSubscriptionService(index, refresh, logger)
	if err != nil {
		return nil, fmt.Errorf("build subscription service: %w", err)
	}

	var reminders *usecase.ReminderService
	if cfg.RemindersEnabled {
		sink := opts.ReminderSink
		if sink == nil {
			sink = loggingReminderSink{logger: logger}
		}
		reminders, err = usecase.NewReminderService(refresh, index, sink, usecase.ReminderConfig{
			CheckPeriod: cfg.ReminderCheckPeriod,
			Window:      cfg.ReminderWindow,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("build reminder service: %w", err)
		}
	}

	handler := httpapi.NewHandler(refresh, subscriptions, thumbnails, logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins)

	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		server:    server,
		refresh:   refresh,
		reminders: reminders,
	}, nil
}

// Run starts the background loops and serves HTTP until ctx is cancelled
// or the listener fails.
func (a *App) Run(ctx context.Context) error {
	a.refresh.Start()
	if a.reminders != nil {
		a.reminders.Start()
	}

	serveErr := make(chan error, 1)
	var wg conc.WaitGroup
	wg.Go(func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	a.shutdown()
	wg.Wait()

	return runErr
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http server shutdown", "error", err)
	}

	a.refresh.Stop()
	if a.reminders != nil {
		a.reminders.Stop()
	}
}
