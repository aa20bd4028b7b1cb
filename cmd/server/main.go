package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/promptparty/server-go/internal/config"
	"github.com/promptparty/server-go/internal/game"
	"github.com/promptparty/server-go/internal/handler"
	"github.com/promptparty/server-go/internal/jobs"
	"github.com/promptparty/server-go/internal/middleware"
	"github.com/promptparty/server-go/internal/notify"
	"github.com/promptparty/server-go/internal/scheduler"
	"github.com/promptparty/server-go/internal/sse"
	"github.com/promptparty/server-go/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	snapshotter, cleanupSnapshotter, err := newSnapshotter(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session storage")
	}
	defer cleanupSnapshotter()

	sessionStore := store.New(snapshotter, cfg.FlushInterval())
	sessionStore.Load(context.Background())
	sessionStore.StartFlusher()
	defer sessionStore.Stop()

	broker := sse.NewBroker()
	defer broker.Close()

	notifier := notify.NewFanout(
		notify.NewLogNotifier(),
		notify.NewBrokerNotifier(broker),
	)

	var lifecycle *game.Lifecycle
	sched := scheduler.New(cfg.SweepInterval(), func(r scheduler.Reminder) {
		lifecycle.HandleReminder(r)
	})
	lifecycle = game.NewLifecycle(sessionStore, notifier, sched, game.Defaults{
		MaxParticipants:        cfg.MaxParticipants,
		MinAnswersToVote:       cfg.MinAnswersToVote,
		MinParticipantsToStart: cfg.MinParticipantsToStart,
		ResultsCloseAfter:      cfg.ResultsCloseAfter(),
	})
	lifecycle.RestoreTimers()
	sched.Start()
	defer sched.Stop()

	cleanupJob := jobs.NewCleanupJob(sessionStore, lifecycle, cfg.SessionTTL(), cfg.CleanupInterval())
	cleanupJob.Start()
	defer cleanupJob.Stop()

	sessionHandler := handler.NewSessionHandler(lifecycle)
	eventsHandler := handler.NewEventsHandler(broker, lifecycle)
	botHandler := handler.NewBotHandler(lifecycle)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(cfg.MaxBodyBytes)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"sessions":  sessionStore.Count(),
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		// The SSE stream sits outside the request timeout.
		r.Get("/{sessionId}/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Mount("/", sessionHandler.Routes())
		})
	})

	r.Route("/bot", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Post("/webhook", botHandler.Webhook)
	})

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Teardown flush so the debounce window doesn't eat the last writes.
	if err := sessionStore.Flush(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final flush failed")
	}

	log.Info().Msg("server stopped")
}

func newSnapshotter(cfg *config.Config) (store.Snapshotter, func(), error) {
	switch cfg.StoreBackend {
	case "sqlite":
		snap, err := store.NewSQLiteSnapshotter(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite snapshot backend")
		return snap, func() { snap.Close() }, nil
	default:
		log.Info().Str("path", cfg.DataPath).Msg("using file snapshot backend")
		return store.NewFileSnapshotter(cfg.DataPath), func() {}, nil
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
