// Package main provides the entrypoint for the RideAlert daemon: the
// "approaching my stop" notifier core behind a local HTTP control surface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridealert/ridealert/internal/announce"
	"github.com/ridealert/ridealert/internal/api"
	"github.com/ridealert/ridealert/internal/api/middleware"
	"github.com/ridealert/ridealert/internal/database"
	"github.com/ridealert/ridealert/internal/destination"
	"github.com/ridealert/ridealert/internal/kvstore"
	"github.com/ridealert/ridealert/internal/location"
	"github.com/ridealert/ridealert/internal/notify"
	"github.com/ridealert/ridealert/internal/prefs"
	"github.com/ridealert/ridealert/internal/speech"
	"github.com/ridealert/ridealert/internal/telemetry"
	"github.com/ridealert/ridealert/internal/transit"
	"github.com/ridealert/ridealert/internal/transit/bis"
	"github.com/ridealert/ridealert/internal/waiting"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "ridealertd"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting RideAlert daemon")

	port := getEnv("APP_PORT", "8390")
	env := getEnv("APP_ENV", "development")
	city := getEnv("RIDEALERT_CITY", "ulsan")
	otlpEndpoint := getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Persistence: Postgres when configured, in-memory otherwise. Alerts and
	// preferences survive restarts only with a real store.
	var store kvstore.Store
	if os.Getenv("DB_HOST") != "" {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		store = kvstore.NewPostgres(pool)
		log.Info().
			Str("host", dbConfig.Host).
			Str("database", dbConfig.Database).
			Msg("database connected")
	} else {
		store = kvstore.NewMemory()
		log.Warn().Msg("DB_HOST not set, state will not survive restarts")
	}

	// Notification delivery: Pub/Sub push pipeline when configured, local
	// in-memory recorder otherwise.
	var notifier notify.Dispatcher
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		pubsubDispatcher, err := notify.NewPubSubDispatcher(ctx, notify.PubSubConfig{
			ProjectID: projectID,
			TopicName: getEnv("PUBSUB_TOPIC", "ridealert-notifications"),
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub dispatcher")
		}
		defer pubsubDispatcher.Close()
		notifier = pubsubDispatcher
		log.Info().Str("project", projectID).Msg("pubsub notification dispatcher initialized")
	} else {
		notifier = notify.NewMemory()
		log.Warn().Msg("PUBSUB_PROJECT_ID not set, notifications are recorded locally only")
	}

	// Upstream arrival-data gateway: token source + pacer + retrying client,
	// wrapped in the static-data cache.
	tokens := bis.NewTokenSource(bis.TokenSourceConfig{
		TokenURL:     getEnv("BIS_TOKEN_URL", bis.DefaultBaseURL+"/oauth/token"),
		ClientID:     os.Getenv("BIS_CLIENT_ID"),
		ClientSecret: os.Getenv("BIS_CLIENT_SECRET"),
		Logger:       log,
	})
	gateway := transit.NewService(transit.ServiceConfig{
		Gateway: bis.NewClient(bis.ClientConfig{
			BaseURL: os.Getenv("BIS_BASE_URL"),
			Tokens:  tokens,
			Logger:  log,
		}),
		Logger: log,
	})

	// Speech: the log engine speaks into the log; a platform engine attaches
	// here on device builds.
	engine := speech.NewLogEngine(log)
	gate := announce.NewGate(announce.GateConfig{
		Engine: engine,
		Logger: log,
	})

	tracker := location.NewTracker(location.TrackerConfig{Logger: log})

	preferences, err := prefs.NewService(ctx, prefs.ServiceConfig{
		Store:  store,
		Logger: log,
		// Preference changes feed straight into the gate's speech parameters.
		OnChange: func(p prefs.Preferences) {
			gate.SetUserParams(announce.UserParams{
				Rate:     p.SpeechRate,
				Volume:   p.SpeechVolume,
				Language: p.Language,
			})
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load preferences")
	}

	// OnChange only fires on mutation; apply the persisted parameters now.
	loaded := preferences.Get()
	gate.SetUserParams(announce.UserParams{
		Rate:     loaded.SpeechRate,
		Volume:   loaded.SpeechVolume,
		Language: loaded.Language,
	})

	audioEnabled := func() bool { return preferences.Get().AudioEnabled }

	monitor := destination.NewMonitor(destination.MonitorConfig{
		Gate:         gate,
		Notifier:     notifier,
		Tracker:      tracker,
		LeadStops:    func() int { return preferences.Get().LeadStops },
		AudioEnabled: audioEnabled,
		Logger:       log,
	})

	registry := waiting.NewRegistry(ctx, waiting.RegistryConfig{
		Gateway:      gateway,
		City:         city,
		Gate:         gate,
		Notifier:     notifier,
		Repo:         waiting.NewStoreRepository(store),
		AudioEnabled: audioEnabled,
		Logger:       log,
	})

	poller := destination.NewPoller(destination.PollerConfig{
		Monitor: monitor,
		Gateway: gateway,
		City:    city,
		Tracker: tracker,
		Logger:  log,
	})

	runCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	go registry.Run(runCtx)
	go poller.Run(runCtx)

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Registry:    registry,
		Monitor:     monitor,
		Preferences: preferences,
		Tracker:     tracker,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("city", city).
			Msg("control API listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	stopPolling()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
