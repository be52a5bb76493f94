// Package main is the entry point for the GrowLights server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/growmesh/growlights-go/internal/api"
	"github.com/growmesh/growlights-go/internal/config"
	"github.com/growmesh/growlights-go/internal/database"
	"github.com/growmesh/growlights-go/internal/database/models"
	"github.com/growmesh/growlights-go/internal/database/repositories"
	"github.com/growmesh/growlights-go/internal/services/capability"
	"github.com/growmesh/growlights-go/internal/services/controlloop"
	"github.com/growmesh/growlights-go/internal/services/decision"
	"github.com/growmesh/growlights-go/internal/services/dli"
	"github.com/growmesh/growlights-go/internal/services/estimator"
	"github.com/growmesh/growlights-go/internal/services/pubsub"
	"github.com/growmesh/growlights-go/internal/services/relay"
	"github.com/growmesh/growlights-go/internal/services/sensor"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	log.Printf("GrowLights server %s (built %s, commit %s)", Version, BuildTime, GitCommit)

	// Connect to database
	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	log.Println("Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migrations complete")

	// Repositories
	zoneRepo := repositories.NewZoneRepository(db)
	sensorRepo := repositories.NewSensorRepository(db)
	fixtureRepo := repositories.NewFixtureRepository(db)
	dliRepo := repositories.NewDLIRepository(db)
	overrideRepo := repositories.NewOverrideRepository(db)
	settingRepo := repositories.NewSettingRepository(db)

	// Core services
	bus := pubsub.New()
	tracker := dli.NewTracker(dli.SystemClock{}, &dliSink{repo: dliRepo}, cfg.DLIHistoryDays)
	analyzer := capability.NewAnalyzer()
	engine := decision.NewEngine(cfg.PowerBudgetWatts, cfg.RampDuration)

	// Sensor ingest: MQTT feeds a shared reading cache; without a broker
	// the loop falls back to simulated sensors.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cache *sensor.Cache
	var ingest *sensor.MQTTIngest
	if cfg.MQTTEnabled {
		cache = sensor.NewCache(3 * cfg.CycleInterval)
		ingest = sensor.NewMQTTIngest(sensor.MQTTIngestConfig{
			BrokerURL: cfg.MQTTBroker,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Topic:     cfg.MQTTTopic,
			QoS:       byte(cfg.MQTTQoS),
		}, cache)
		if err := ingest.Start(ctx); err != nil {
			log.Fatalf("Failed to start MQTT ingest: %v", err)
		}
	}

	adapterFactory := func(sc controlloop.SensorConfig) sensor.Adapter {
		if cache != nil {
			return sensor.NewCached(sc.ID, sc.X, sc.Y, cache)
		}
		return sensor.NewSimulated(sc.ID, sc.X, sc.Y, 2000, sc.Type)
	}

	// Relay control
	relays := relay.NewController(relay.NewLogActuator(), circuitMap(ctx, fixtureRepo))

	// Control loop
	provider := controlloop.NewDBProvider(cfg.GridRows, cfg.GridCols, zoneRepo, sensorRepo, fixtureRepo, overrideRepo, settingRepo)
	loop := controlloop.New(controlloop.Options{
		CycleInterval:     cfg.CycleInterval,
		SensorReadTimeout: cfg.SensorReadTimeout,
		EstimatorParams: estimator.Params{
			IDWExponent:   cfg.IDWExponent,
			MaxRange:      cfg.MaxSensorRange,
			NearestCap:    cfg.NearestSensorCap,
			DistanceFloor: cfg.DistanceFloor,
		},
	}, provider, adapterFactory, tracker, analyzer, engine, relays, bus)
	loop.Start(ctx)

	// HTTP API
	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin, "http://localhost:3000", "http://localhost:4000"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		Debug:            cfg.IsDevelopment(),
	})
	router.Use(corsMiddleware.Handler)

	apiServer := api.NewServer(loop, engine, tracker, dliRepo, overrideRepo, settingRepo, bus)
	apiServer.Routes(router)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on http://localhost:%s\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Cleanup services in reverse order
	loop.Stop()
	if ingest != nil {
		ingest.Stop()
	}
	if err := relays.AllOff(context.Background()); err != nil {
		log.Printf("Warning: failed to switch relays off: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// circuitMap builds the fixture-to-circuit wiring for the relay controller
// from the fixture configuration at startup.
func circuitMap(ctx context.Context, repo *repositories.FixtureRepository) map[string]string {
	fixtures, err := repo.FindAll(ctx, true)
	if err != nil {
		log.Printf("Warning: failed to load fixtures for relay wiring: %v", err)
		return nil
	}
	circuits := make(map[string]string, len(fixtures))
	for _, f := range fixtures {
		switch {
		case f.RelayCircuit != nil && *f.RelayCircuit != "":
			circuits[f.ID] = *f.RelayCircuit
		case f.RelayGroup != nil && *f.RelayGroup != "":
			circuits[f.ID] = *f.RelayGroup
		}
	}
	return circuits
}

// dliSink persists frozen day totals through the DLI repository.
type dliSink struct {
	repo *repositories.DLIRepository
}

func (s *dliSink) SaveDay(zoneKey, date string, total float64, samples int) error {
	return s.repo.SaveDay(context.Background(), &models.DLIDay{
		ZoneKey: zoneKey,
		Day:     date,
		DLI:     total,
		Samples: samples,
	})
}
