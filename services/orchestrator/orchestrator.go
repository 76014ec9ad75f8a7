// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator assembles the Pixel-Groove server: storage, the
// generation backend, the execution engine, the experiment layer, and the
// HTTP surface.
//
// Construction is one-way: New wires everything from a config.Config and
// hands back a Service whose Run blocks on the HTTP listener. Router()
// exposes the gin engine so integration tests can drive the full stack
// with httptest instead of a real port.
//
//	cfg := config.FromEnv()
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/themariolinml/Pixel-Groove/services/engine/backend"
	"github.com/themariolinml/Pixel-Groove/services/engine/enrich"
	"github.com/themariolinml/Pixel-Groove/services/engine/executor"
	"github.com/themariolinml/Pixel-Groove/services/engine/nodeexec"
	"github.com/themariolinml/Pixel-Groove/services/engine/resolve"
	"github.com/themariolinml/Pixel-Groove/services/engine/runs"
	"github.com/themariolinml/Pixel-Groove/services/engine/schedule"
	"github.com/themariolinml/Pixel-Groove/services/engine/telemetry"
	"github.com/themariolinml/Pixel-Groove/services/experiments"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/config"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/middleware"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/observability"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/routes"
	"github.com/themariolinml/Pixel-Groove/services/storage/badgerstore"
	"github.com/themariolinml/Pixel-Groove/services/storage/cache"
	"github.com/themariolinml/Pixel-Groove/services/storage/media"
)

// Service is the orchestrator lifecycle. Run blocks until the server
// stops; Router exposes the gin engine for tests.
type Service interface {
	Run() error
	Router() *gin.Engine
}

type service struct {
	config config.Config
	router *gin.Engine

	db          *badgerstore.DB
	executions  *runs.Executions
	batches     *runs.Batches
	experiments *experiments.Operations

	tracerCleanup func(context.Context)
	stopWatcher   func()
	influx        *telemetry.InfluxRecorder
}

var _ Service = (*service)(nil)

// New wires the full service from cfg:
//
//  1. OTel tracing when an OTLP endpoint is configured
//  2. Prometheus metrics unless disabled
//  3. Badger storage, the graph cache, and the blob store (plus the GCS
//     mirror when a bucket is configured)
//  4. The generation backend per MODEL_BACKEND_TYPE
//  5. The engine: enricher, node executor, input resolver, graph runner,
//     scheduler with its concurrency table (hot-reloaded from YAML when
//     a path is configured)
//  6. The run registries, the experiment layer, and the HTTP router
//
// Fails fast on anything that would leave the server half-usable: an
// unopenable database, a bad scheduler config file, an unknown backend.
func New(cfg config.Config) (Service, error) {
	cfg = cfg.WithDefaults()
	s := &service{config: cfg}
	logger := slog.Default()

	if cfg.OTelEndpoint != "" {
		cleanup, err := initTracer(cfg.OTelEndpoint)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	var metrics *observability.ExecutionMetrics
	if !cfg.DisableMetrics {
		metrics = observability.InitMetrics()
	}

	db, err := badgerstore.OpenDB(badgerstore.DefaultConfig(cfg.DataDir))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.db = db

	graphs := cache.NewGraphCache(badgerstore.NewGraphRepo(db, logger))
	expRepo := badgerstore.NewExperimentRepo(db, logger)

	local, err := media.NewLocal(cfg.MediaDir, cfg.PublicBaseURL)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("init media store: %w", err)
	}
	var store media.Store = local
	if cfg.GCSBucket != "" {
		mirror, err := media.NewMirror(context.Background(), local, cfg.GCSBucket, cfg.GCSCredentialsFile, logger)
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("init media mirror: %w", err)
		}
		store = mirror
	}

	be, err := buildBackend(cfg)
	if err != nil {
		s.cleanup()
		return nil, err
	}

	recorder, influx := buildRecorder(cfg, metrics, logger)
	s.influx = influx

	enricher := enrich.New(be, logger)
	exec := nodeexec.New(be, store, enricher)
	resolver := resolve.New(store, logger)
	runner := executor.New(exec, resolver, recorder, logger)

	table, stopWatcher, err := buildScheduleTable(cfg, logger)
	if err != nil {
		s.cleanup()
		return nil, err
	}
	s.stopWatcher = stopWatcher
	scheduler := schedule.New(exec, resolver, table, recorder, logger)

	s.executions = runs.NewExecutions(runner, graphs, nil, logger)
	s.batches = runs.NewBatches(scheduler, graphs, nil, logger)

	s.experiments = experiments.NewOperations(
		expRepo, graphs, store, experiments.NewService(be, logger), logger)

	// Completed batch graphs flip their hooks to executed.
	ops := s.experiments
	s.batches.OnSettled(func(ctx context.Context, experimentID string, outcomes map[string]schedule.GraphOutcome) {
		var completed []string
		for gid, outcome := range outcomes {
			if outcome == schedule.OutcomeCompleted {
				completed = append(completed, gid)
			}
		}
		if err := ops.MarkHooksExecuted(ctx, experimentID, completed); err != nil {
			logger.Warn("marking hooks executed failed",
				"experiment_id", experimentID, "error", err)
		}
	})

	if metrics != nil {
		observability.ObserveActiveRuns(observability.RunKindExecution, func() float64 {
			return float64(s.executions.ActiveCount())
		})
		observability.ObserveActiveRuns(observability.RunKindBatch, func() float64 {
			return float64(s.batches.ActiveCount())
		})
	}

	s.initRouter(metrics, graphs, store)
	return s, nil
}

// Run starts the HTTP server and blocks until it stops. Resources are
// released on return.
func (s *service) Run() error {
	defer s.cleanup()

	slog.Info("starting pixelgroove server", "port", s.config.Port)
	return s.router.Run(fmt.Sprintf(":%d", s.config.Port))
}

// Router returns the configured gin engine for integration tests.
func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) initRouter(metrics *observability.ExecutionMetrics, graphs *cache.GraphCache, store media.Store) {
	s.router = gin.Default()
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.CORS(s.config.CORSOrigins))
	s.router.Use(otelgin.Middleware("pixelgroove-orchestrator"))

	routes.SetupRoutes(s.router, routes.Deps{
		Graphs:      graphs,
		Media:       store,
		Executions:  s.executions,
		Batches:     s.batches,
		Experiments: s.experiments,
		Metrics:     metrics,
		MediaDir:    s.config.MediaDir,
	})
}

func (s *service) cleanup() {
	if s.stopWatcher != nil {
		s.stopWatcher()
	}
	if s.influx != nil {
		s.influx.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("closing database failed", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// buildBackend constructs the generation backend. "openai" serves every
// modality it can from one OpenAI-compatible endpoint; "gateway" keeps
// language on OpenAI and routes media calls to the gateway.
func buildBackend(cfg config.Config) (backend.Backend, error) {
	language, err := backend.NewOpenAI(backend.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		TextModel:   cfg.TextModel,
		ImageModel:  cfg.ImageModel,
		SpeechModel: cfg.SpeechModel,
	})
	if err != nil {
		return nil, fmt.Errorf("init openai backend: %w", err)
	}

	switch cfg.BackendType {
	case "openai":
		return language, nil
	case "gateway":
		gateway, err := backend.NewGateway(backend.GatewayConfig{
			BaseURL:    cfg.GatewayURL,
			VideoModel: cfg.VideoModel,
			MusicModel: cfg.MusicModel,
		})
		if err != nil {
			return nil, fmt.Errorf("init gateway backend: %w", err)
		}
		return backend.NewComposite(language, gateway), nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.BackendType)
	}
}

// buildRecorder assembles the telemetry fan-out: Prometheus when metrics
// are enabled, Influx when a URL is configured, Noop otherwise. The Influx
// recorder is returned separately so cleanup can flush it.
func buildRecorder(cfg config.Config, metrics *observability.ExecutionMetrics, logger *slog.Logger) (telemetry.Recorder, *telemetry.InfluxRecorder) {
	var sinks telemetry.Multi
	if metrics != nil {
		sinks = append(sinks, observability.NewRecorder(metrics))
	}
	var influx *telemetry.InfluxRecorder
	if cfg.InfluxURL != "" {
		influx = telemetry.NewInfluxRecorder(
			cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, logger)
		sinks = append(sinks, influx)
	}
	switch len(sinks) {
	case 0:
		return telemetry.Noop{}, nil
	case 1:
		return sinks[0], influx
	default:
		return sinks, influx
	}
}

// buildScheduleTable loads the per-node-type concurrency table, watching
// the YAML override file for live changes when one is configured.
func buildScheduleTable(cfg config.Config, logger *slog.Logger) (*schedule.Table, func(), error) {
	if cfg.SchedulerConfigPath == "" {
		return schedule.NewTable(schedule.DefaultTypeConfigs()), nil, nil
	}

	configs, err := schedule.LoadTypeConfigs(cfg.SchedulerConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load scheduler config: %w", err)
	}
	table := schedule.NewTable(configs)

	stop, err := schedule.WatchConfig(cfg.SchedulerConfigPath, table, logger)
	if err != nil {
		logger.Warn("scheduler config watch unavailable",
			"path", cfg.SchedulerConfigPath, "error", err)
		return table, nil, nil
	}
	return table, stop, nil
}

// initTracer sets up the OTLP gRPC span exporter and returns its shutdown
// hook. Insecure transport: the collector sits on the same network.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("pixelgroove-orchestrator")))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}
