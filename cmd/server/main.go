package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/analytics"
	"github.com/shubhsaxena/nearby-assistant/internal/api"
	"github.com/shubhsaxena/nearby-assistant/internal/assistant"
	"github.com/shubhsaxena/nearby-assistant/internal/cache"
	"github.com/shubhsaxena/nearby-assistant/internal/clickhouse"
	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/elasticsearch"
	"github.com/shubhsaxena/nearby-assistant/internal/firestore"
	"github.com/shubhsaxena/nearby-assistant/internal/index"
	"github.com/shubhsaxena/nearby-assistant/internal/indexing"
	"github.com/shubhsaxena/nearby-assistant/internal/intent"
	"github.com/shubhsaxena/nearby-assistant/internal/kafka"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
	"github.com/shubhsaxena/nearby-assistant/internal/orchestrator"
	"github.com/shubhsaxena/nearby-assistant/internal/query"
	"github.com/shubhsaxena/nearby-assistant/internal/sqlite"
	"github.com/shubhsaxena/nearby-assistant/internal/taxonomy"
	"github.com/shubhsaxena/nearby-assistant/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Optional dotenv file loaded before the config")
	flag.Parse()

	if err := run(*configPath, *envPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env file: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting assistant service",
		zap.String("service", cfg.Observability.ServiceName),
		zap.String("cache_store", cfg.Cache.Store),
	)

	tracerShutdown, err := observability.InitTracer(cfg.Observability.ServiceName)
	if err != nil {
		logger.Warn("tracing initialization failed, continuing without tracing", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistent cache store
	store, fsStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing %s cache store: %w", cfg.Cache.Store, err)
	}
	defer store.Close()
	logger.Info("cache store initialized", zap.String("store", cfg.Cache.Store))

	// Search backends
	esClient, err := elasticsearch.NewClient(cfg.Elasticsearch, cfg.Search, logger)
	if err != nil {
		return fmt.Errorf("initializing elasticsearch: %w", err)
	}
	defer esClient.Close()
	logger.Info("elasticsearch client initialized")

	places := elasticsearch.NewPlaceSession(esClient, cfg.Elasticsearch, logger)
	geocoder := elasticsearch.NewGeocoder(esClient, cfg.Elasticsearch.LocationsIndex, cfg.Search.DefaultLocation, logger)

	var (
		personal        orchestrator.PersonalizedSession
		sink            analytics.Sink = analytics.Nop{}
		analyticsWriter observability.AnalyticsWriter
	)
	chClient, err := clickhouse.NewClient(cfg.ClickHouse, cfg.Search, logger)
	if err != nil {
		logger.Warn("clickhouse initialization failed, personalization and analytics will be unavailable", zap.Error(err))
		chClient = nil
	} else {
		defer chClient.Close()
		if err := chClient.EnsureTables(ctx); err != nil {
			logger.Warn("clickhouse table creation failed", zap.Error(err))
		}
		personal = chClient
		sink = analytics.NewRecorder(chClient, logger)
		analyticsWriter = chClient
		logger.Info("clickhouse client initialized")
	}

	slowSearch := observability.NewSlowSearchDetector(
		cfg.Search.SlowQuery.WarningThreshold,
		cfg.Search.SlowQuery.CriticalThreshold,
		logger,
		analyticsWriter,
	)

	// Cache manager
	var publisher cache.ChangePublisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, logger)
		defer producer.Close()
		publisher = producer
	}
	manager := cache.NewManager(store, publisher, sink, logger)

	// Query understanding
	table, err := taxonomy.Load(cfg.Query.TaxonomyPath)
	if err != nil {
		return fmt.Errorf("loading taxonomy: %w", err)
	}
	analyzer, err := buildAnalyzer(cfg, table)
	if err != nil {
		return fmt.Errorf("building query analyzer: %w", err)
	}

	// Conversation
	state := intent.NewState()
	orch, err := orchestrator.New(places, personal, sink, slowSearch, state, cfg.Search, cfg.Cache.DetailsCacheSize, logger)
	if err != nil {
		return fmt.Errorf("initializing orchestrator: %w", err)
	}
	resolver := orchestrator.NewLocationResolver(geocoder, table, cfg.Cache.GeocodeTTL, logger)

	events := make(chan assistant.Event, 64)
	go logEvents(ctx, events, logger)

	host, err := assistant.NewHost(assistant.Components{
		Analyzer:     analyzer,
		Orchestrator: orch,
		Resolver:     resolver,
		State:        state,
		Cache:        manager,
		Index:        index.New(),
		Table:        table,
		Analytics:    sink,
	}, events, logger)
	if err != nil {
		return fmt.Errorf("initializing assistant: %w", err)
	}

	if cfg.Cache.RefreshOnStart {
		if err := host.SyncCache(ctx); err != nil {
			logger.Warn("initial cache refresh incomplete", zap.Error(err))
		}
	}

	// Cross-instance cache sync
	syncProcessor := indexing.NewSyncProcessor(manager, sink, cfg.Cache.SyncFlushInterval, logger,
		indexing.WithAfterSync(func(context.Context) { host.EnrichFromCache() }),
	)
	defer syncProcessor.Stop()

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(cfg.Kafka, syncProcessor.HandleEvent, logger)
		if err := consumer.Start(ctx); err != nil {
			logger.Warn("kafka consumer start failed, cache sync will be unavailable", zap.Error(err))
			consumer = nil
		} else {
			defer consumer.Stop()
			logger.Info("kafka consumer started")
		}
	}

	if fsStore != nil {
		listener := fsStore.NewChangeListener(syncProcessor.HandleEvent)
		go func() {
			if err := listener.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("firestore change listener stopped", zap.Error(err))
			}
		}()
	}

	var natsTransport *transport.NATSTransport
	if cfg.NATS.Enabled {
		natsTransport, err = transport.NewNATSTransport(cfg.NATS, cfg.Observability.ServiceName, host, logger)
		if err != nil {
			logger.Warn("nats initialization failed, message transport will be unavailable", zap.Error(err))
			natsTransport = nil
		} else if err := natsTransport.Start(); err != nil {
			logger.Warn("nats subscription failed", zap.Error(err))
			natsTransport.Close()
			natsTransport = nil
		} else {
			defer natsTransport.Close()
		}
	}

	// HTTP server
	handler := api.NewHandler(host, manager, logger)

	healthHandler := api.NewHealthHandler(logger)
	healthHandler.Register("cache_store", store)
	healthHandler.RegisterES(esClient)
	if chClient != nil {
		healthHandler.RegisterOptional("clickhouse", chClient)
	}
	if consumer != nil {
		healthHandler.RegisterOptional("kafka", consumer)
	}
	if natsTransport != nil {
		healthHandler.RegisterOptional("nats", natsTransport)
	}

	router := api.NewRouter(handler, healthHandler, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	logger.Info("starting graceful shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	// Abandon any in-flight geocode and stop background work.
	host.Reset()
	cancel()

	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// openStore returns the configured persistent store. The firestore store is
// also returned on its own so its change listener can be started.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Store, *firestore.Store, error) {
	switch cfg.Cache.Store {
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLite.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case "firestore":
		s, err := firestore.NewStore(ctx, cfg.Firestore, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		s, err := cache.NewRedisStore(cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}
}

func buildAnalyzer(cfg *config.Config, table *taxonomy.Table) (*query.Analyzer, error) {
	domain, err := query.DefaultDomainModel()
	if err != nil {
		return nil, err
	}
	if cfg.Query.DomainModelPath != "" {
		if domain, err = domain.LoadFile(cfg.Query.DomainModelPath); err != nil {
			return nil, err
		}
	}
	domain = domain.FromTaxonomy(table)

	lexical, err := query.LoadLexicalModel(cfg.Query.LexicalModelPath)
	if err != nil {
		return nil, err
	}
	tagger, err := query.NewTagger(domain, lexical)
	if err != nil {
		return nil, err
	}

	classifier := query.NewIntentClassifier(table, query.NewLexiconDictionary(lexical))
	extractor := query.NewFilterExtractor(table, cfg.Query.AbortOnUnmatchedParent)
	return query.NewAnalyzer(tagger, extractor, classifier, query.Defaults{
		Radius: cfg.Search.DefaultRadius,
		Limit:  cfg.Search.DefaultLimit,
	}), nil
}

func logEvents(ctx context.Context, events <-chan assistant.Event, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			fields := []zap.Field{
				zap.String("type", string(ev.Type)),
				zap.String("intent_id", ev.IntentID),
			}
			if ev.Destination != nil {
				fields = append(fields, zap.String("destination", ev.Destination.Name))
			}
			if ev.Turn != nil {
				fields = append(fields, zap.Int("results", len(ev.Turn.Results)), zap.Bool("stale", ev.Turn.Stale))
			}
			if ev.Err != nil {
				fields = append(fields, zap.Error(ev.Err))
			}
			logger.Debug("assistant event", fields...)
		}
	}
}
