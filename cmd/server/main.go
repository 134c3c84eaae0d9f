package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/raqa-orchestrator/internal/authsvc"
	"github.com/connexus-ai/raqa-orchestrator/internal/breaker"
	"github.com/connexus-ai/raqa-orchestrator/internal/cachewriter"
	"github.com/connexus-ai/raqa-orchestrator/internal/chunker"
	"github.com/connexus-ai/raqa-orchestrator/internal/config"
	"github.com/connexus-ai/raqa-orchestrator/internal/contextbuilder"
	"github.com/connexus-ai/raqa-orchestrator/internal/embedding"
	"github.com/connexus-ai/raqa-orchestrator/internal/gcpclient"
	"github.com/connexus-ai/raqa-orchestrator/internal/handler"
	"github.com/connexus-ai/raqa-orchestrator/internal/llm"
	"github.com/connexus-ai/raqa-orchestrator/internal/metrics"
	"github.com/connexus-ai/raqa-orchestrator/internal/middleware"
	"github.com/connexus-ai/raqa-orchestrator/internal/model"
	"github.com/connexus-ai/raqa-orchestrator/internal/orchestrator"
	"github.com/connexus-ai/raqa-orchestrator/internal/pipeline"
	"github.com/connexus-ai/raqa-orchestrator/internal/ratelimit"
	"github.com/connexus-ai/raqa-orchestrator/internal/router"
	"github.com/connexus-ai/raqa-orchestrator/internal/selector"
	"github.com/connexus-ai/raqa-orchestrator/internal/source"
	"github.com/connexus-ai/raqa-orchestrator/internal/store"
	"github.com/connexus-ai/raqa-orchestrator/internal/vectorcache"
)

// Version is stamped at build time via -ldflags; it defaults to "dev" for
// local builds.
var Version = "dev"

const systemPrompt = `You are a support assistant. Answer only using the provided context. If the context does not contain the answer, say so plainly rather than guessing.`

// core holds every long-lived component main wires together, so shutdown
// can close them in the right order without main itself knowing the DI
// graph.
type core struct {
	cfg          *config.Config
	httpServer   *http.Server
	redisClient  *redis.Client
	vectorPool   *pgxpool.Pool
	pubsubConn   *pubsub.Client
	generalRL    *middleware.RateLimiter
	chatRL       *middleware.RateLimiter
	workerDone   chan struct{}
	cancelWorker context.CancelFunc
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	c, err := build(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to initialize server", "error", err)
		os.Exit(2)
	}

	if err := c.run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(2)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// build assembles every component named in SPEC_FULL's domain-stack table
// and wires them into a Pipeline and a chi.Mux, in the teacher's own
// construct-then-inject style (see the teacher's router.Dependencies).
func build(ctx context.Context, cfg *config.Config) (*core, error) {
	opts, err := redis.ParseURL(cfg.StoreURL)
	if err != nil {
		return nil, fmt.Errorf("parsing STORE_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}
	transcriptStore := store.New(rdb)

	pool, err := vectorcache.NewPool(ctx, cfg.VectorDir, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connecting to vector cache: %w", err)
	}
	cache := vectorcache.New(pool)
	if cfg.GCSBucketName != "" {
		if storageAdapter, err := gcpclient.NewStorageAdapter(ctx); err != nil {
			slog.Warn("vectorcache snapshot export disabled", "error", err)
		} else {
			cache = cache.WithSnapshotExport(storageAdapter, cfg.GCSBucketName)
		}
	}

	embedder := embedding.New(cfg.EmbeddingDimensions)
	if err := embedder.Warmup(ctx); err != nil {
		return nil, fmt.Errorf("warming up embedder: %w", err)
	}
	splitter := chunker.New(cfg.ChunkMaxTokens, cfg.ChunkOverlap)
	builder := contextbuilder.New(embedder, splitter, cfg.PerSourceLimit)

	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	gate := ratelimit.New(map[string]ratelimit.Config{
		string(model.SourceJira):        ratelimit.DefaultConfig(),
		string(model.SourceVectorCache): ratelimit.DefaultConfig(),
	})

	registry := buildSourceRegistry(ctx, cache, embedder, cfg)
	sel := selector.New(registry, breakers)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCPProject)
	if err != nil {
		return nil, fmt.Errorf("connecting to pub/sub: %w", err)
	}
	topic := pubsubClient.Topic(cfg.PubSubTopic)
	writer := cachewriter.New(cachewriter.TopicPublisher{Topic: topic})

	reg := prometheus.NewRegistry()
	appMetrics := middleware.NewMetrics(reg)
	domainMetrics := metrics.New(reg)

	orch := orchestrator.New(registry, gate, breakers, writer, cfg.PerSourceDeadline).WithMetrics(domainMetrics)

	streamerFactory := func(settings model.Settings) (llm.Streamer, error) {
		return llm.New(settings.LLMProvider, http.DefaultClient, cfg.GCPProject, cfg.VertexAILocation, breakers)
	}

	pipe := pipeline.New(sel, orch, builder, streamerFactory, transcriptStore, systemPrompt, cfg.TokenBudget, cfg.HistoryTurnBudget, cfg.FirstTokenTimeout).
		WithMetrics(domainMetrics)

	var vertexChecker handler.VertexHealthChecker
	if genAI, err := gcpclient.NewGenAIAdapter(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel); err != nil {
		slog.Warn("vertex AI health probe disabled", "error", err)
	} else {
		vertexChecker = genAI
	}

	sub := pubsubClient.Subscription(cfg.PubSubTopic + "-worker")
	worker := cachewriter.NewWorker(sub, splitter, embedder, cache)
	workerDone := make(chan struct{})
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go func() {
		defer close(workerDone)
		if err := worker.Run(workerCtx); err != nil {
			slog.Error("cache writer worker stopped", "error", err)
		}
	}()

	authService, err := buildAuthService(ctx, cfg)
	if err != nil {
		slog.Warn("Firebase auth disabled, internal-auth-only mode", "error", err)
	}

	generalRL := middleware.NewRateLimiter(middleware.RateLimiterConfig{MaxRequests: 120, Window: time.Minute})
	chatRL := middleware.NewRateLimiter(middleware.RateLimiterConfig{MaxRequests: 20, Window: time.Minute})

	deps := &router.Dependencies{
		DB:                  redisPinger{rdb},
		Version:             Version,
		Pipeline:            pipe,
		Store:               transcriptStore,
		StreamerFactory:     streamerFactory,
		QueryDeadline:       cfg.QueryDeadline,
		AuthService:         authService,
		InternalAuthSecret:  cfg.InternalAuthSecret,
		CORSOrigins:         cfg.CORSOrigins,
		Metrics:             appMetrics,
		MetricsReg:          reg,
		ChatRateLimiter:     chatRL,
		GeneralRateLimiter:  generalRL,
		VertexHealthChecker: vertexChecker,
	}

	srv := &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      router.New(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // chat/stream holds the connection open for the life of a generation
		IdleTimeout:  60 * time.Second,
	}

	return &core{
		cfg:          cfg,
		httpServer:   srv,
		redisClient:  rdb,
		vectorPool:   pool,
		pubsubConn:   pubsubClient,
		generalRL:    generalRL,
		chatRL:       chatRL,
		workerDone:   workerDone,
		cancelWorker: cancelWorker,
	}, nil
}

// redisPinger adapts *redis.Client to handler.DBPinger.
type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func buildSourceRegistry(ctx context.Context, cache *vectorcache.Cache, embedder *embedding.Model, cfg *config.Config) *source.Registry {
	vectorCacheAdapter := source.NewVectorCacheAdapter(cache, embedder, cfg.VectorCacheMinScore)

	adapters := []source.Adapter{vectorCacheAdapter}
	if jira, err := source.NewJiraAdapter(http.DefaultClient, model.CredentialsBlob{}); err == nil {
		if cfg.DocAIProcessorID != "" {
			processorName := fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.GCPProject, cfg.DocAILocation, cfg.DocAIProcessorID)
			if normalizer, err := source.NewDocAINormalizer(ctx, cfg.DocAILocation, processorName); err == nil {
				jira = jira.WithNormalizer(normalizer)
			} else {
				slog.Warn("jira attachment normalization disabled", "error", err)
			}
		}
		adapters = append(adapters, jira)
	} else {
		slog.Warn("jira source disabled", "error", err)
	}

	return source.NewRegistry(adapters...)
}

func buildAuthService(ctx context.Context, cfg *config.Config) (*authsvc.Service, error) {
	if cfg.FirebaseProjectID == "" {
		return nil, fmt.Errorf("FIREBASE_PROJECT_ID not configured")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID})
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase auth client: %w", err)
	}
	return authsvc.New(authClient), nil
}

// run starts the HTTP server and blocks until a termination signal or fatal
// server error, then drains the cache writer worker and closes every
// connection this process opened.
func (c *core) run() error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("raqa-orchestrator starting", "addr", c.cfg.BindAddr, "version", Version)
		if err := c.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			c.shutdown()
			return fmt.Errorf("server error: %w", err)
		}
	}

	c.shutdown()
	return nil
}

func (c *core) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownGrace+10*time.Second)
	defer cancel()

	if err := c.httpServer.Shutdown(ctx); err != nil {
		slog.Error("graceful HTTP shutdown failed", "error", err)
	}

	c.cancelWorker()
	select {
	case <-c.workerDone:
	case <-time.After(5 * time.Second):
		slog.Warn("cache writer worker did not stop in time")
	}

	c.generalRL.Stop()
	c.chatRL.Stop()

	c.vectorPool.Close()
	if err := c.redisClient.Close(); err != nil {
		slog.Error("closing store connection", "error", err)
	}
	if err := c.pubsubConn.Close(); err != nil {
		slog.Error("closing pub/sub connection", "error", err)
	}

	slog.Info("server stopped")
}
