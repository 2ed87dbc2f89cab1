// Command server runs the workflow execution engine's HTTP surface: the
// flow-execution control API (start/inspect/cancel/checkpoint/resume),
// a WebSocket event stream, and a cron-driven scheduler for trigger-fired
// runs. Grounded on the teacher's cmd/server/main.go wiring order (load
// config, build logger, build shared infrastructure, build handlers,
// register routes, run with graceful shutdown) generalized from the
// teacher's full SaaS surface down to the engine's own.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/mbflow/internal/checkpoint"
	"github.com/smilemakc/mbflow/internal/config"
	"github.com/smilemakc/mbflow/internal/engine"
	"github.com/smilemakc/mbflow/internal/expreval"
	"github.com/smilemakc/mbflow/internal/infrastructure/api/rest"
	"github.com/smilemakc/mbflow/internal/infrastructure/cache"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/internal/infrastructure/storage"
	"github.com/smilemakc/mbflow/internal/loader"
	"github.com/smilemakc/mbflow/internal/nodes"
	"github.com/smilemakc/mbflow/internal/observerws"
	"github.com/smilemakc/mbflow/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)
	logger.SetDefault(log)
	log.Info("starting mbflow workflow engine", "port", cfg.Server.Port, "checkpoint_backend", cfg.Checkpoint.Backend)

	store, closeStore, err := buildCheckpointStore(cfg, log)
	if err != nil {
		log.Error("building checkpoint store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	registry := buildNodeRegistry(cfg, log)
	evaluator := expreval.New(cfg.Queue.Capacity)
	wfLoader := loader.New(cfg.Checkpoint.WorkflowsDir)

	hub := observerws.NewHub(log)
	observer := observerws.NewObserver(hub, log)
	attachObserver := func(eng *engine.WorkflowEngine) {
		eng.AddObserver(observer)
	}

	engineCfg := engine.Config{
		QueueCapacity:         cfg.Queue.Capacity,
		DeadLetterCapacity:    cfg.Queue.DeadLetterCap,
		VisibilityTimeout:     cfg.Queue.VisibilityTimeout,
		MaxRetries:            cfg.Queue.MaxRetries,
		WorkerPollInterval:    100 * time.Millisecond,
		CompletionGraceWindow: 150 * time.Millisecond,
		ExpressionCacheSize:   cfg.Queue.Capacity,
		WorkflowTimeout:       cfg.Queue.WorkflowTimeout,
	}

	flowHandlers := rest.NewFlowExecutionHandlers(wfLoader, registry, evaluator, engineCfg, store, log, attachObserver)

	sched := scheduler.New(func(ctx context.Context, workflowID string, input map[string]interface{}) error {
		def, err := wfLoader.Load(workflowID + ".yaml")
		if err != nil {
			return fmt.Errorf("loading scheduled workflow %q: %w", workflowID, err)
		}
		_, err = flowHandlers.Start(def, input)
		return err
	}, log)
	sched.Start()
	defer sched.Stop()

	router := buildRouter(cfg, log, flowHandlers, hub)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// buildCheckpointStore selects FileStore or BunStore per
// cfg.Checkpoint.Backend. The returned closer releases any backing
// resources (a BunStore's *bun.DB); it is a no-op for FileStore.
func buildCheckpointStore(cfg *config.Config, log *logger.Logger) (checkpoint.Store, func(), error) {
	switch cfg.Checkpoint.Backend {
	case "postgres":
		dbCfg := storage.DefaultConfig()
		dbCfg.DSN = cfg.Database.URL
		dbCfg.MaxOpenConns = cfg.Database.MaxConnections
		dbCfg.MaxIdleConns = cfg.Database.MinConnections
		dbCfg.ConnMaxLifetime = cfg.Database.MaxConnLifetime
		dbCfg.ConnMaxIdleTime = cfg.Database.MaxIdleTime

		db, err := storage.NewDB(dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting checkpoint database: %w", err)
		}

		bunStore := checkpoint.NewBunStore(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bunStore.EnsureSchema(ctx); err != nil {
			storage.Close(db)
			return nil, nil, fmt.Errorf("ensuring checkpoint schema: %w", err)
		}

		return bunStore, func() { storage.Close(db) }, nil

	default:
		fileStore, err := checkpoint.NewFileStore(cfg.Checkpoint.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening file checkpoint store: %w", err)
		}
		log.Info("using file checkpoint store", "dir", cfg.Checkpoint.Dir)
		return fileStore, func() {}, nil
	}
}

// buildNodeRegistry wires a RedisRateLimiter into the task_http node kind
// when Redis is reachable, and falls back to an unlimited registry
// otherwise so a missing Redis never blocks local development.
func buildNodeRegistry(cfg *config.Config, log *logger.Logger) *nodes.Registry {
	registry := nodes.DefaultRegistry()

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, task_http nodes will run without rate limiting", "error", err)
		return registry
	}

	return registry.WithRateLimiter(nodes.NewRedisRateLimiter(redisCache.Client()))
}

func buildRouter(cfg *config.Config, log *logger.Logger, flowHandlers *rest.FlowExecutionHandlers, hub *observerws.Hub) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	loggingMW := rest.NewLoggingMiddleware(log)
	recoveryMW := rest.NewRecoveryMiddleware(log)
	bodySizeMW := rest.NewBodySizeMiddleware(log, 10<<20)

	router.Use(recoveryMW.Recovery())
	router.Use(loggingMW.RequestLogger())
	router.Use(bodySizeMW.LimitBodySize())

	if cfg.Server.CORS {
		router.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	wsHandler := observerws.NewHandler(hub, log)
	router.GET("/ws/flows", func(c *gin.Context) {
		wsHandler.ServeHTTP(c.Writer, c.Request)
	})
	router.GET("/ws/flows/health", func(c *gin.Context) {
		wsHandler.HandleHealth(c.Writer, c.Request)
	})

	v1 := router.Group("/api/v1")
	flows := v1.Group("/flows")
	{
		flows.POST("/:workflow_id/executions", flowHandlers.HandleStart)
		flows.GET("/executions/:id", flowHandlers.HandleGet)
		flows.POST("/executions/:id/cancel", flowHandlers.HandleCancel)
		flows.POST("/executions/:id/checkpoints", flowHandlers.HandleCheckpoint)
		flows.POST("/executions/:id/resume", flowHandlers.HandleResume)
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
