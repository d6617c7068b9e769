package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/swarmgate/safeguard/internal/api"
	"github.com/swarmgate/safeguard/internal/enforcer"
	"github.com/swarmgate/safeguard/internal/events"
	"github.com/swarmgate/safeguard/internal/guardrail"
	"github.com/swarmgate/safeguard/internal/metrics"
	"github.com/swarmgate/safeguard/internal/policy"
	"github.com/swarmgate/safeguard/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("SAFEGUARD_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("SAFEGUARD_HTTP_PORT", "8080")
	policyPath := os.Getenv("SAFEGUARD_POLICY_FILE")
	policyReload := envOrDefaultBool("SAFEGUARD_POLICY_RELOAD", false)
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	sqlitePath := os.Getenv("SAFEGUARD_SQLITE_PATH")
	retentionDays := envOrDefaultInt("SAFEGUARD_SQLITE_RETENTION_DAYS", 30)
	cacheTTL := envOrDefaultInt("SAFEGUARD_AUTH_CACHE_TTL_S", 30)

	logger.Info("starting safeguard server",
		zap.String("http_port", httpPort),
		zap.String("policy_file", policyPath),
		zap.Bool("policy_reload", policyReload),
	)

	// LLM clients for check_method=llm rules and mask redaction
	checker := buildChatClient("SAFEGUARD_LLM", logger)
	masker := buildChatClient("SAFEGUARD_MASK_LLM", logger)
	if masker == nil {
		masker = checker
	}

	// Event sink: ClickHouse, SQLite, or zap log fallback.
	var sink events.Sink
	switch {
	case clickhouseDSN != "":
		chSink, err := events.NewClickHouseSink(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log sink",
				zap.Error(err),
			)
			sink = events.NewLogSink(logger)
		} else {
			sink = chSink
			logger.Info("clickhouse sink connected")
		}
	case sqlitePath != "":
		retention := time.Duration(retentionDays) * 24 * time.Hour
		sqSink, err := events.NewSQLiteSink(sqlitePath, retention, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite sink", zap.Error(err))
		}
		sink = sqSink
		logger.Info("sqlite sink opened", zap.String("path", sqlitePath))
	default:
		sink = events.NewLogSink(logger)
		logger.Info("no CLICKHOUSE_DSN or SAFEGUARD_SQLITE_PATH set, using log sink")
	}

	// Prometheus counters ride along on every event
	metricsSink := metrics.NewSink(nil)
	combined := events.NewMultiSink(sink, metricsSink)
	defer combined.Close()

	// ClickHouse reader (for events/analytics HTTP endpoints)
	var chReader *events.Reader
	if clickhouseDSN != "" {
		var err error
		chReader, err = events.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	deps := &api.Dependencies{
		Sink:     combined,
		Reader:   chReader,
		Checker:  checker,
		Masker:   masker,
		Metrics:  metricsSink,
		Logger:   logger,
		CacheTTL: time.Duration(cacheTTL) * time.Second,
	}

	// Postgres-backed multi-project API, or static file-policy mode
	var handler http.Handler
	switch {
	case postgresDSN != "":
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		deps.Store = store.NewStore(db)
		logger.Info("postgres connected")
		handler = api.NewRouter(deps)

	case policyPath != "":
		provider, stopWatch := buildStaticProvider(policyPath, policyReload, deps, logger)
		defer stopWatch()
		handler = api.NewStaticRouter(deps, provider)

	default:
		logger.Fatal("either POSTGRES_DSN or SAFEGUARD_POLICY_FILE is required")
	}

	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("safeguard server stopped")
}

// buildStaticProvider loads the policy file, compiles it, and (optionally)
// starts the fsnotify watcher that swaps in recompiled policies on change.
func buildStaticProvider(
	path string,
	reload bool,
	deps *api.Dependencies,
	logger *zap.Logger,
) (api.EnforcerProvider, func()) {
	build := func(doc *policy.Document) (*enforcer.Enforcer, error) {
		return enforcer.New(doc, enforcer.Options{
			Checker: deps.Checker,
			Masker:  deps.Masker,
			Sink:    deps.Sink,
			Logger:  logger,
		})
	}

	doc, err := policy.Load(path)
	if err != nil {
		logger.Fatal("failed to load policy file", zap.String("path", path), zap.Error(err))
	}
	enf, err := build(doc)
	if err != nil {
		logger.Fatal("policy file does not compile", zap.String("path", path), zap.Error(err))
	}

	var current atomic.Pointer[enforcer.Enforcer]
	current.Store(enf)

	stop := func() {}
	if reload {
		watcher, err := policy.NewWatcher(path, logger)
		if err != nil {
			logger.Fatal("failed to start policy watcher", zap.Error(err))
		}
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			_ = watcher.Watch(ctx, func(doc *policy.Document) {
				next, err := build(doc)
				if err != nil {
					logger.Error("reloaded policy does not compile, keeping previous policy",
						zap.Error(err),
					)
					return
				}
				current.Store(next)
				logger.Info("policy swapped in")
			})
		}()
		stop = cancel
	}

	return current.Load, stop
}

// buildChatClient reads <prefix>_ENDPOINT / _API_KEY / _MODEL and returns nil
// when no endpoint is configured.
func buildChatClient(prefix string, logger *zap.Logger) guardrail.ChatClient {
	endpoint := os.Getenv(prefix + "_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	client, err := guardrail.NewOpenAIClient(guardrail.OpenAIConfig{
		Endpoint: endpoint,
		APIKey:   os.Getenv(prefix + "_API_KEY"),
		Model:    os.Getenv(prefix + "_MODEL"),
	})
	if err != nil {
		logger.Fatal("failed to build llm client",
			zap.String("prefix", prefix),
			zap.Error(err),
		)
	}
	logger.Info("llm client configured", zap.String("prefix", prefix))
	return client
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
