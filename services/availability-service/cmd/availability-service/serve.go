package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/grpcx"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health endpoint, outbox publisher and provider consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), migrateUp || config.Bool("MIGRATE_ON_START", false))
		},
	}
	cmd.Flags().BoolVar(&migrateUp, "migrate", false, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

func serve(ctx context.Context, migrateUp bool) error {
	service := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return err
	}
	logger := newLogger()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	store, err := openStore(ctx)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer store.Close()

	if migrateUp {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("schema migrated")
	}

	svc, err := newService(store, logger)
	if err != nil {
		return err
	}

	rawBrokers := config.String("KAFKA_BROKERS", "")
	brokers := kafkax.SplitBrokers(rawBrokers)
	if err := startEvents(ctx, store, logger, brokers); err != nil {
		return err
	}

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: store.Ping}}
	if len(brokers) > 0 {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(rawBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	limit, closeLimiter, err := rateLimit(logger)
	if err != nil {
		return err
	}
	defer closeLimiter()
	handlers.New(svc, logger).Register(mux, limit)

	bodyLimit, err := config.Int("MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return err
	}
	shutdownTimeout, err := config.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return err
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id")),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(bodyLimit)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		return err
	}
	grpcSrv, health := grpcx.NewServer(logger)
	go grpcx.WatchHealth(ctx, health, "", 10*time.Second, store.Ping)
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
	return nil
}

// startEvents runs the outbox publisher and the provider registry consumer. Without brokers the
// publisher only logs that it is disabled and events stay in the outbox.
func startEvents(ctx context.Context, store storage.Store, logger *slog.Logger, brokers []string) error {
	cfg, err := publisherConfig()
	if err != nil {
		return err
	}
	var writer outbox.MessageWriter
	if len(brokers) > 0 {
		w := kafkax.NewWriter(brokers)
		go func() {
			<-ctx.Done()
			_ = w.Close()
		}()
		writer = w
	}
	go outbox.NewPublisher(store, writer, logger, cfg).Run(ctx)

	if len(brokers) == 0 {
		return nil
	}
	reader := kafkax.NewReader(brokers, config.String("KAFKA_GROUP_ID", "availability-service"), consumer.TopicProviderRegistered)
	go consumer.New(reader, store, logger, consumer.ProviderRegistered(logger)).Run(ctx)
	return nil
}

// publisherConfig reads the outbox polling settings. SQLite has a single connection, so its
// publisher never keeps a transaction open across a broker write.
func publisherConfig() (outbox.PublisherConfig, error) {
	pollEvery, err := config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return outbox.PublisherConfig{}, err
	}
	batchSize, err := config.Int("OUTBOX_BATCH_SIZE", 50)
	if err != nil {
		return outbox.PublisherConfig{}, err
	}
	return outbox.PublisherConfig{
		PollEvery:     pollEvery,
		BatchSize:     batchSize,
		DetachedWrite: storeDriver() == "sqlite",
	}, nil
}

// rateLimit guards the slot-acquiring routes, in Redis when REDIS_ADDR is set and in memory
// otherwise.
func rateLimit(logger *slog.Logger) (httpx.Middleware, func(), error) {
	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return nil, nil, err
	}
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", perMinute)
		return httpx.NewRateLimiter(perMinute, time.Minute).Middleware(), func() {}, nil
	}

	redisDB, err := config.Int("REDIS_DB", 0)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       redisDB,
	})
	rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "slotbook"))
	logger.Info("rate limiting enabled (redis)", "per_minute", perMinute, "redis_addr", addr)
	return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), func() { _ = rdb.Close() }, nil
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
