package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stayfinder/internal/api"
	"stayfinder/internal/config"
	"stayfinder/internal/database"
	"stayfinder/internal/domain"
	"stayfinder/internal/events"
	"stayfinder/internal/logging"
	"stayfinder/internal/metrics"
	"stayfinder/internal/notify"
	"stayfinder/internal/pricing"
	"stayfinder/internal/repository"
	"stayfinder/internal/service"
	"stayfinder/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(base, "api-main")

	db, err := database.NewDB(cfg.Database.Path, base)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	eventBus := events.NewEventBus()
	if forwarder := initAMQP(cfg, base); forwarder != nil {
		forwarder.Attach(eventBus)
		defer forwarder.Close()
	}
	initTelegram(cfg, db, eventBus, base)

	// Sheets tasks are applied by cmd/worker; a missing enqueuer must stay an untyped nil.
	var syncWorker domain.SyncWorker
	if sheetsConfigured(cfg) {
		syncWorker = worker.NewSheetsEnqueuer(db, redisClient, base)
	}

	bookingService := service.NewBookingService(db, db, eventBus, syncWorker, service.BookingOptions{
		MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
		Location:       cfg.App.Location(),
		Pricing:        pricing.FromConfig(cfg.Booking.AddOnFees),
	}, logging.Component(base, "booking_service"))
	listingService := service.NewListingService(db, initListingCache(cfg, redisClient, base), db,
		cfg.Listings.MaxImageBytes, logging.Component(base, "listing_service"))
	userService := service.NewUserService(db, logging.Component(base, "user_service"))

	startMetrics(ctx, cfg, logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Bookings: bookingService,
		Listings: listingService,
		Users:    userService,
		Ready:    db.Ready,
	}, base)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, bookingService, base)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initListingCache(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.ListingCache {
	memory := repository.NewMemoryListingCache(cfg.Listings.CacheTTL)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisListingCache(redisClient, cfg.Listings.CacheTTL)
	return repository.NewFailoverListingCache(primary, memory, logger)
}

func initAMQP(cfg *config.Config, logger *zerolog.Logger) *events.AMQPForwarder {
	if !cfg.Events.AMQP.Enabled {
		return nil
	}
	forwarder, err := events.DialAMQP(cfg.Events.AMQP.URL, cfg.Events.AMQP.Exchange, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, booking events stay in-process")
		return nil
	}
	logger.Info().Str("exchange", cfg.Events.AMQP.Exchange).Msg("forwarding booking events to amqp")
	return forwarder
}

func initTelegram(cfg *config.Config, db *database.DB, bus *events.EventBus, logger *zerolog.Logger) {
	if !cfg.Telegram.Enabled {
		return
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram bot init failed, notifications disabled")
		return
	}
	botAPI.Debug = cfg.Telegram.Debug
	notify.NewTelegramNotifier(botAPI, db, logger).Attach(bus)
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("telegram notifications enabled")
}

func sheetsConfigured(cfg *config.Config) bool {
	return cfg.Google.GoogleCredentialsFile != "" && cfg.Google.BookingSpreadSheetID != ""
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Bool("grpc", grpcServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
