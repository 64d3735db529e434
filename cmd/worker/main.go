package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stayfinder/internal/config"
	"stayfinder/internal/database"
	"stayfinder/internal/domain"
	"stayfinder/internal/events"
	"stayfinder/internal/export"
	"stayfinder/internal/google"
	"stayfinder/internal/logging"
	"stayfinder/internal/metrics"
	"stayfinder/internal/models"
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
	var (
		resync     = flag.Bool("resync", false, "rewrite the bookings spreadsheet from the database and exit")
		exportHost = flag.Int64("export-host", 0, "write the xlsx booking report of this host id and exit")
		confirmID  = flag.Int64("confirm-booking", 0, "confirm a pending booking on behalf of the platform and exit")
	)
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	base, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := logging.Component(base, "worker-main")

	db, err := database.NewDB(cfg.Database.Path, base)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *exportHost > 0:
		return exportHostBookings(ctx, cfg, db, *exportHost, logger)
	case *resync:
		return resyncSheet(ctx, cfg, db, logger)
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	eventBus := events.NewEventBus()
	if forwarder := initAMQP(cfg, base); forwarder != nil {
		forwarder.Attach(eventBus)
		defer forwarder.Close()
	}
	if *confirmID > 0 {
		initTelegram(cfg, db, eventBus, base)
		bookings := newBookingService(cfg, db, eventBus, worker.NewSheetsEnqueuer(db, redisClient, base), base)
		return confirmBooking(ctx, bookings, *confirmID, logger)
	}
	if notifier := initTelegram(cfg, db, eventBus, base); notifier != nil {
		reminder, err := notify.NewCheckInReminder(notifier, db, cfg.Telegram.ReminderTime, cfg.App.Location(), base)
		if err != nil {
			return err
		}
		reminder.Start(ctx)
	}

	var syncWorker domain.SyncWorker
	sheetsService, err := initSheets(ctx, cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets unavailable, spreadsheet sync disabled")
	} else if sheetsService != nil {
		retryPolicy := worker.RetryPolicyFromConfig(cfg.Worker.SyncRetry)
		sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, retryPolicy, cfg.Worker.SyncInterval, base)
		syncWorker = sheetsWorker
		go sheetsWorker.Start(ctx)
	}

	bookingService := newBookingService(cfg, db, eventBus, syncWorker, base)
	go worker.NewCompletionSweeper(bookingService, cfg.Worker.SweepInterval, base).Start(ctx)

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, base).Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort+1, logger)
	}

	logger.Info().Bool("sheets", syncWorker != nil).Dur("sweep_interval", cfg.Worker.SweepInterval).Msg("worker started")
	<-ctx.Done()
	logger.Info().Msg("worker stopped")
	return nil
}

func initSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*google.SheetsService, error) {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil, nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID)
	if err != nil {
		return nil, err
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		return nil, err
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets row cache warm-up failed")
	}
	logger.Info().Msg("google sheets connected")
	return sheetsService, nil
}

func resyncSheet(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) error {
	sheetsService, err := initSheets(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("google sheets: %w", err)
	}
	if sheetsService == nil {
		return errors.New("google credentials_file and bookings_spreadsheet_id are required for -resync")
	}

	bookings, err := db.ListBookings(ctx)
	if err != nil {
		return err
	}
	if err := sheetsService.ReplaceBookings(ctx, bookings); err != nil {
		return fmt.Errorf("replace bookings sheet: %w", err)
	}
	logger.Info().Int("bookings", len(bookings)).Msg("bookings sheet rebuilt")

	// The rebuilt sheet already reflects every dead-lettered change.
	superseded, err := db.SupersedeFailedSyncTasks(ctx, "superseded by resync")
	if err != nil {
		return err
	}
	if superseded > 0 {
		logger.Info().Int("tasks", superseded).Msg("failed sync tasks superseded")
	}
	return nil
}

func newBookingService(cfg *config.Config, db *database.DB, bus *events.EventBus, sync domain.SyncWorker, base *zerolog.Logger) *service.BookingService {
	return service.NewBookingService(db, db, bus, sync, service.BookingOptions{
		MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
		Location:       cfg.App.Location(),
		Pricing:        pricing.FromConfig(cfg.Booking.AddOnFees),
	}, logging.Component(base, "booking_service"))
}

type bookingConfirmer interface {
	Confirm(ctx context.Context, id int64) (*models.Booking, error)
}

// confirmBooking accepts a pending booking as the platform rather than as its host.
func confirmBooking(ctx context.Context, bookings bookingConfirmer, bookingID int64, logger *zerolog.Logger) error {
	booking, err := bookings.Confirm(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("confirm booking %d: %w", bookingID, err)
	}
	logger.Info().Int64("booking_id", booking.ID).Str("status", booking.Status).Int64("version", booking.Version).Msg("booking confirmed")
	return nil
}

func exportHostBookings(ctx context.Context, cfg *config.Config, db *database.DB, hostID int64, logger *zerolog.Logger) error {
	bookings, err := db.GetHostBookings(ctx, hostID)
	if err != nil {
		return err
	}
	path, err := export.SaveHostBookings(cfg.Exports.Path, hostID, bookings, time.Now())
	if err != nil {
		return err
	}
	logger.Info().Int64("host_id", hostID).Int("bookings", len(bookings)).Str("path", path).Msg("host report written")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, polling the database queue only")
		_ = redisClient.Close()
		return nil
	}
	return redisClient
}

func initAMQP(cfg *config.Config, logger *zerolog.Logger) *events.AMQPForwarder {
	if !cfg.Events.AMQP.Enabled {
		return nil
	}
	forwarder, err := events.DialAMQP(cfg.Events.AMQP.URL, cfg.Events.AMQP.Exchange, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, completion events stay in-process")
		return nil
	}
	return forwarder
}

func initTelegram(cfg *config.Config, db *database.DB, bus *events.EventBus, logger *zerolog.Logger) *notify.TelegramNotifier {
	if !cfg.Telegram.Enabled {
		return nil
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram bot init failed, notifications disabled")
		return nil
	}
	botAPI.Debug = cfg.Telegram.Debug
	notifier := notify.NewTelegramNotifier(botAPI, db, logger)
	notifier.Attach(bus)
	return notifier
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
