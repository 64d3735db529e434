package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"stayfinder/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Listings   ListingsConfig   `yaml:"listings"`
	Events     EventsConfig     `yaml:"events"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	// TimeZone decides what "today" means for check-in validation.
	TimeZone string `yaml:"time_zone"`
}

// Location resolves TimeZone, falling back to UTC.
func (a AppConfig) Location() *time.Location {
	if a.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	JWT       JWTConfig          `yaml:"jwt"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// APIAuthConfig guards the gRPC availability service with static keys.
type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// JWTConfig verifies bearer tokens on the HTTP API. Tokens are issued elsewhere.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	MaxAdvanceDays int             `yaml:"max_advance_days"`
	AddOnFees      AddOnFeesConfig `yaml:"add_on_fees"`
}

// AddOnFeesConfig prices add-ons. Empty fees mean no surcharge.
type AddOnFeesConfig struct {
	// PerNight multiplies fees by the number of nights; otherwise each fee is charged once.
	PerNight bool               `yaml:"per_night"`
	Fees     map[string]float64 `yaml:"fees"`
}

type ListingsConfig struct {
	MaxImageBytes int           `yaml:"max_image_bytes"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

type EventsConfig struct {
	AMQP AMQPConfig `yaml:"amqp"`
}

type AMQPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
	// ReminderTime is the local HH:MM at which guests arriving tomorrow are reminded.
	ReminderTime string `yaml:"reminder_time"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type WorkerConfig struct {
	SweepInterval time.Duration   `yaml:"sweep_interval"`
	SyncInterval  time.Duration   `yaml:"sync_interval"`
	SyncRetry     SyncRetryConfig `yaml:"sync_retry"`
}

// SyncRetryConfig is the backoff of failed spreadsheet sync tasks.
type SyncRetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	// Jitter spreads each delay by up to this fraction, 0 to 1.
	Jitter float64 `yaml:"jitter"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; values already in the environment win.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.API.HTTP.Enabled && c.API.JWT.Secret == "" {
		return errors.New("api.jwt.secret is required when the HTTP API is enabled")
	}
	if c.App.TimeZone != "" {
		if _, err := time.LoadLocation(c.App.TimeZone); err != nil {
			return fmt.Errorf("invalid app.time_zone %q: %w", c.App.TimeZone, err)
		}
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when telegram is enabled")
	}
	if c.Telegram.ReminderTime != "" {
		if _, err := time.Parse("15:04", c.Telegram.ReminderTime); err != nil {
			return fmt.Errorf("invalid telegram.reminder_time %q: %w", c.Telegram.ReminderTime, err)
		}
	}
	if j := c.Worker.SyncRetry.Jitter; j < 0 || j > 1 {
		return fmt.Errorf("worker.sync_retry.jitter must be between 0 and 1, got %v", j)
	}
	if c.Events.AMQP.Enabled && c.Events.AMQP.URL == "" {
		return errors.New("events.amqp.url is required when amqp is enabled")
	}
	return ValidateAddOnFees(c.Booking.AddOnFees)
}

// ValidateAddOnFees rejects unknown add-on names and negative fees.
func ValidateAddOnFees(cfg AddOnFeesConfig) error {
	for name, fee := range cfg.Fees {
		switch name {
		case models.AddOnBreakfast, models.AddOnParking, models.AddOnExtraBed,
			models.AddOnEarlyCheckIn, models.AddOnLateCheckOut:
		default:
			return fmt.Errorf("unknown add-on %q in booking.add_on_fees", name)
		}
		if fee < 0 {
			return fmt.Errorf("add-on %q has negative fee %.2f", name, fee)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "stayfinder"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}

	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Listings.MaxImageBytes == 0 {
		c.Listings.MaxImageBytes = models.DefaultMaxImageBytes
	}
	if c.Listings.CacheTTL == 0 {
		c.Listings.CacheTTL = models.ListingCacheTTL * time.Second
	}
	if c.Events.AMQP.Exchange == "" {
		c.Events.AMQP.Exchange = "stayfinder.bookings"
	}
	if c.Worker.SweepInterval == 0 {
		c.Worker.SweepInterval = time.Hour
	}
	if c.Worker.SyncInterval == 0 {
		c.Worker.SyncInterval = 30 * time.Second
	}
	if c.Worker.SyncRetry.MaxRetries == 0 {
		c.Worker.SyncRetry.MaxRetries = 5
	}
	if c.Worker.SyncRetry.InitialDelay == 0 {
		c.Worker.SyncRetry.InitialDelay = 2 * time.Second
	}
	if c.Worker.SyncRetry.MaxDelay == 0 {
		c.Worker.SyncRetry.MaxDelay = time.Minute
	}
	if c.Worker.SyncRetry.BackoffFactor == 0 {
		c.Worker.SyncRetry.BackoffFactor = 2
	}
	if c.Worker.SyncRetry.Jitter == 0 {
		c.Worker.SyncRetry.Jitter = 0.2
	}
	if c.Telegram.ReminderTime == "" {
		c.Telegram.ReminderTime = "09:00"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
}
