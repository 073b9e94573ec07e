package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bookswap/pkg/client"
	"bookswap/pkg/db"
	"bookswap/pkg/logger"
)

type Config struct {
	StoreDriver string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	PostgresDSN string

	Port    string
	LogFile string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	TxMaxAttempts    int
	TxRetryBaseDelay time.Duration

	ProposalTTL         time.Duration
	AuctionExpiryPolicy string

	SweepInterval  time.Duration
	SweepBatchSize int
	SweeperEnabled bool

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	RelayEnabled       bool

	BookingServiceURL     string
	BookingServiceTimeout time.Duration

	KafkaAuditTopic         string
	KafkaNotificationTopic  string
	KafkaBookingEventsTopic string
	KafkaConsumerGroup      string
	KafkaDLQTopic           string

	MetricsEnabled bool

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		StoreDriver: strings.ToLower(getEnvStr(EnvStoreDriver, DefaultStoreDriver)),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		PostgresDSN: getEnvStr(EnvPostgresDSN, DefaultPostgresDSN),

		Port:    getEnvStr(EnvPort, DefaultPort),
		LogFile: getEnvStr(EnvLogFile, ""),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		TxMaxAttempts:    getEnvNum(EnvTxMaxAttempts, DefaultTxMaxAttempts),
		TxRetryBaseDelay: getEnvDuration(EnvTxRetryBaseDelay, DefaultTxRetryBaseDelay),

		ProposalTTL:         getEnvDuration(EnvProposalTTL, DefaultProposalTTL),
		AuctionExpiryPolicy: strings.ToLower(getEnvStr(EnvAuctionExpiryPolicy, DefaultAuctionExpiryPolicy)),

		SweepInterval:  getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		SweepBatchSize: getEnvNum(EnvSweepBatchSize, DefaultSweepBatchSize),
		SweeperEnabled: getEnvBool(EnvSweeperEnabled, true),

		OutboxPollInterval: getEnvDuration(EnvOutboxPollInterval, DefaultOutboxPollInterval),
		OutboxBatchSize:    getEnvNum(EnvOutboxBatchSize, DefaultOutboxBatchSize),
		OutboxMaxAttempts:  getEnvNum(EnvOutboxMaxAttempts, DefaultOutboxMaxAttempts),
		RelayEnabled:       getEnvBool(EnvRelayEnabled, true),

		BookingServiceURL:     getEnvStr(EnvBookingServiceURL, ""),
		BookingServiceTimeout: getEnvDuration(EnvBookingServiceTimeout, DefaultBookingServiceTimeout),

		KafkaAuditTopic:         getEnvStr(EnvKafkaAuditTopic, DefaultKafkaAuditTopic),
		KafkaNotificationTopic:  getEnvStr(EnvKafkaNotificationTopic, DefaultKafkaNotificationTopic),
		KafkaBookingEventsTopic: getEnvStr(EnvKafkaBookingEventsTopic, DefaultKafkaBookingEventsTopic),
		KafkaConsumerGroup:      getEnvStr(EnvKafkaConsumerGroup, DefaultKafkaConsumerGroup),
		KafkaDLQTopic:           getEnvStr(EnvKafkaDLQTopic, DefaultKafkaDLQTopic),

		MetricsEnabled: getEnvBool(EnvMetricsEnabled, true),

		Client: client.NewClient(),
	}
	cfg.Log = logger.New(logger.Config{
		Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
		File:      cfg.LogFile,
	})

	err := cfg.Validate()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// RetryPolicy is the transaction retry policy shared by every store backend.
func (cfg *Config) RetryPolicy() db.RetryPolicy {
	return db.RetryPolicy{
		MaxAttempts: cfg.TxMaxAttempts,
		BaseDelay:   cfg.TxRetryBaseDelay,
	}
}

// Connect opens the connection the configured store driver needs.
func (cfg *Config) Connect() {
	switch cfg.StoreDriver {
	case StoreMongo:
		cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoDatabaseName, cfg.MongoConnTimeout)
	case StorePostgres:
		cfg.Client.SetPostgres(cfg.Log, cfg.PostgresDSN, cfg.MongoConnTimeout)
	}
}

func (cfg *Config) Validate() error {
	var errors []string

	switch cfg.StoreDriver {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StorePostgres:
		if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresDSN) {
			errors = append(errors, fmt.Sprintf("PostgresDSN must start with 'postgres://' or 'postgresql://', got: %s", redactURI(cfg.PostgresDSN)))
		}
	default:
		errors = append(errors, fmt.Sprintf("StoreDriver must be one of memory, mongo, postgres, got: %s", cfg.StoreDriver))
	}

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.TxMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("TxMaxAttempts must be at least 1, got: %d", cfg.TxMaxAttempts))
	}
	if cfg.TxRetryBaseDelay <= 0 {
		errors = append(errors, fmt.Sprintf("TxRetryBaseDelay must be positive, got: %s", cfg.TxRetryBaseDelay))
	}
	if cfg.ProposalTTL < 0 {
		errors = append(errors, fmt.Sprintf("ProposalTTL cannot be negative, got: %s", cfg.ProposalTTL))
	}
	if cfg.AuctionExpiryPolicy != AuctionKeepOpen && cfg.AuctionExpiryPolicy != AuctionCancel {
		errors = append(errors, fmt.Sprintf("AuctionExpiryPolicy must be keep_open or cancel, got: %s", cfg.AuctionExpiryPolicy))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}
	if cfg.SweepBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("SweepBatchSize must be positive, got: %d", cfg.SweepBatchSize))
	}
	if cfg.OutboxPollInterval <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxPollInterval must be positive, got: %s", cfg.OutboxPollInterval))
	}
	if cfg.OutboxBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxBatchSize must be positive, got: %d", cfg.OutboxBatchSize))
	}
	if cfg.OutboxMaxAttempts <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxMaxAttempts must be positive, got: %d", cfg.OutboxMaxAttempts))
	}
	if cfg.BookingServiceURL != "" && !regexp.MustCompile(`^https?://`).MatchString(cfg.BookingServiceURL) {
		errors = append(errors, fmt.Sprintf("BookingServiceURL must start with 'http://' or 'https://', got: %s", cfg.BookingServiceURL))
	}
	if cfg.BookingServiceTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("BookingServiceTimeout must be positive, got: %s", cfg.BookingServiceTimeout))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_driver", cfg.StoreDriver,
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"postgres_dsn", redactURI(cfg.PostgresDSN),
		"port", cfg.Port,
		"log_file", cfg.LogFile,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"tx_max_attempts", cfg.TxMaxAttempts,
		"tx_retry_base_delay", cfg.TxRetryBaseDelay,
		"proposal_ttl", cfg.ProposalTTL,
		"auction_expiry_policy", cfg.AuctionExpiryPolicy,
		"sweep_interval", cfg.SweepInterval,
		"sweep_batch_size", cfg.SweepBatchSize,
		"sweeper_enabled", cfg.SweeperEnabled,
		"outbox_poll_interval", cfg.OutboxPollInterval,
		"outbox_batch_size", cfg.OutboxBatchSize,
		"outbox_max_attempts", cfg.OutboxMaxAttempts,
		"relay_enabled", cfg.RelayEnabled,
		"booking_service_url", cfg.BookingServiceURL,
		"booking_service_timeout", cfg.BookingServiceTimeout,
		"kafka_audit_topic", cfg.KafkaAuditTopic,
		"kafka_notification_topic", cfg.KafkaNotificationTopic,
		"kafka_booking_events_topic", cfg.KafkaBookingEventsTopic,
		"kafka_consumer_group", cfg.KafkaConsumerGroup,
		"metrics_enabled", cfg.MetricsEnabled,
	)
}

var credentialRegex = regexp.MustCompile(`^([a-z+]+://)[^:/@]+:[^@]+@`)

func redactURI(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
