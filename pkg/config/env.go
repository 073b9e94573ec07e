package config

const (
	EnvStoreDriver = "STORE_DRIVER"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPostgresDSN = "POSTGRES_DSN"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
	EnvLogFile  = "LOG_FILE"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvTxMaxAttempts    = "TX_MAX_ATTEMPTS"
	EnvTxRetryBaseDelay = "TX_RETRY_BASE_DELAY"

	EnvProposalTTL         = "PROPOSAL_TTL"
	EnvAuctionExpiryPolicy = "AUCTION_EXPIRY_POLICY"

	EnvSweepInterval  = "SWEEP_INTERVAL"
	EnvSweepBatchSize = "SWEEP_BATCH_SIZE"
	EnvSweeperEnabled = "SWEEPER_ENABLED"

	EnvOutboxPollInterval = "OUTBOX_POLL_INTERVAL"
	EnvOutboxBatchSize    = "OUTBOX_BATCH_SIZE"
	EnvOutboxMaxAttempts  = "OUTBOX_MAX_ATTEMPTS"
	EnvRelayEnabled       = "RELAY_ENABLED"

	EnvBookingServiceURL     = "BOOKING_SERVICE_URL"
	EnvBookingServiceTimeout = "BOOKING_SERVICE_TIMEOUT"

	EnvKafkaAuditTopic         = "KAFKA_AUDIT_TOPIC"
	EnvKafkaNotificationTopic  = "KAFKA_NOTIFICATION_TOPIC"
	EnvKafkaBookingEventsTopic = "KAFKA_BOOKING_EVENTS_TOPIC"
	EnvKafkaConsumerGroup      = "KAFKA_CONSUMER_GROUP"
	EnvKafkaDLQTopic           = "KAFKA_DLQ_TOPIC"

	EnvMetricsEnabled = "METRICS_ENABLED"
)
