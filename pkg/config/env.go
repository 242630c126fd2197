package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvBusinessTimeZone   = "BUSINESS_TIMEZONE"
	EnvSlotStepMin        = "SLOT_STEP_MIN"
	EnvSlotLockTTL        = "SLOT_LOCK_TTL"
	EnvDefaultDurationMin = "DEFAULT_APPOINTMENT_DURATION_MIN"

	EnvKafkaBrokers       = "KAFKA_BROKERS"
	EnvNotificationsTopic = "KAFKA_NOTIFICATIONS_TOPIC"
	EnvBillingTopic       = "KAFKA_BILLING_TOPIC"
)
