package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "treadline"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// All "today"/"by date" queries are normalized to this zone before
	// comparing; the shop operates in a single fixed business timezone.
	DefaultBusinessTimeZone = "America/New_York"

	DefaultSlotStepMin        = 15
	DefaultSlotLockTTL        = 10 * time.Second
	DefaultDurationMin        = 60
	DefaultPaginationLimit    = 100

	DefaultKafkaBrokers       = "localhost:9092"
	DefaultNotificationsTopic = "treadline.notifications"
	DefaultBillingTopic       = "treadline.billing"
)
