package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Storage ping timeout at startup
const StoragePingTimeout = 5 * time.Second

// Outbound email
const (
	NotifyTimeout       = 10 * time.Second
	NotifyDrainTimeout  = 15 * time.Second
	WebhookMaxBodyBytes = 64 << 10
)
