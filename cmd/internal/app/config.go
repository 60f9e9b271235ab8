package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// RedisAddr enables the Redis-backed training leaderboard when set.
	RedisAddr string

	// NATSURL enables the NATS notification bus when set; empty keeps
	// notifications in-process.
	NATSURL string

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Websocket gateway knobs.
	WSWriteTimeout     time.Duration
	WSReadIdleTimeout  time.Duration
	WSSendQueueSize    int
	WSHeartbeatEvery   time.Duration
	WSHeartbeatTimeout time.Duration
	WSRateFrames       int
	WSRateWindow       time.Duration
	WSOriginRequired   bool
	WSAllowedOrigins   []string
	WSDevInsecure      bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("GCF_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("GCF_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("GCF_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("GCF_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("GCF_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("GCF_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("GCF_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("GCF_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("GCF_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("GCF_DB_MIN_CONNS", 0),

		RedisAddr: EnvString("GCF_REDIS_ADDR", ""),
		NATSURL:   EnvString("GCF_NATS_URL", ""),

		ReadinessRequireDB: EnvBool("GCF_READINESS_REQUIRE_DB", false),

		WSWriteTimeout:     EnvDuration("GCF_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadIdleTimeout:  EnvDuration("GCF_WS_READ_IDLE_TIMEOUT", 2*time.Minute),
		WSSendQueueSize:    EnvInt("GCF_WS_SEND_QUEUE", 256),
		WSHeartbeatEvery:   EnvDuration("GCF_WS_HEARTBEAT_INTERVAL", 25*time.Second),
		WSHeartbeatTimeout: EnvDuration("GCF_WS_HEARTBEAT_TIMEOUT", 5*time.Second),
		WSRateFrames:       EnvInt("GCF_WS_RATE_FRAMES", 120),
		WSRateWindow:       EnvDuration("GCF_WS_RATE_WINDOW", 10*time.Second),
		WSOriginRequired:   EnvBool("GCF_WS_ORIGIN_REQUIRED", true),
		WSAllowedOrigins:   EnvCSV("GCF_WS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),
		WSDevInsecure:      EnvBool("GCF_WS_DEV_INSECURE", false),
	}
}
