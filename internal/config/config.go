package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret string
	JWTExpiry time.Duration

	// Observability (optional)
	SentryDSN string

	// Storage (S3-compatible: MinIO, AWS S3, Cloudflare R2, DigitalOcean Spaces, etc.)
	// All S3 vars are optional at startup; an incomplete set leaves the
	// backend unconfigured and upload endpoints return 500.
	S3Region              string
	S3Bucket              string
	S3AccessKey           string
	S3SecretKey           string
	S3Endpoint            string        // Optional: for S3-compatible services
	PresignExpiryUpload   time.Duration // Expiry for presigned PUT URLs
	PresignExpiryDownload time.Duration // Expiry for presigned GET URLs

	// Local storage (used when STORAGE_DRIVER=local)
	StorageDriver string
	LocalBasePath string

	// Upload pipeline
	UploadMaxBytes    int64         // Request body cap for server-mediated uploads
	UploadConcurrency int64         // Concurrent upload bodies admitted at once
	ChunkSessionTTL   time.Duration // Idle chunk sessions older than this are evicted
	ThumbnailSize     int           // Square thumbnail edge in pixels
	ThumbnailQuality  int           // JPEG quality 1-100
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "Mediaflow"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envString("APP_URL", "http://localhost:8090"),
		Port:    envString("PORT", "8090"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/mediaflow.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"),

		// Security
		JWTSecret: envRequired("JWT_SECRET"),
		JWTExpiry: envDuration("JWT_EXPIRY", 168*time.Hour), // 7 days

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage
		S3Region:              envString("S3_REGION", ""),
		S3Bucket:              envString("S3_BUCKET", ""),
		S3AccessKey:           envString("S3_ACCESS_KEY", ""),
		S3SecretKey:           envString("S3_SECRET_KEY", ""),
		S3Endpoint:            envString("S3_ENDPOINT", ""), // Optional: for non-AWS providers
		PresignExpiryUpload:   envDuration("PRESIGN_EXPIRY_UPLOAD", 15*time.Minute),
		PresignExpiryDownload: envDuration("PRESIGN_EXPIRY_DOWNLOAD", 1*time.Hour),

		StorageDriver: envString("STORAGE_DRIVER", "s3"),
		LocalBasePath: envString("LOCAL_STORAGE_PATH", "./data/storage"),

		// Upload pipeline
		UploadMaxBytes:    envInt64("UPLOAD_MAX_BYTES", 2<<30), // 2GB
		UploadConcurrency: envInt64("UPLOAD_CONCURRENCY", 16),
		ChunkSessionTTL:   envDuration("CHUNK_SESSION_TTL", 30*time.Minute),
		ThumbnailSize:     envInt("THUMBNAIL_SIZE", 300),
		ThumbnailQuality:  envInt("THUMBNAIL_QUALITY", 85),
	}

	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// S3Configured reports whether every required S3 variable is present.
// An unconfigured backend degrades at request time, not at startup.
func (c *Config) S3Configured() bool {
	return c.S3Region != "" && c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// validateProduction warns about missing storage configuration in production.
// The server still starts; upload endpoints fail with 500 until configured.
func validateProduction(cfg *Config) {
	if cfg.StorageDriver == "s3" && !cfg.S3Configured() {
		slog.Warn("S3 storage not fully configured, upload endpoints will return errors",
			"hint", "set S3_REGION, S3_BUCKET, S3_ACCESS_KEY and S3_SECRET_KEY")
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
