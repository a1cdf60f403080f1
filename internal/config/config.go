// Package config reads service configuration from the environment (with an
// optional .env file) and exposes it as typed values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the runtime configuration shared by the API server and worker.
type Config struct {
	Address       string
	PublicBaseURL string

	// MaxUploadBytes caps the HTTP request body. It sits above the per-file
	// validation limit so oversized files reach the validator and get a
	// proper message instead of a truncated read.
	MaxUploadBytes int64

	BlobBackend   string // "local" or "s3"
	LocalBlobDir  string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3UseSSL      bool
	S3Region      string
	S3Bucket      string
	SigningSecret []byte
	SignedURLTTL  time.Duration

	RecordBackend string // "mongo" or "postgres"
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	WorkerConcurrency int
}

const (
	defaultAddress     = ":8080"
	defaultBaseURL     = "http://localhost:8080"
	defaultMaxUpload   = 10 << 20 // twice the 5 MiB document limit
	defaultSignedTTL   = 15 * time.Minute
	defaultConcurrency = 2
)

// Load reads configuration, falling back to defaults suitable for local
// development. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Address:           readEnv("KYCGATE_ADDRESS", defaultAddress),
		PublicBaseURL:     readEnv("KYCGATE_PUBLIC_BASE_URL", defaultBaseURL),
		MaxUploadBytes:    parseInt64("KYCGATE_MAX_UPLOAD_BYTES", defaultMaxUpload),
		BlobBackend:       readEnv("KYCGATE_BLOB_BACKEND", "local"),
		LocalBlobDir:      readEnv("KYCGATE_BLOB_DIR", filepath.Join(os.TempDir(), "kycgate-blobs")),
		S3Endpoint:        readEnv("KYCGATE_S3_ENDPOINT", ""),
		S3AccessKey:       readEnv("KYCGATE_S3_ACCESS_KEY", ""),
		S3SecretKey:       readEnv("KYCGATE_S3_SECRET_KEY", ""),
		S3UseSSL:          parseBool("KYCGATE_S3_USE_SSL", false),
		S3Region:          readEnv("KYCGATE_S3_REGION", "us-east-1"),
		S3Bucket:          readEnv("KYCGATE_S3_BUCKET", "kycgate-documents"),
		SigningSecret:     parseSecret("KYCGATE_SIGNING_SECRET"),
		SignedURLTTL:      parseDuration("KYCGATE_SIGNED_TTL", defaultSignedTTL),
		RecordBackend:     readEnv("KYCGATE_RECORD_BACKEND", "mongo"),
		MongoURI:          readEnv("KYCGATE_MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:     readEnv("KYCGATE_MONGO_DATABASE", "kycgate"),
		DatabaseURL:       readEnv("KYCGATE_DATABASE_URL", ""),
		RedisAddr:         readEnv("KYCGATE_REDIS_ADDR", ""),
		RedisPassword:     readEnv("KYCGATE_REDIS_PASSWORD", ""),
		RedisDB:           parseInt("KYCGATE_REDIS_DB", 0),
		WorkerConcurrency: parseInt("KYCGATE_WORKER_CONCURRENCY", defaultConcurrency),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = defaultConcurrency
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	switch cfg.BlobBackend {
	case "local", "s3":
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
	switch cfg.RecordBackend {
	case "mongo", "postgres":
	default:
		return nil, fmt.Errorf("unknown record backend %q", cfg.RecordBackend)
	}
	if cfg.RecordBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("KYCGATE_DATABASE_URL is required for the postgres backend")
	}
	return cfg, nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
