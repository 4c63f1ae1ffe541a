package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int
	GenModel   string

	Port     string
	Env      string
	LogLevel string

	// Ingestion pipeline knobs.
	Workers           int
	MaxRetries        int
	TargetChunkSize   int
	OverlapFraction   float64
	EmbedBatchSize    int
	PollIntervalMS    int
	JobTimeoutSec     int
	ExtractTimeoutSec int

	// Query knobs.
	TopK            int
	RelevanceFloor  float64
	MaxContextChars int

	MaxUploadMB int
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "lectern-docs"),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 768),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),

		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Workers:           getEnvInt("INGEST_WORKERS", 3),
		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		TargetChunkSize:   getEnvInt("CHUNK_SIZE", 1000),
		OverlapFraction:   getEnvFloat("CHUNK_OVERLAP", 0.2),
		EmbedBatchSize:    getEnvInt("EMBED_BATCH_SIZE", 16),
		PollIntervalMS:    getEnvInt("QUEUE_POLL_MS", 500),
		JobTimeoutSec:     getEnvInt("JOB_TIMEOUT_SEC", 300),
		ExtractTimeoutSec: getEnvInt("EXTRACT_TIMEOUT_SEC", 120),

		TopK:            getEnvInt("QUERY_TOP_K", 5),
		RelevanceFloor:  getEnvFloat("RELEVANCE_FLOOR", 0.35),
		MaxContextChars: getEnvInt("MAX_CONTEXT_CHARS", 8000),

		MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 50),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}
