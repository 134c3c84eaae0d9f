package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns. Field names follow
// SPEC_FULL §6's named environment variables where the spec names one
// directly (BindAddr <- BIND_ADDR, etc.); the rest are the ambient and
// domain-stack knobs a production deployment needs.
type Config struct {
	BindAddr    string
	Environment string

	StoreURL  string // Redis URL backing the transcript/settings store
	VectorDir string // Postgres DSN backing the persistent VectorCache

	LogLevel    string
	CORSOrigins []string

	GCPProject        string
	GCPRegion         string
	VertexAILocation  string
	VertexAIModel     string
	DocAIProcessorID  string
	DocAILocation     string
	GCSBucketName     string
	PubSubTopic       string
	FirebaseProjectID string

	InternalAuthSecret string

	EmbeddingDimensions int
	ChunkMaxTokens      int
	ChunkOverlap        int

	TokenBudget        int
	HistoryTurnBudget  int
	MaxSources         int
	PerSourceLimit     int
	QueryDeadline      time.Duration
	PerSourceDeadline  time.Duration
	FirstTokenTimeout  time.Duration
	ShutdownGrace      time.Duration
	VectorCacheCap     int
	VectorCacheMinScore float64

	DatabaseMaxConns int
}

// Load reads configuration from environment variables. STORE_URL and
// VECTOR_DIR are required per spec.md §6's CLI/environment contract;
// GOOGLE_CLOUD_PROJECT is required because the LLMStreamer's google_gemini
// provider and the DocAI normalizer both need it. Missing required vars is
// exit code 1 (configuration error) at the caller.
func Load() (*Config, error) {
	storeURL := os.Getenv("STORE_URL")
	if storeURL == "" {
		return nil, fmt.Errorf("config.Load: STORE_URL is required")
	}
	vectorDir := os.Getenv("VECTOR_DIR")
	if vectorDir == "" {
		return nil, fmt.Errorf("config.Load: VECTOR_DIR is required")
	}
	gcpProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if gcpProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	cfg := &Config{
		BindAddr:    envStr("BIND_ADDR", ":8080"),
		Environment: envStr("ENVIRONMENT", "development"),

		StoreURL:  storeURL,
		VectorDir: vectorDir,

		LogLevel:    envStr("LOG_LEVEL", "info"),
		CORSOrigins: envList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		GCPProject:        gcpProject,
		GCPRegion:         envStr("GCP_REGION", "us-east4"),
		VertexAILocation:  envStr("VERTEX_AI_LOCATION", "global"),
		VertexAIModel:     envStr("VERTEX_AI_MODEL", "gemini-3-pro-preview"),
		DocAIProcessorID:  envStr("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocAILocation:     envStr("DOCUMENT_AI_LOCATION", "us"),
		GCSBucketName:     envStr("GCS_BUCKET_NAME", ""),
		PubSubTopic:       envStr("PUBSUB_CACHE_WRITE_TOPIC", "vectorcache-writes"),
		FirebaseProjectID: envStr("FIREBASE_PROJECT_ID", ""),

		InternalAuthSecret: envStr("INTERNAL_AUTH_SECRET", ""),

		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 384),
		ChunkMaxTokens:      envInt("CHUNK_MAX_TOKENS", 512),
		ChunkOverlap:        envInt("CHUNK_OVERLAP", 64),

		TokenBudget:         envInt("TOKEN_BUDGET", 4000),
		HistoryTurnBudget:   envInt("HISTORY_TURN_BUDGET", 6),
		MaxSources:          envInt("MAX_SOURCES", 6),
		PerSourceLimit:      envInt("PER_SOURCE_LIMIT", 10),
		QueryDeadline:       envDuration("QUERY_DEADLINE", 8*time.Second),
		PerSourceDeadline:   envDuration("PER_SOURCE_DEADLINE", 5*time.Second),
		FirstTokenTimeout:   envDuration("FIRST_TOKEN_TIMEOUT", 20*time.Second),
		ShutdownGrace:       envDuration("SHUTDOWN_GRACE", 200*time.Millisecond),
		VectorCacheCap:      envInt("VECTOR_CACHE_CAPACITY", 100000),
		VectorCacheMinScore: envFloat("VECTOR_CACHE_MIN_SCORE", 0.35),

		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),
	}

	if cfg.Environment != "development" && cfg.InternalAuthSecret == "" {
		return nil, fmt.Errorf("config.Load: INTERNAL_AUTH_SECRET is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
