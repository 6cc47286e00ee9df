package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Pinecone   PineconeConfig
	Embedding  EmbeddingConfig
	Assembly   AssemblyAIConfig
	Processing ProcessingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	AllowedOrigins  []string
	ShutdownTimeout int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
	MinConns int
	Migrate  bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	PublicURL       string
	PresignExpiry   time.Duration
}

// PineconeConfig holds vector index configuration
type PineconeConfig struct {
	APIKey    string
	IndexHost string
	Dimension int
}

// EmbeddingConfig holds speaker embedding service configuration
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// AssemblyAIConfig holds transcription configuration
type AssemblyAIConfig struct {
	APIKey       string
	LanguageCode string
}

// ProcessingConfig holds ingest/reconciliation tuning
type ProcessingConfig struct {
	ReconcileInterval time.Duration
	FFmpegPath        string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8003"),
			Host:            getEnv("HOST", "0.0.0.0"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			AllowedOrigins:  []string{getEnv("ALLOWED_ORIGINS", "*")},
			ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "speaker_id"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 5),
			Migrate:  getEnvAsBool("DB_MIGRATE", false),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			BucketName:      getEnv("STORAGE_BUCKET", "speaker-id"),
			UseSSL:          getEnvAsBool("STORAGE_USE_SSL", false),
			PublicURL:       getEnv("STORAGE_PUBLIC_URL", ""),
			PresignExpiry:   getEnvAsDuration("STORAGE_PRESIGN_EXPIRY", "1h"),
		},
		Pinecone: PineconeConfig{
			APIKey:    getEnv("PINECONE_API_KEY", ""),
			IndexHost: getEnv("PINECONE_INDEX_HOST", ""),
			Dimension: getEnvAsInt("PINECONE_DIMENSION", 192),
		},
		Embedding: EmbeddingConfig{
			BaseURL: getEnv("EMBEDDING_SERVICE_URL", "http://localhost:8010"),
			APIKey:  getEnv("EMBEDDING_API_KEY", ""),
			Timeout: getEnvAsDuration("EMBEDDING_TIMEOUT", "60s"),
		},
		Assembly: AssemblyAIConfig{
			APIKey:       getEnv("ASSEMBLYAI_API_KEY", ""),
			LanguageCode: getEnv("ASSEMBLYAI_LANGUAGE", ""),
		},
		Processing: ProcessingConfig{
			ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", "0s"),
			FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		},
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.User == "" || c.Database.Host == "" || c.Database.Name == "" {
		return fmt.Errorf("database credentials not fully specified")
	}
	if c.Pinecone.APIKey != "" && c.Pinecone.IndexHost == "" {
		return fmt.Errorf("PINECONE_INDEX_HOST is required when PINECONE_API_KEY is set")
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}
