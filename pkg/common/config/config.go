package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	RateLimitRPS   int
	RateLimitBurst int

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers        []string
	KafkaGroupID        string
	DatasetRequestTopic string
	DatasetEventTopic   string

	// Datasets
	DefinitionPath      string
	CodelistCatalogPath string
	DataSource          string
	DummyPopulationSize int
	DummySeed           uint64
	ResultCacheTTL      time.Duration
	MaxWorkers          int
	JobListLimit        int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8090"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 20),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "studydata"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "studydata"),
		PostgresDB:       getEnv("POSTGRES_DB", "studydata"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:        getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "studydata"),
		DatasetRequestTopic: getEnv("DATASET_REQUEST_TOPIC", "dataset-requests"),
		DatasetEventTopic:   getEnv("DATASET_EVENT_TOPIC", "dataset-events"),

		DefinitionPath:      getEnv("DATASET_DEFINITION_PATH", ""),
		CodelistCatalogPath: getEnv("CODELIST_CATALOG_PATH", ""),
		DataSource:          getEnv("DATASET_SOURCE", "dummy"),
		DummyPopulationSize: getIntEnv("DUMMY_POPULATION_SIZE", 10),
		DummySeed:           uint64(getIntEnv("DUMMY_SEED", 1)),
		ResultCacheTTL:      getDuration("RESULT_CACHE_TTL", 10*time.Minute),
		MaxWorkers:          getIntEnv("DATASET_MAX_WORKERS", 2),
		JobListLimit:        getIntEnv("DATASET_JOB_LIST_LIMIT", 50),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
