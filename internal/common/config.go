package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Pipeline  PipelineConfig
	Prompt    PromptConfig
	Normalize NormalizeConfig
	LLM       LLMConfig
	Redis     RedisConfig
	OCR       OCRConfig
	Store     StoreConfig
	Source    SourceConfig
	Trigger   TriggerConfig
	Queue     QueueConfig
	Server    ServerConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

// PipelineConfig holds retry, backoff and deadline policy for one document.
type PipelineConfig struct {
	LLMMaxAttempts   int
	StoreMaxAttempts int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	DocumentDeadline time.Duration
	CallTimeout      time.Duration
	RetryOCR         bool
	OCRMaxAttempts   int
}

// PromptConfig bounds the OCR text embedded in a prompt.
type PromptConfig struct {
	MaxChars  int
	HeadLines int
	TailLines int
}

// NormalizeConfig holds defaults applied when model output is unusable.
type NormalizeConfig struct {
	DefaultCurrency   string
	LineItemTolerance float64
	MaxTotal          float64
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider     string // openai | gemini
	Model        string
	APIKey       string
	BaseURL      string
	GeminiAPIKey string
	Temperature  float32
	Timeout      time.Duration
	CacheTTL     time.Duration
}

// RedisConfig enables the LLM response cache when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract     string
	Language      string
	TessdataDir   string
	HeicConverter string
	DPI           int
	MaxPages      int
}

// StoreConfig holds record store configuration
type StoreConfig struct {
	Driver           string // postgres | sqlite | memory
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// SourceConfig selects where document bytes are fetched from.
type SourceConfig struct {
	Kind  string // fs | minio
	Root  string
	MinIO MinIOConfig
}

// MinIOConfig holds object storage settings for MinIO / S3-compatible backends.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// TriggerConfig holds the upstream event sources that feed the queue.
type TriggerConfig struct {
	Prefix        string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string
	WatchDirs     []string
	WatchDebounce time.Duration
	InitialScan   bool
}

type QueueConfig struct {
	Workers int
	Size    int
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
	HTTPAddr string
}

type LogConfig struct {
	Level  string
	Format string // text | json
}

type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
	Protocol    string // grpc | http/protobuf
	SampleRatio float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			LLMMaxAttempts:   getEnvAsInt("PIPELINE_LLM_MAX_ATTEMPTS", 3),
			StoreMaxAttempts: getEnvAsInt("PIPELINE_STORE_MAX_ATTEMPTS", 3),
			BaseDelay:        getEnvAsDuration("PIPELINE_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:         getEnvAsDuration("PIPELINE_MAX_DELAY", 10*time.Second),
			DocumentDeadline: getEnvAsDuration("PIPELINE_DOCUMENT_DEADLINE", 300*time.Second),
			CallTimeout:      getEnvAsDuration("PIPELINE_CALL_TIMEOUT", 60*time.Second),
			RetryOCR:         getEnvAsBool("PIPELINE_RETRY_OCR", false),
			OCRMaxAttempts:   getEnvAsInt("PIPELINE_OCR_MAX_ATTEMPTS", 2),
		},
		Prompt: PromptConfig{
			MaxChars:  getEnvAsInt("PROMPT_MAX_CHARS", 6000),
			HeadLines: getEnvAsInt("PROMPT_HEAD_LINES", 40),
			TailLines: getEnvAsInt("PROMPT_TAIL_LINES", 20),
		},
		Normalize: NormalizeConfig{
			DefaultCurrency:   strings.ToUpper(getEnv("DEFAULT_CURRENCY", "GBP")),
			LineItemTolerance: getEnvAsFloat64("LINE_ITEM_TOLERANCE", 0.01),
			MaxTotal:          getEnvAsFloat64("MAX_TOTAL_AMOUNT", 1_000_000),
		},
		LLM: LLMConfig{
			Provider:     strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:        getEnv("LLM_MODEL", ""), // provider default when empty
			APIKey:       getEnv("OPENAI_API_KEY", ""),
			BaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			Temperature:  getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:      getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
			CacheTTL:     getEnvAsDuration("LLM_CACHE_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		OCR: OCRConfig{
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			Language:      getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			HeicConverter: getEnv("HEIC_CONVERTER", "magick"),
			DPI:           getEnvAsInt("OCR_DPI", 300),
			MaxPages:      getEnvAsInt("OCR_MAX_PAGES", 5),
		},
		Store: StoreConfig{
			Driver:           strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Source: SourceConfig{
			Kind: strings.ToLower(getEnv("SOURCE_KIND", "fs")),
			Root: getEnv("SOURCE_ROOT", "."),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", ""),
				UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
			},
		},
		Trigger: TriggerConfig{
			Prefix:        getEnv("TRIGGER_PREFIX", "receipts/"),
			KafkaBrokers:  getEnvAsList("KAFKA_BROKERS"),
			KafkaTopic:    getEnv("KAFKA_TOPIC", "receipt-uploads"),
			KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "receipt-analyzer"),
			WatchDirs:     getEnvAsList("WATCH_DIRS"),
			WatchDebounce: getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
			InitialScan:   getEnvAsBool("WATCH_INITIAL_SCAN", false),
		},
		Queue: QueueConfig{
			Workers: getEnvAsInt("QUEUE_WORKERS", 4),
			Size:    getEnvAsInt("QUEUE_SIZE", 256),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":9090"),
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     !getEnvAsBool("OTEL_SDK_DISABLED", true),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "receipt-analyzer"),
			Protocol:    getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			SampleRatio: getEnvAsFloat64("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping empty entries.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the loaded configuration for values the binaries cannot start with.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("PIPELINE_LLM_MAX_ATTEMPTS", c.Pipeline.LLMMaxAttempts, Positive)
	v.Field("PIPELINE_STORE_MAX_ATTEMPTS", c.Pipeline.StoreMaxAttempts, Positive)
	v.Field("PIPELINE_DOCUMENT_DEADLINE", c.Pipeline.DocumentDeadline, Positive)
	v.Field("PIPELINE_BASE_DELAY", c.Pipeline.BaseDelay, Positive)
	v.Field("PROMPT_MAX_CHARS", c.Prompt.MaxChars, Positive)
	v.Field("DEFAULT_CURRENCY", c.Normalize.DefaultCurrency, CurrencyCode)
	v.Field("MAX_TOTAL_AMOUNT", c.Normalize.MaxTotal, Positive)
	v.Field("LLM_PROVIDER", c.LLM.Provider, OneOf("openai", "gemini"))
	v.Field("STORE_DRIVER", c.Store.Driver, OneOf("postgres", "sqlite", "memory"))
	v.Field("SOURCE_KIND", c.Source.Kind, OneOf("fs", "minio"))
	v.Field("QUEUE_WORKERS", c.Queue.Workers, Positive)

	switch c.LLM.Provider {
	case "openai":
		v.Field("OPENAI_API_KEY", c.LLM.APIKey, Required)
	case "gemini":
		v.Field("GEMINI_API_KEY", c.LLM.GeminiAPIKey, Required)
	}
	if c.Store.Driver != "memory" {
		v.Field("DB_URL", c.Store.DSN, Required)
	}
	if c.Source.Kind == "minio" {
		v.Field("MINIO_ENDPOINT", c.Source.MinIO.Endpoint, Required)
		v.Field("MINIO_BUCKET", c.Source.MinIO.Bucket, Required)
	}

	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
