package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for the relay service.
type Config struct {
	App        AppConfig
	HTTP       HTTPConfig
	Kafka      KafkaConfig
	Storage    StorageConfig
	Tracing    TracingConfig
	Pipeline   PipelineConfig
	Dispatcher DispatcherConfig
	Ledger     LedgerConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"blobrelay"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxBodyBytes int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	DeadLetterTopic  string        `env:"KAFKA_DEAD_LETTER_TOPIC" envDefault:"blobrelay.dead-letter"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
}

type StorageConfig struct {
	Provider  string `env:"STORAGE_PROVIDER" envDefault:"minio"`
	Endpoint  string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=blobrelay"`
}

type PipelineConfig struct {
	DestContainer string        `env:"PIPELINE_DEST_CONTAINER" envDefault:"processed"`
	DestPrefix    string        `env:"PIPELINE_DEST_PREFIX" envDefault:"processed-"`
	RunTimeout    time.Duration `env:"PIPELINE_RUN_TIMEOUT" envDefault:"2m"`
}

type DispatcherConfig struct {
	Workers     int           `env:"DISPATCHER_WORKERS" envDefault:"8"`
	QueueSize   int           `env:"DISPATCHER_QUEUE_SIZE" envDefault:"256"`
	MaxAttempts int           `env:"DISPATCHER_RETRY_MAX_ATTEMPTS" envDefault:"5"`
	BackoffBase time.Duration `env:"DISPATCHER_RETRY_BACKOFF_BASE" envDefault:"500ms"`
	BackoffMax  time.Duration `env:"DISPATCHER_RETRY_BACKOFF_MAX" envDefault:"30s"`
	Jitter      float64       `env:"DISPATCHER_RETRY_JITTER" envDefault:"0.5"`
}

type LedgerConfig struct {
	TTL time.Duration `env:"LEDGER_TTL" envDefault:"24h"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
