package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration of the essence event listener.
type Config struct {
	App        AppConfig
	HTTP       HTTPConfig
	RabbitMQ   RabbitMQConfig
	MediaHaven MediaHavenConfig
	PID        PIDConfig
	Retry      RetryConfig
	Outbound   OutboundConfig
	Kafka      KafkaConfig
	Storage    StorageConfig
	Tracing    TracingConfig
}

type AppConfig struct {
	Name         string        `env:"APP_NAME" envDefault:"essencelink"`
	Environment  string        `env:"APP_ENV" envDefault:"development"`
	Version      string        `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel     string        `env:"APP_LOG_LEVEL" envDefault:"info"`
	RequeueDelay time.Duration `env:"REQUEUE_DELAY" envDefault:"10s"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

type RabbitMQConfig struct {
	Host                      string        `env:"RABBITMQ_HOST,required,notEmpty"`
	Port                      int           `env:"RABBITMQ_PORT" envDefault:"5672"`
	Username                  string        `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	Password                  string        `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	VHost                     string        `env:"RABBITMQ_VHOST" envDefault:"/"`
	Exchange                  string        `env:"RABBITMQ_EXCHANGE,required,notEmpty"`
	ExchangeType              string        `env:"RABBITMQ_EXCHANGE_TYPE" envDefault:"topic"`
	Queue                     string        `env:"RABBITMQ_QUEUE,required,notEmpty"`
	Prefetch                  int           `env:"RABBITMQ_PREFETCH" envDefault:"1"`
	ReconnectDelay            time.Duration `env:"RABBITMQ_RECONNECT_DELAY" envDefault:"3s"`
	EssenceLinkedRoutingKey   string        `env:"RABBITMQ_ESSENCE_LINKED_ROUTING_KEY,required,notEmpty"`
	EssenceUnlinkedRoutingKey string        `env:"RABBITMQ_ESSENCE_UNLINKED_ROUTING_KEY,required,notEmpty"`
	ObjectDeletedRoutingKey   string        `env:"RABBITMQ_OBJECT_DELETED_ROUTING_KEY,required,notEmpty"`
	GetMetadataRoutingKey     string        `env:"RABBITMQ_GET_METADATA_ROUTING_KEY,required,notEmpty"`
}

type MediaHavenConfig struct {
	Host     string        `env:"MEDIAHAVEN_HOST,required,notEmpty"`
	Username string        `env:"MEDIAHAVEN_USERNAME,required,notEmpty"`
	Password string        `env:"MEDIAHAVEN_PASSWORD,required,notEmpty"`
	PageSize int           `env:"MEDIAHAVEN_PAGE_SIZE" envDefault:"100"`
	Timeout  time.Duration `env:"MEDIAHAVEN_TIMEOUT" envDefault:"0s"`
}

type PIDConfig struct {
	URL     string        `env:"PID_URL,required,notEmpty"`
	Timeout time.Duration `env:"PID_TIMEOUT" envDefault:"0s"`
}

type RetryConfig struct {
	Attempts int           `env:"RETRY_ATTEMPTS" envDefault:"5"`
	Delay    time.Duration `env:"RETRY_DELAY" envDefault:"1s"`
	Backoff  float64       `env:"RETRY_BACKOFF" envDefault:"2"`
}

type OutboundConfig struct {
	Transport string `env:"OUTBOUND_TRANSPORT" envDefault:"amqp"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic            string        `env:"KAFKA_TOPIC" envDefault:"essencelink.get-metadata"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"1"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"10ms"`
}

// StorageConfig enables the essence probe. An empty provider disables it.
type StorageConfig struct {
	Provider  string `env:"STORAGE_PROVIDER"`
	Endpoint  string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"STORAGE_ACCESS_KEY"`
	SecretKey string `env:"STORAGE_SECRET_KEY"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=essencelink"`
}

// Outbound transports.
const (
	TransportAMQP  = "amqp"
	TransportKafka = "kafka"
)

// Load parses environment variables into Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the rules env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_ATTEMPTS must be positive, got %d", c.Retry.Attempts))
	}
	if c.Retry.Backoff < 1 {
		errs = append(errs, fmt.Errorf("RETRY_BACKOFF must be at least 1, got %g", c.Retry.Backoff))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("RETRY_DELAY must not be negative, got %s", c.Retry.Delay))
	}
	if c.RabbitMQ.Prefetch < 1 {
		errs = append(errs, fmt.Errorf("RABBITMQ_PREFETCH must be positive, got %d", c.RabbitMQ.Prefetch))
	}
	c.Outbound.Transport = strings.ToLower(c.Outbound.Transport)
	switch c.Outbound.Transport {
	case TransportAMQP:
	case TransportKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS and KAFKA_TOPIC are required for the kafka transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown OUTBOUND_TRANSPORT %q", c.Outbound.Transport))
	}
	return errors.Join(errs...)
}
