package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("RABBITMQ_HOST", "rabbit")
	t.Setenv("RABBITMQ_EXCHANGE", "essence")
	t.Setenv("RABBITMQ_QUEUE", "essence-events")
	t.Setenv("RABBITMQ_ESSENCE_LINKED_ROUTING_KEY", "essence.linked")
	t.Setenv("RABBITMQ_ESSENCE_UNLINKED_ROUTING_KEY", "essence.unlinked")
	t.Setenv("RABBITMQ_OBJECT_DELETED_ROUTING_KEY", "object.deleted")
	t.Setenv("RABBITMQ_GET_METADATA_ROUTING_KEY", "get.metadata")
	t.Setenv("MEDIAHAVEN_HOST", "https://mh.example")
	t.Setenv("MEDIAHAVEN_USERNAME", "user")
	t.Setenv("MEDIAHAVEN_PASSWORD", "secret")
	t.Setenv("PID_URL", "https://pid.example")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.App.RequeueDelay)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Retry.Delay)
	assert.Equal(t, 2.0, cfg.Retry.Backoff)
	assert.Equal(t, 1, cfg.RabbitMQ.Prefetch)
	assert.Equal(t, 3*time.Second, cfg.RabbitMQ.ReconnectDelay)
	assert.Equal(t, "topic", cfg.RabbitMQ.ExchangeType)
	assert.Equal(t, 100, cfg.MediaHaven.PageSize)
	assert.Equal(t, TransportAMQP, cfg.Outbound.Transport)
	assert.Empty(t, cfg.Storage.Provider)
	assert.Empty(t, cfg.Tracing.Endpoint)
}

func TestLoadFromEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("RETRY_ATTEMPTS", "3")
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("OUTBOUND_TRANSPORT", "KAFKA")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_TOPIC", "metadata")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, TransportKafka, cfg.Outbound.Transport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "get.metadata", cfg.RabbitMQ.GetMetadataRoutingKey)
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("MEDIAHAVEN_HOST", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MEDIAHAVEN_HOST")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "zero attempts", env: map[string]string{"RETRY_ATTEMPTS": "0"}, want: "RETRY_ATTEMPTS"},
		{name: "shrinking backoff", env: map[string]string{"RETRY_BACKOFF": "0.5"}, want: "RETRY_BACKOFF"},
		{name: "zero prefetch", env: map[string]string{"RABBITMQ_PREFETCH": "0"}, want: "RABBITMQ_PREFETCH"},
		{name: "unknown transport", env: map[string]string{"OUTBOUND_TRANSPORT": "nats"}, want: "unknown OUTBOUND_TRANSPORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
