package connector

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

// KafkaConfig mirrors models/target.py's KafkaConfig, plus the key
// selection fields kafka_connector.py's _get_message_key reads.
type KafkaConfig struct {
	BootstrapServers string `mapstructure:"bootstrap_servers"`
	Topic            string `mapstructure:"topic"`
	SecurityProtocol string `mapstructure:"security_protocol"`
	SASLMechanism    string `mapstructure:"sasl_mechanism"`
	SASLUsername     string `mapstructure:"sasl_username"`
	SASLPassword     string `mapstructure:"sasl_password"`
	KeyStatic        string `mapstructure:"key_static"`
	KeyField         string `mapstructure:"key_field"`
	Partition        *int   `mapstructure:"partition"`
}

func decodeKafkaConfig(raw map[string]any) (KafkaConfig, error) {
	cfg := KafkaConfig{SecurityProtocol: "PLAINTEXT"}
	if err := decodeInto(raw, &cfg); err != nil {
		return KafkaConfig{}, err
	}
	for _, f := range []string{"bootstrap_servers", "topic"} {
		if err := requireField(raw, f); err != nil {
			return KafkaConfig{}, err
		}
	}
	if cfg.KeyStatic != "" && cfg.KeyField != "" {
		return KafkaConfig{}, simerrors.New(simerrors.ConfigInvalid, "kafka key_static and key_field are mutually exclusive")
	}
	return cfg, nil
}

// Kafka is the Connector for Apache Kafka, backed by segmentio/kafka-go.
type Kafka struct {
	cfg    KafkaConfig
	writer *kafka.Writer
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	brokers := strings.Split(cfg.BootstrapServers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}

	transport := &kafka.Transport{DialTimeout: 10 * time.Second}
	if cfg.SecurityProtocol != "" && cfg.SecurityProtocol != "PLAINTEXT" {
		if strings.Contains(cfg.SecurityProtocol, "SSL") {
			transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if cfg.SASLMechanism != "" {
			transport.SASL = plain.Mechanism{Username: cfg.SASLUsername, Password: cfg.SASLPassword}
		}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &pinnedPartitionBalancer{pinned: cfg.Partition, fallback: &kafka.LeastBytes{}},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Transport:    transport,
	}
	return &Kafka{cfg: cfg, writer: writer}, nil
}

// pinnedPartitionBalancer honors an operator-pinned partition: kafka.Writer
// always routes through its configured Balancer, so setting
// kafka.Message.Partition directly has no effect (it's overridden before the
// message is produced). When no partition is pinned it falls back to the
// writer's usual load-balancing strategy.
type pinnedPartitionBalancer struct {
	pinned   *int
	fallback kafka.Balancer
}

func (b *pinnedPartitionBalancer) Balance(msg kafka.Message, partitions ...int) int {
	if b.pinned != nil {
		return *b.pinned
	}
	return b.fallback.Balance(msg, partitions...)
}

func (k *Kafka) Kind() model.TargetKind { return model.TargetKafka }

// Connect is a no-op: kafka.Writer dials lazily on first WriteMessages.
func (k *Kafka) Connect(ctx context.Context) error { return nil }

func (k *Kafka) Send(ctx context.Context, payload model.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "failed to marshal kafka payload", err)
	}

	msg := kafka.Message{Value: body}
	if key := k.messageKey(payload); key != "" {
		msg.Key = []byte(key)
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := k.writer.WriteMessages(sendCtx, msg); err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "kafka write failed", err)
	}
	return nil
}

// messageKey applies key_static > key_field precedence, matching
// kafka_connector.py's _get_message_key.
func (k *Kafka) messageKey(payload model.Payload) string {
	if k.cfg.KeyStatic != "" {
		return k.cfg.KeyStatic
	}
	if k.cfg.KeyField != "" {
		if v, ok := payload[k.cfg.KeyField]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func (k *Kafka) Disconnect(ctx context.Context) error {
	return k.writer.Close()
}
