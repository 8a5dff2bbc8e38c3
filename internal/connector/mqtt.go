package connector

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

// mqttPublishTimeout bounds how long Send waits for a publish
// acknowledgement before reporting SendFailed.
const mqttPublishTimeout = 10 * time.Second

// MQTTConfig mirrors models/target.py's MQTTConfig.
type MQTTConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseTLS   bool   `mapstructure:"use_tls"`
	QoS      int    `mapstructure:"qos"`
}

func decodeMQTTConfig(raw map[string]any) (MQTTConfig, error) {
	cfg := MQTTConfig{Port: 1883, QoS: 0}
	if err := decodeInto(raw, &cfg); err != nil {
		return MQTTConfig{}, err
	}
	for _, f := range []string{"host", "topic"} {
		if err := requireField(raw, f); err != nil {
			return MQTTConfig{}, err
		}
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return MQTTConfig{}, simerrors.New(simerrors.ConfigInvalid, "mqtt port must be between 1 and 65535")
	}
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return MQTTConfig{}, simerrors.New(simerrors.ConfigInvalid, "mqtt qos must be 0, 1 or 2")
	}
	return cfg, nil
}

// MQTT is the Connector for MQTT brokers, backed by paho.mqtt.golang.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
}

func NewMQTT(cfg MQTTConfig) *MQTT {
	return &MQTT{cfg: cfg}
}

func (m *MQTT) Kind() model.TargetKind { return model.TargetMQTT }

func (m *MQTT) Connect(ctx context.Context) error {
	if m.client != nil && m.client.IsConnected() {
		return nil
	}

	broker := fmt.Sprintf("tcp://%s:%d", m.cfg.Host, m.cfg.Port)
	if m.cfg.UseTLS {
		broker = fmt.Sprintf("ssl://%s:%d", m.cfg.Host, m.cfg.Port)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(false).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Str("broker", broker).Str("topic", m.cfg.Topic).Msg("mqtt connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost")
		})

	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	if m.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return simerrors.New(simerrors.ConnectionFailed, "mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return simerrors.Wrap(simerrors.ConnectionFailed, "mqtt connect failed", err)
	}
	return nil
}

func (m *MQTT) Send(ctx context.Context, payload model.Payload) error {
	if m.client == nil || !m.client.IsConnected() {
		if err := m.Connect(ctx); err != nil {
			return err
		}
	}

	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "failed to marshal mqtt payload", err)
	}

	token := m.client.Publish(m.cfg.Topic, byte(m.cfg.QoS), false, body)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return simerrors.New(simerrors.SendFailed, "mqtt publish acknowledgement timed out")
	}
	if err := token.Error(); err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "mqtt publish failed", err)
	}
	return nil
}

func (m *MQTT) Disconnect(ctx context.Context) error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}
