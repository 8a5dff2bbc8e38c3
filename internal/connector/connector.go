// Package connector adapts a target descriptor into a live outbound
// transport. Each kind validates its own config at construction time, the
// same contract connector_factory.py enforces by instantiating a Pydantic
// config model before handing it to the connector class.
package connector

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

// Connector is the uniform surface every target kind implements. A device
// simulator never branches on kind; it only calls these three methods.
type Connector interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, payload model.Payload) error
	Disconnect(ctx context.Context) error
	Kind() model.TargetKind
}

// ConnectionStatser is implemented by connectors that expose richer
// diagnostics than Connect/Send/Disconnect alone, currently only the
// WebSocket adapter's circuit-breaker-and-backoff state.
type ConnectionStatser interface {
	ConnectionStats() ConnectionStats
}

// ConnectionStats mirrors get_connection_stats from the original WebSocket
// connector: connected, circuit_state, retry_count, failure_count,
// last_failure_time, auto_reconnect_active.
type ConnectionStats struct {
	Connected           bool
	CircuitState        string
	RetryCount          int
	FailureCount        uint32
	LastFailure         string
	AutoReconnectActive bool
}

// New builds the Connector for desc, decoding and validating its
// kind-specific config before construction so a bad target definition fails
// immediately with ConfigInvalid rather than on first send.
func New(desc model.TargetDescriptor) (Connector, error) {
	switch desc.Kind {
	case model.TargetHTTP:
		cfg, err := decodeHTTPConfig(desc.Config)
		if err != nil {
			return nil, err
		}
		return NewHTTP(cfg), nil
	case model.TargetMQTT:
		cfg, err := decodeMQTTConfig(desc.Config)
		if err != nil {
			return nil, err
		}
		return NewMQTT(cfg), nil
	case model.TargetKafka:
		cfg, err := decodeKafkaConfig(desc.Config)
		if err != nil {
			return nil, err
		}
		return NewKafka(cfg)
	case model.TargetWebSocket:
		cfg, err := decodeWebSocketConfig(desc.Config)
		if err != nil {
			return nil, err
		}
		return NewWebSocket(cfg), nil
	case model.TargetFTP:
		cfg, err := decodeFTPConfig(desc.Config)
		if err != nil {
			return nil, err
		}
		return NewFTP(cfg), nil
	case model.TargetPubSub:
		cfg, err := decodePubSubConfig(desc.Config)
		if err != nil {
			return nil, err
		}
		return NewPubSub(cfg)
	default:
		return nil, simerrors.New(simerrors.ConfigInvalid, fmt.Sprintf("unsupported target kind %q", desc.Kind))
	}
}

// decodeInto maps a raw config blob into dst via mapstructure, wrapping any
// decode failure as ConfigInvalid.
func decodeInto(raw map[string]any, dst any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return simerrors.Wrap(simerrors.ConfigInvalid, "failed to build config decoder", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return simerrors.Wrap(simerrors.ConfigInvalid, "failed to decode target config", err)
	}
	return nil
}

func requireField(fields map[string]any, name string) error {
	if v, ok := fields[name]; !ok || v == nil || v == "" {
		return simerrors.New(simerrors.ConfigInvalid, fmt.Sprintf("missing required field %q", name))
	}
	return nil
}
