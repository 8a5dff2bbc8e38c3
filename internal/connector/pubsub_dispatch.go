package connector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joluben/sigsim/internal/connector/pubsub"
	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

// PubSubConfig mirrors models/target.py's PubSubConfig.
type PubSubConfig struct {
	Provider    string         `mapstructure:"provider"`
	Topic       string         `mapstructure:"topic"`
	Credentials map[string]any `mapstructure:"credentials"`
}

func decodePubSubConfig(raw map[string]any) (PubSubConfig, error) {
	var cfg PubSubConfig
	if err := decodeInto(raw, &cfg); err != nil {
		return PubSubConfig{}, err
	}
	for _, f := range []string{"provider", "topic", "credentials"} {
		if err := requireField(raw, f); err != nil {
			return PubSubConfig{}, err
		}
	}
	switch cfg.Provider {
	case "gcp", "aws", "azure":
	default:
		return PubSubConfig{}, simerrors.New(simerrors.ConfigInvalid, fmt.Sprintf("pubsub provider must be one of gcp, aws, azure, got %q", cfg.Provider))
	}
	return cfg, nil
}

// PubSub is the Connector dispatching to a cloud provider's publisher.
// The provider itself is constructed lazily on Connect, since each one
// dials out to a live cloud API.
type PubSub struct {
	cfg       PubSubConfig
	publisher pubsub.Publisher
}

func NewPubSub(cfg PubSubConfig) (*PubSub, error) {
	return &PubSub{cfg: cfg}, nil
}

func (p *PubSub) Kind() model.TargetKind { return model.TargetPubSub }

func (p *PubSub) Connect(ctx context.Context) error {
	if p.publisher != nil {
		return nil
	}

	creds := pubsub.Credentials(p.cfg.Credentials)
	var publisher pubsub.Publisher
	var err error

	switch p.cfg.Provider {
	case "gcp":
		publisher, err = pubsub.NewGCP(ctx, creds, p.cfg.Topic)
	case "aws":
		publisher, err = pubsub.NewAWS(ctx, creds, p.cfg.Topic)
	case "azure":
		publisher, err = pubsub.NewAzure(ctx, creds, p.cfg.Topic)
	default:
		return simerrors.New(simerrors.ConfigInvalid, fmt.Sprintf("unsupported pub/sub provider %q", p.cfg.Provider))
	}
	if err != nil {
		return simerrors.Wrap(simerrors.ConnectionFailed, fmt.Sprintf("%s pub/sub connect failed", p.cfg.Provider), err)
	}
	p.publisher = publisher
	return nil
}

func (p *PubSub) Send(ctx context.Context, payload model.Payload) error {
	if p.publisher == nil {
		if err := p.Connect(ctx); err != nil {
			return err
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return simerrors.Wrap(simerrors.SendFailed, "failed to marshal pub/sub payload", err)
	}
	if err := p.publisher.Publish(ctx, body); err != nil {
		return simerrors.Wrap(simerrors.SendFailed, fmt.Sprintf("%s pub/sub publish failed", p.cfg.Provider), err)
	}
	return nil
}

func (p *PubSub) Disconnect(ctx context.Context) error {
	if p.publisher == nil {
		return nil
	}
	err := p.publisher.Close(ctx)
	p.publisher = nil
	return err
}
