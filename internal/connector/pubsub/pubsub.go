// Package pubsub implements the provider-specific publish paths for the
// cloud pub/sub target kind: GCP Cloud Pub/Sub, AWS SNS, and Azure Service
// Bus. Each provider satisfies the same narrow Publisher interface so the
// connector package's dispatcher never branches on provider beyond
// construction.
package pubsub

import "context"

// Publisher publishes one message and can be torn down.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
	Close(ctx context.Context) error
}

// Credentials is the provider-specific credential bag from
// PubSubConfig.credentials, kept as a raw map since its shape varies by
// provider (GCP service account info, AWS keys/region, Azure connection
// string).
type Credentials map[string]any

func (c Credentials) str(key string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
