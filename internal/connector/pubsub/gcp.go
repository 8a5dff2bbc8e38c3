package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// GCP publishes to Google Cloud Pub/Sub.
type GCP struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewGCP mirrors _connect_gcp: build a client from the given service
// account info (or application default credentials when absent), then
// resolve the topic handle.
func NewGCP(ctx context.Context, creds Credentials, topicName string) (*GCP, error) {
	projectID := creds.str("project_id")
	if projectID == "" {
		return nil, fmt.Errorf("gcp pub/sub requires project_id in credentials")
	}

	var opts []option.ClientOption
	if sa := creds.str("service_account_info"); sa != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(sa)))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcp pub/sub client init failed: %w", err)
	}

	return &GCP{client: client, topic: client.Topic(topicName)}, nil
}

func (g *GCP) Publish(ctx context.Context, body []byte) error {
	result := g.topic.Publish(ctx, &pubsub.Message{Data: body})
	_, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("gcp pub/sub publish failed: %w", err)
	}
	return nil
}

func (g *GCP) Close(ctx context.Context) error {
	g.topic.Stop()
	return g.client.Close()
}
