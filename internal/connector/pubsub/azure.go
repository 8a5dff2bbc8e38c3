package pubsub

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// Azure publishes to a Service Bus topic.
type Azure struct {
	client *azservicebus.Client
	sender *azservicebus.Sender
}

// NewAzure mirrors _connect_azure: build a Service Bus client from a
// connection string and open a sender for the configured topic.
func NewAzure(ctx context.Context, creds Credentials, topicName string) (*Azure, error) {
	connStr := creds.str("connection_string")
	if connStr == "" {
		return nil, fmt.Errorf("azure service bus requires connection_string in credentials")
	}

	client, err := azservicebus.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("azure service bus client init failed: %w", err)
	}
	sender, err := client.NewSender(topicName, nil)
	if err != nil {
		return nil, fmt.Errorf("azure service bus sender init failed: %w", err)
	}

	return &Azure{client: client, sender: sender}, nil
}

func (a *Azure) Publish(ctx context.Context, body []byte) error {
	msg := &azservicebus.Message{Body: body}
	if err := a.sender.SendMessage(ctx, msg, nil); err != nil {
		return fmt.Errorf("azure service bus publish failed: %w", err)
	}
	return nil
}

func (a *Azure) Close(ctx context.Context) error {
	if err := a.sender.Close(ctx); err != nil {
		return err
	}
	return a.client.Close(ctx)
}
