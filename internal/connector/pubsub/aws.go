package pubsub

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// AWS publishes to an SNS topic.
type AWS struct {
	client   *sns.Client
	topicARN string
}

// NewAWS mirrors _connect_aws: build an SNS client from the supplied
// access key/secret/region, then resolve the topic ARN either directly
// from credentials or by listing topics for a name match.
func NewAWS(ctx context.Context, creds Credentials, topicName string) (*AWS, error) {
	region := creds.str("region")
	if region == "" {
		region = "us-east-1"
	}

	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(region))
	if ak, sk := creds.str("access_key_id"), creds.str("secret_access_key"); ak != "" && sk != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("aws sns config load failed: %w", err)
	}
	client := sns.NewFromConfig(cfg)

	topicARN := creds.str("topic_arn")
	if topicARN == "" {
		list, err := client.ListTopics(ctx, &sns.ListTopicsInput{})
		if err != nil {
			return nil, fmt.Errorf("aws sns list topics failed: %w", err)
		}
		for _, t := range list.Topics {
			arn := aws.ToString(t.TopicArn)
			if len(arn) >= len(topicName) && arn[len(arn)-len(topicName):] == topicName {
				topicARN = arn
				break
			}
		}
		if topicARN == "" {
			return nil, fmt.Errorf("aws sns topic %q not found", topicName)
		}
	}

	return &AWS{client: client, topicARN: topicARN}, nil
}

func (a *AWS) Publish(ctx context.Context, body []byte) error {
	message := string(body)
	_, err := a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("aws sns publish failed: %w", err)
	}
	return nil
}

func (a *AWS) Close(ctx context.Context) error { return nil }
