package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubConfig selects the topic audit records are published to.
type PubSubConfig struct {
	ProjectID       string
	TopicID         string
	CredentialsFile string
	Endpoint        string
}

// PubSubSink publishes every record to a Pub/Sub topic and waits for the ack.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// OpenPubSubSink creates a client for cfg.ProjectID publishing to cfg.TopicID.
func OpenPubSubSink(ctx context.Context, cfg PubSubConfig) (*PubSubSink, error) {
	project := strings.TrimSpace(cfg.ProjectID)
	topicID := strings.TrimSpace(cfg.TopicID)
	if project == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}

	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = true

	return &PubSubSink{client: client, topic: topic}, nil
}

// Append publishes rec ordered by run id and blocks until the server accepts it.
func (s *PubSubSink) Append(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	res := s.topic.Publish(ctx, &pubsub.Message{
		Data:        payload,
		OrderingKey: rec.RunID,
		Attributes: map[string]string{
			"run_id": rec.RunID,
			"stage":  rec.Stage,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		s.topic.ResumePublish(rec.RunID)
		return fmt.Errorf("publish audit record: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes the client.
func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
