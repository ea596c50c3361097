package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubConfig holds configuration for the Pub/Sub dispatcher.
type PubSubConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger
}

// PubSubDispatcher publishes notifications to a Pub/Sub topic consumed by
// the push delivery service. The critical flag travels as a message
// attribute so the consumer can pick the delivery channel without decoding
// the payload.
type PubSubDispatcher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topicName string
	logger    zerolog.Logger
}

// NewPubSubDispatcher creates a Pub/Sub-backed dispatcher.
func NewPubSubDispatcher(ctx context.Context, cfg PubSubConfig) (*PubSubDispatcher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubDispatcher{
		client:    client,
		publisher: client.Publisher(cfg.TopicName),
		topicName: cfg.TopicName,
		logger:    cfg.Logger,
	}, nil
}

// Deliver publishes the notification and waits for the server ack.
func (d *PubSubDispatcher) Deliver(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	result := d.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"category": n.Category,
			"critical": strconv.FormatBool(n.Critical),
		},
	})

	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}

	d.logger.Debug().
		Str("message_id", id).
		Str("topic", d.topicName).
		Bool("critical", n.Critical).
		Msg("notification published")
	return nil
}

// Close stops the publisher and closes the client.
func (d *PubSubDispatcher) Close() error {
	d.publisher.Stop()
	return d.client.Close()
}

var _ Dispatcher = (*PubSubDispatcher)(nil)
