package trigger

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/roach88/procura/internal/logging"
)

// DefaultMaxOutstanding bounds the messages handled concurrently.
const DefaultMaxOutstanding = 10

// Subscriber pulls storage notifications from a Pub/Sub subscription.
type Subscriber struct {
	sub     *pubsub.Subscription
	handler *Handler
}

// NewSubscriber binds a subscription of client to h.
func NewSubscriber(client *pubsub.Client, subscription string, h *Handler, maxOutstanding int) (*Subscriber, error) {
	if subscription == "" {
		return nil, errors.New("subscription name is required")
	}
	if maxOutstanding <= 0 {
		maxOutstanding = DefaultMaxOutstanding
	}
	sub := client.Subscription(subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	return &Subscriber{sub: sub, handler: h}, nil
}

// Run receives until ctx is done. A cancelled context is a clean stop.
func (s *Subscriber) Run(ctx context.Context) error {
	logging.FromContext(ctx).Info("subscriber started", "subscription", s.sub.ID())
	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.handler.Handle(ctx, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive from %s: %w", s.sub.ID(), err)
	}
	return nil
}

// NewClient opens a Pub/Sub client for project.
func NewClient(ctx context.Context, project string, opts ...option.ClientOption) (*pubsub.Client, error) {
	if project == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	c, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return c, nil
}
