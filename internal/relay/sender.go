package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/hiddengems/hiddengems-backend/pkg/outbox/registry"
)

// Sender delivers one message to a topic and waits for the server ack.
type Sender interface {
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// PubSubSender publishes through cached Pub/Sub topic handles.
type PubSubSender struct {
	client publisherSource

	mu     sync.Mutex
	topics map[string]*gcppubsub.Publisher
}

func NewPubSubSender(client publisherSource) (*PubSubSender, error) {
	if client == nil {
		return nil, errors.New("pubsub client required")
	}
	return &PubSubSender{client: client, topics: map[string]*gcppubsub.Publisher{}}, nil
}

func (s *PubSubSender) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publisher(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %q", topic))
	}
	if _, err := pub.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (s *PubSubSender) publisher(topic string) *gcppubsub.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.topics[topic]; ok {
		return pub
	}
	pub := s.client.Publisher(topic)
	if pub != nil {
		s.topics[topic] = pub
	}
	return pub
}

// Stop flushes and releases every cached topic handle.
func (s *PubSubSender) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, pub := range s.topics {
		pub.Stop()
		delete(s.topics, name)
	}
}
