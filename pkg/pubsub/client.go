package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

// Client hands out publishers and subscribers for the single domain-events
// topic and its per-consumer subscriptions.
type Client struct {
	client  *gcppubsub.Client
	project string
	names   config.PubSubConfig
}

func NewClient(ctx context.Context, gcp config.GCPConfig, names config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	client, err := gcppubsub.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "gcp_project", project), "pubsub client initialized")
	}
	return &Client{client: client, project: project, names: names}, nil
}

// CheckTopic fails when the domain topic is missing, so the outbox relay
// refuses to start instead of dead-lettering every row.
func (c *Client) CheckTopic(ctx context.Context) error {
	name := resourceName(c.project, "topics", c.names.DomainTopic)
	if name == "" {
		return errors.New("pubsub domain topic is not configured")
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	return existenceError("topic", name, err)
}

// CheckSubscription fails when the named subscription is missing.
func (c *Client) CheckSubscription(ctx context.Context, subscription string) error {
	name := resourceName(c.project, "subscriptions", subscription)
	if name == "" {
		return errors.New("pubsub subscription is not configured")
	}
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	return existenceError("subscription", name, err)
}

func existenceError(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %s does not exist", kind, name)
	default:
		return fmt.Errorf("get %s %s: %w", kind, name, err)
	}
}

// Subscriber accepts a short id or a full resource name.
func (c *Client) Subscriber(subscription string) *gcppubsub.Subscriber {
	name := resourceName(c.project, "subscriptions", subscription)
	if c.client == nil || name == "" {
		return nil
	}
	return c.client.Subscriber(name)
}

func (c *Client) NotificationSubscription() *gcppubsub.Subscriber {
	return c.Subscriber(c.names.NotificationSubscription)
}

func (c *Client) AnalyticsSubscription() *gcppubsub.Subscriber {
	return c.Subscriber(c.names.AnalyticsSubscription)
}

// Publisher accepts a short id or a full resource name.
func (c *Client) Publisher(topic string) *gcppubsub.Publisher {
	name := resourceName(c.project, "topics", topic)
	if c.client == nil || name == "" {
		return nil
	}
	return c.client.Publisher(name)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands id to projects/{project}/{collection}/{id}. Names that
// are already fully qualified pass through untouched.
func resourceName(project, collection, id string) string {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return ""
	case strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+collection+"/"):
		return id
	case project == "":
		return ""
	}
	return "projects/" + project + "/" + collection + "/" + id
}
