// Package pubsub wraps the Cloud Pub/Sub v2 client for the ledger's
// publisher and consumer binaries.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

// Role decides which configured resources a client must be able to reach.
type Role int

const (
	// RolePublisher checks the event topics.
	RolePublisher Role = iota
	// RoleSubscriber checks the consumer subscriptions.
	RoleSubscriber
)

var (
	ErrProjectIDRequired = errors.New("gcp project id is required")
	errNothingConfigured = errors.New("no pubsub resources configured")
)

type Client struct {
	client *gcppubsub.Client
	names  resourceNames
	cfg    config.PubSubConfig
	role   Role

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

// NewClient connects to Pub/Sub and fails when a resource the role depends
// on is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, ErrProjectIDRequired
	}
	inner, err := gcppubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}

	c := &Client{
		client:     inner,
		names:      resourceNames{project: project},
		cfg:        cfg,
		role:       role,
		publishers: map[string]*gcppubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = inner.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "pubsub_resources", c.required()), "pubsub client ready")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func (c *Client) required() []string {
	var ids []string
	if c.role == RoleSubscriber {
		ids = nonBlank(c.cfg.OrdersSubscription, c.cfg.ReceiptsSubscription, c.cfg.AnalyticsSubscription)
	} else {
		ids = nonBlank(c.cfg.StockTopic, c.cfg.OrdersTopic, c.cfg.DocumentsTopic, c.cfg.AnalyticsTopic)
	}
	return ids
}

func nonBlank(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Ping checks that every resource the client's role depends on exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	ids := c.required()
	if len(ids) == 0 {
		return errNothingConfigured
	}
	for _, id := range ids {
		var err error
		if c.role == RoleSubscriber {
			_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx,
				&pubsubpb.GetSubscriptionRequest{Subscription: c.names.subscription(id)})
		} else {
			_, err = c.client.TopicAdminClient.GetTopic(ctx,
				&pubsubpb.GetTopicRequest{Topic: c.names.topic(id)})
		}
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("pubsub resource %q does not exist", id)
		case err != nil:
			return fmt.Errorf("check pubsub resource %q: %w", id, err)
		}
	}
	return nil
}

// Subscription returns a receiver for a subscription id or resource name.
func (c *Client) Subscription(id string) *gcppubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.names.subscription(id)
	if name == "" {
		return nil
	}
	return c.client.Subscriber(name)
}

func (c *Client) OrdersSubscription() *gcppubsub.Subscriber {
	return c.Subscription(c.cfg.OrdersSubscription)
}

func (c *Client) ReceiptsSubscription() *gcppubsub.Subscriber {
	return c.Subscription(c.cfg.ReceiptsSubscription)
}

func (c *Client) AnalyticsSubscription() *gcppubsub.Subscriber {
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns the shared publisher for a topic. Publishers batch in
// the background, so one is kept per topic until Close.
func (c *Client) Publisher(id string) *gcppubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.names.topic(id)
	if name == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.client.Publisher(name)
	c.publishers[name] = p
	return p
}

// Close flushes pending publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceNames expands short ids into fully qualified resource names.
type resourceNames struct {
	project string
}

func (r resourceNames) topic(id string) string { return r.qualify(id, "topics") }

func (r resourceNames) subscription(id string) string { return r.qualify(id, "subscriptions") }

func (r resourceNames) qualify(id, collection string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+collection+"/") {
		return id
	}
	if r.project == "" {
		return ""
	}
	return "projects/" + r.project + "/" + collection + "/" + id
}
