// Package pubsub wraps the Pub/Sub v2 client with the topics this service
// publishes to.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("pubsub: gcp project id is required")
	errNoTopics          = errors.New("pubsub: domain and fulfillment topics are required")
	errNotInitialized    = errors.New("pubsub: client not initialized")
)

// Client caches one publisher per topic. Publishers batch in the background
// and are flushed by Close.
type Client struct {
	ps          *pubsub.Client
	project     string
	fulfillment string
	// resources are checked on start and by Ping.
	topics        []string
	subscriptions []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient fails fast when a configured topic or subscription is missing,
// so a misconfigured deploy never starts accepting checkouts.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topics := nonEmpty(cfg.DomainTopic, cfg.FulfillmentTopic)
	if len(topics) != 2 {
		return nil, errNoTopics
	}

	ps, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: new client: %w", err)
	}
	c := &Client{
		ps:            ps,
		project:       project,
		fulfillment:   strings.TrimSpace(cfg.FulfillmentTopic),
		topics:        topics,
		subscriptions: nonEmpty(cfg.DomainSubscription, cfg.FulfillmentSubscription),
		publishers:    make(map[string]*pubsub.Publisher),
	}
	if err := c.checkResources(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": project, "topics": topics}), "pubsub.connected")
	}
	return c, nil
}

// clientOptions prefers inline credentials, then a key file, then ambient
// application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func (c *Client) checkResources(ctx context.Context) error {
	for _, topic := range c.topics {
		_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.resourceName("topics", topic)})
		if err := describeLookup("topic", topic, err); err != nil {
			return err
		}
	}
	for _, sub := range c.subscriptions {
		_, err := c.ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.resourceName("subscriptions", sub)})
		if err := describeLookup("subscription", sub, err); err != nil {
			return err
		}
	}
	return nil
}

func describeLookup(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub: %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("pubsub: checking %s %q: %w", kind, name, err)
	}
}

// Publisher returns the cached publisher for a topic id or full resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	name := c.resourceName("topics", topic)
	if name == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.publishers[name]
	if !ok {
		pub = c.ps.Publisher(name)
		c.publishers[name] = pub
	}
	return pub
}

// FulfillmentPublisher publishes fulfillment requests for confirmed payments.
func (c *Client) FulfillmentPublisher() *pubsub.Publisher {
	if c == nil {
		return nil
	}
	return c.Publisher(c.fulfillment)
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errNotInitialized
	}
	return c.checkResources(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.ps.Close()
}

// resourceName expands a bare id to projects/<project>/<kind>/<id>. A name
// that is already a resource of kind is returned unchanged.
func (c *Client) resourceName(kind, name string) string {
	if c == nil {
		return ""
	}
	name = strings.TrimSpace(name)
	if name == "" || c.project == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	return "projects/" + c.project + "/" + kind + "/" + name
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
