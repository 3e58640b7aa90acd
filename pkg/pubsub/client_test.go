package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	c := &Client{project: "eventpass-dev"}
	assert.Equal(t, "projects/eventpass-dev/topics/domain", c.resourceName("topics", " domain "))
	assert.Equal(t, "projects/other/topics/x", c.resourceName("topics", "projects/other/topics/x"))
	assert.Equal(t, "projects/eventpass-dev/subscriptions/sub", c.resourceName("subscriptions", "sub"))
	assert.Equal(t, "projects/eventpass-dev/subscriptions/projects/other/topics/x", c.resourceName("subscriptions", "projects/other/topics/x"))
	assert.Empty(t, c.resourceName("topics", ""))
	assert.Empty(t, (&Client{}).resourceName("topics", "domain"))
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Empty(t, c.resourceName("topics", "domain"))
	assert.Nil(t, c.Publisher("domain"))
	assert.Nil(t, c.FulfillmentPublisher())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
}

func TestDescribeLookup(t *testing.T) {
	assert.NoError(t, describeLookup("topic", "domain", nil))
	assert.EqualError(t, describeLookup("topic", "domain", status.Error(codes.NotFound, "gone")), `pubsub: topic "domain" does not exist`)

	cause := status.Error(codes.PermissionDenied, "nope")
	err := describeLookup("subscription", "sub", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `checking subscription "sub"`)
}

func TestClientOptions(t *testing.T) {
	assert.Empty(t, clientOptions(config.GCPConfig{}))
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/secrets/key.json"}), 1)
}

func TestNonEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, nonEmpty(" a ", "", "  ", "b"))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{DomainTopic: "d"}, nil)
	require.True(t, errors.Is(err, errNoTopics))
}
