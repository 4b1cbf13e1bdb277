package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	"github.com/angelmondragon/storefront/pkg/config"
)

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "proj"}

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"subscription id", c.subscriptionResourceName("sf-updates-1"), "projects/proj/subscriptions/sf-updates-1"},
		{"subscription full", c.subscriptionResourceName("projects/other/subscriptions/x"), "projects/other/subscriptions/x"},
		{"topic id", c.topicResourceName(" sf-order-updates "), "projects/proj/topics/sf-order-updates"},
		{"topic full", c.topicResourceName("projects/other/topics/y"), "projects/other/topics/y"},
		{"blank", c.topicResourceName(" "), ""},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, tc.got, tc.want)
		}
	}

	empty := &Client{}
	if got := empty.topicResourceName("t"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Subscription("x") != nil || c.Publisher("y") != nil {
		t.Fatal("expected nil handles from nil client")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{OrderUpdatesTopic: "t"}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil); err != errTopicRequired {
		t.Fatalf("expected topic error, got %v", err)
	}
}

func TestClientOptions(t *testing.T) {
	if got := clientOptions(config.GCPConfig{ProjectID: "p"}); len(got) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(got))
	}
	if got := clientOptions(config.GCPConfig{ProjectID: "p", CredentialsFile: "/secrets/sa.json"}); len(got) != 1 {
		t.Fatalf("expected credentials file option, got %d", len(got))
	}
	if got := clientOptions(config.GCPConfig{ProjectID: "p", Endpoint: "localhost:8085", CredentialsFile: "/x"}); len(got) != 3 {
		t.Fatalf("expected emulator options, got %d", len(got))
	}
}

func TestSubscriptionsRequireMessageOrdering(t *testing.T) {
	sub := orderedSubscription("projects/p/subscriptions/sf-updates-1", "projects/p/topics/sf-order-updates")
	if !sub.GetEnableMessageOrdering() {
		t.Fatal("created subscriptions must enable message ordering")
	}
	if sub.GetTopic() != "projects/p/topics/sf-order-updates" {
		t.Fatalf("unexpected topic %q", sub.GetTopic())
	}
	if err := checkOrdering("sf-updates-1", sub); err != nil {
		t.Fatalf("ordered subscription rejected: %v", err)
	}
	if err := checkOrdering("legacy", &pubsubpb.Subscription{Name: "projects/p/subscriptions/legacy"}); err == nil {
		t.Fatal("expected an unordered subscription to be rejected")
	}
}
