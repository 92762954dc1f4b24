package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/pos-inventory-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	tests := []struct {
		project string
		name    string
		want    string
	}{
		{"pos-prod", "pos-stock-events", "projects/pos-prod/topics/pos-stock-events"},
		{"pos-prod", " projects/other/topics/custom ", "projects/other/topics/custom"},
		{"", "pos-stock-events", ""},
		{"pos-prod", "  ", ""},
	}
	for _, tt := range tests {
		if got := topicResourceName(tt.project, tt.name); got != tt.want {
			t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tt.project, tt.name, got, tt.want)
		}
	}
}

func TestTopicNamesDeduplicates(t *testing.T) {
	names := topicNames(config.PubSubConfig{StockTopic: "events", PurchasingTopic: " events "})
	if len(names) != 1 || names[0] != "events" {
		t.Fatalf("expected a single topic, got %v", names)
	}
	if got := topicNames(config.PubSubConfig{}); len(got) != 0 {
		t.Fatalf("expected no topics, got %v", got)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
}

func TestNewClientRequiresTopics(t *testing.T) {
	gcp := config.GCPConfig{ProjectID: "pos-prod"}
	if _, err := NewClient(context.Background(), gcp, config.PubSubConfig{StockTopic: " "}, nil); err != errNoTopics {
		t.Fatalf("expected topic error, got %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("events") != nil {
		t.Fatalf("expected nil publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error for nil client")
	}
}
