// Package social announces new datasets on Mastodon or Slack.
package social

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/hkloudou/odwatch/internal/model"
	"github.com/mattn/go-mastodon"
	"github.com/slack-go/slack"
)

// Poster publishes one status message
type Poster interface {
	Post(ctx context.Context, text string) error
}

// Message is the announcement text for a new dataset
func Message(rec model.Record) string {
	return fmt.Sprintf("🔢 New dataset: “%s” %s", rec.Name, rec.Permalink)
}

// MastodonConfig holds the app credentials
type MastodonConfig struct {
	Server       string
	ClientID     string
	ClientSecret string
	AccessToken  string
}

// MastodonPoster posts public statuses
type MastodonPoster struct {
	client *mastodon.Client
}

// NewMastodonPoster creates a poster for the given instance
func NewMastodonPoster(cfg MastodonConfig, hc *http.Client) (*MastodonPoster, error) {
	if cfg.Server == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("mastodon server and access token are required")
	}
	client := mastodon.NewClient(&mastodon.Config{
		Server:       cfg.Server,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AccessToken:  cfg.AccessToken,
	})
	if hc != nil {
		client.Client = *hc
	}
	return &MastodonPoster{client: client}, nil
}

func (p *MastodonPoster) Post(ctx context.Context, text string) error {
	if _, err := p.client.PostStatus(ctx, &mastodon.Toot{Status: text}); err != nil {
		return fmt.Errorf("failed to post status: %w", err)
	}
	return nil
}

// SlackPoster sends messages to an incoming webhook
type SlackPoster struct {
	webhookURL string
}

func NewSlackPoster(webhookURL string) (*SlackPoster, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("slack webhook url is required")
	}
	return &SlackPoster{webhookURL: webhookURL}, nil
}

func (p *SlackPoster) Post(ctx context.Context, text string) error {
	if err := slack.PostWebhookContext(ctx, p.webhookURL, &slack.WebhookMessage{Text: text}); err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	return nil
}

// RecordingPoster keeps posted messages in memory (dry runs and tests)
type RecordingPoster struct {
	mu       sync.Mutex
	Messages []string
}

func (p *RecordingPoster) Post(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, text)
	return nil
}

// Posted returns a copy of the messages so far
func (p *RecordingPoster) Posted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Messages...)
}
