// Package notify posts operator messages to a Slack incoming webhook.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"liquidityreward/pkg/settlement"

	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

type Notifier struct {
	webhook string
	client  *http.Client
}

// New returns a notifier for webhook. An empty webhook only logs.
func New(webhook string) *Notifier {
	return &Notifier{webhook: webhook, client: &http.Client{Timeout: 10 * time.Second}}
}

// Notify posts text. Delivery failures are logged and returned but never fatal to callers.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if n == nil || n.webhook == "" {
		log.Info(text)
		log.Warn("SLACK_WEBHOOK is not set, skipping Slack notification.")
		return nil
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhook, n.client, &slack.WebhookMessage{Text: text}); err != nil {
		log.Errorf("failed to post slack notification: %v", err)
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

// SettlementSummary renders the end-of-run message for a settlement batch.
func SettlementSummary(result settlement.Result, label string) string {
	text := fmt.Sprintf("%d/%d payouts completed for %s.", result.Completed, result.Total, label)
	if result.Completed != result.Total {
		text += " Issues detected! <!here>"
	}
	return text
}

// PayoutLabel names a batch by token and chain.
func PayoutLabel(token string, chainID int64) string {
	return fmt.Sprintf("%s @ %d", token, chainID)
}
