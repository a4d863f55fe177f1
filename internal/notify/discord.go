package notify

import (
	"context"
	"fmt"
	"net/http"
)

// Discord caps message content at 2000 characters.
const discordMaxContent = 2000

// DiscordSender posts to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		username:   "polyarb",
		client:     &http.Client{Timeout: senderTimeout},
	}
}

type discordPayload struct {
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

// Send posts title in bold followed by message.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := fmt.Sprintf("**%s**\n```\n%s\n```", title, message)
	if len(content) > discordMaxContent {
		content = content[:discordMaxContent-7] + "...\n```"
	}
	if err := postJSON(ctx, d.client, d.webhookURL, discordPayload{Username: d.username, Content: content}); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name implements Sender.
func (d *DiscordSender) Name() string { return "discord" }
