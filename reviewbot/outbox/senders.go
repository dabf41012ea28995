package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bww-mods/benchbot/reviewbot/platform"
)

// ModmailSender delivers messages to a community's moderators through the platform.
type ModmailSender struct {
	Client    platform.Client
	Community string
}

func (s *ModmailSender) Send(ctx context.Context, msg Message) error {
	subject, body := Render(msg, s.Client.Username())
	return s.Client.SendModmail(ctx, s.Community, subject, body)
}

// Render returns the subject and body moderators see. Relayed user messages name their sender.
func Render(msg Message, botName string) (string, string) {
	if msg.Class != ClassUser {
		return msg.Subject, msg.Body
	}
	subject := fmt.Sprintf("%s from u/%s", msg.Subject, msg.From)
	body := fmt.Sprintf("%s\n\n---\n\nThe above message was sent to u/%s by u/%s", msg.Body, botName, msg.From)
	return subject, body
}

// SlackSender posts messages to a Slack "incoming webhook", which must be already configured in the workspace.
type SlackSender struct {
	WebhookURL string
	BotName    string
	Client     *http.Client
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func (s *SlackSender) Send(ctx context.Context, msg Message) error {
	subject, body := Render(msg, s.BotName)
	payload, err := json.Marshal(SlackWebhookBody{Text: fmt.Sprintf("*%s*\n%s", subject, body)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(respBody) != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}
