package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Slack posts messages to a channel through chat.postMessage.
type Slack struct {
	Token      string
	Channel    string
	Username   string
	IconEmoji  string
	HTTPClient *http.Client
}

type slackMessage struct {
	Channel   string `json:"channel"`
	IconEmoji string `json:"icon_emoji,omitempty"`
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Notify posts m as one chat message.
func (n *Slack) Notify(ctx context.Context, m Message) error {
	sm := &slackMessage{
		Channel:   n.Channel,
		IconEmoji: n.IconEmoji,
		Text:      m.text(),
		Username:  n.Username,
	}
	if err := n.postMessage(ctx, sm); err != nil {
		return xerrors.Errorf("slack postMessage failed: %w", err)
	}
	return nil
}

func (n *Slack) postMessage(ctx context.Context, m *slackMessage) error {
	l := log.Ctx(ctx)

	reqJSON, err := json.Marshal(m)
	if err != nil {
		return xerrors.Errorf("failed to marshal json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://slack.com/api/chat.postMessage", bytes.NewReader(reqJSON))
	if err != nil {
		return xerrors.Errorf("failed to build http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.Token)

	resp, err := httpClient(n.HTTPClient).Do(req)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Errorf("failed to read response body: %w", err)
	}
	l.Debug().Msgf("slack response: %s", body)

	if resp.StatusCode >= 400 {
		return xerrors.Errorf("slack request failed with status code %d (%s)", resp.StatusCode, body)
	}

	var sres slackResponse
	if err := json.Unmarshal(body, &sres); err != nil {
		return xerrors.Errorf("failed to unmarshal response body: %w", err)
	}
	if !sres.OK {
		return xerrors.Errorf("failed to send message: %s", sres.Error)
	}
	return nil
}

// Webhook posts messages to an incoming webhook.
type Webhook struct {
	URL        string
	HTTPClient *http.Client
}

// Notify posts m as the webhook's text payload.
func (n *Webhook) Notify(ctx context.Context, m Message) error {
	payload, err := json.Marshal(map[string]string{"text": m.text()})
	if err != nil {
		return xerrors.Errorf("failed to marshal json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(payload))
	if err != nil {
		return xerrors.Errorf("failed to build http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient(n.HTTPClient).Do(req)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return xerrors.Errorf("webhook request failed with status code %d (%s)", resp.StatusCode, body)
	}
	return nil
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
