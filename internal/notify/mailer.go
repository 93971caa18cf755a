package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/najdeno/internal/config"
)

const userAgent = "najdeno/1.0"

// ErrMailDisabled is returned by the mailer used when no webhook is configured.
var ErrMailDisabled = errors.New("mail delivery is not configured")

// Message is a plain-text mail.
type Message struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer builds a webhook mailer when cfg.WebhookURL is set and a mailer
// that always returns ErrMailDisabled otherwise.
func NewMailer(cfg config.Mail) Mailer {
	endpoint := strings.TrimSpace(cfg.WebhookURL)
	if endpoint == "" {
		return noopMailer{}
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &webhookMailer{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.Token),
		from:     strings.TrimSpace(cfg.From),
		client:   &http.Client{Timeout: timeout},
	}
}

// webhookMailer posts messages as JSON to a mail relay.
type webhookMailer struct {
	endpoint string
	token    string
	from     string
	client   *http.Client
}

func (m *webhookMailer) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = m.from
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mail webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, Message) error { return ErrMailDisabled }
