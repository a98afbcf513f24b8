package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"utility-billing/internal/observability/metrics"
)

// ErrEmptyURL is returned when the webhook has no target.
var ErrEmptyURL = errors.New("webhook notifier: empty url")

// WebhookNotifier posts reviewer notifications to an HTTP endpoint.
type WebhookNotifier struct {
	url        string
	client     *http.Client
	template   *Template
	maxElapsed time.Duration
}

type webhookPayload struct {
	MsgType string         `json:"msgtype"`
	Text    webhookText    `json:"text"`
	Reading FlaggedReading `json:"reading"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient overrides the default client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

// WithTemplate overrides the default message template.
func WithTemplate(tpl *Template) WebhookOption {
	return func(n *WebhookNotifier) {
		if tpl != nil {
			n.template = tpl
		}
	}
}

// WithRetryWindow bounds the total time spent retrying one message.
// Zero disables retries.
func WithRetryWindow(d time.Duration) WebhookOption {
	return func(n *WebhookNotifier) {
		if d >= 0 {
			n.maxElapsed = d
		}
	}
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string, opts ...WebhookOption) (*WebhookNotifier, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	tpl, err := NewTemplate("")
	if err != nil {
		return nil, err
	}
	n := &WebhookNotifier{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		template:   tpl,
		maxElapsed: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n, nil
}

// Notify sends msg, retrying transport errors and 5xx responses with exponential backoff.
// 4xx responses are not retried.
func (n *WebhookNotifier) Notify(ctx context.Context, msg FlaggedReading) (err error) {
	defer func() {
		if err != nil {
			metrics.IncNotify(metrics.ResultError)
			return
		}
		metrics.IncNotify(metrics.ResultSuccess)
	}()
	if n == nil || n.url == "" {
		return ErrEmptyURL
	}
	content, err := n.template.Render(msg)
	if err != nil {
		return err
	}
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: content},
		Reading: msg,
	})
	if err != nil {
		return err
	}

	send := func() error { return n.post(ctx, body) }
	if n.maxElapsed == 0 {
		return send()
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = n.maxElapsed
	return backoff.Retry(send, backoff.WithContext(policy, ctx))
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook notifier: status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("webhook notifier: status %d", resp.StatusCode))
	}
}
