package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const webhookTimeout = 10 * time.Second

// WebhookSender posts each notification as JSON to a webhook URL.  With
// an empty URL it logs a warning and drops the message.
type WebhookSender struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

// NewWebhookSender returns a sender for url.  A nil client gets a default
// one with a ten second timeout.
func NewWebhookSender(url string, client *http.Client, log *zap.Logger) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookSender{url: url, client: client, log: log}
}

var _ Sender = (*WebhookSender)(nil)

func (s *WebhookSender) Send(ctx context.Context, n Notification) error {
	if s.url == "" {
		s.log.Warn("webhook URL not configured, skipping email notification", zap.String("to", n.To))
		return nil
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrDelivery, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error("send email notification", zap.String("to", n.To), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Error("webhook rejected email notification",
			zap.String("to", n.To), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: webhook returned %d", ErrDelivery, resp.StatusCode)
	}
	s.log.Info("email notification sent", zap.String("to", n.To))
	return nil
}
