package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type webhookSink struct {
	url    string
	client *http.Client
}

// NewWebhook returns a sink that POSTs each message as a small JSON
// document to the configured URL.
func NewWebhook(url string) Sink {
	return &webhookSink{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *webhookSink) SendText(ctx context.Context, message string) error {
	return s.post(ctx, map[string]any{
		"type": "text",
		"text": message,
	})
}

func (s *webhookSink) SendStructured(ctx context.Context, event string, payload any) error {
	return s.post(ctx, map[string]any{
		"type":    "event",
		"event":   event,
		"payload": payload,
	})
}

func (s *webhookSink) post(ctx context.Context, body map[string]any) error {
	body["sent_at"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}

	return nil
}

func (s *webhookSink) Close() error { return nil }
