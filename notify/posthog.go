package notify

import (
	"context"
	"encoding/json"

	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog/log"
)

const distinctID = "bullionwatch-scraper"

type posthogSink struct {
	client posthog.Client
}

// NewPostHog returns a sink backed by a PostHog project. Endpoint may be
// empty for the default cloud endpoint.
func NewPostHog(apiKey, endpoint string) (Sink, error) {
	cfg := posthog.Config{}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}

	client, err := posthog.NewWithConfig(apiKey, cfg)
	if err != nil {
		return nil, err
	}

	return &posthogSink{client: client}, nil
}

func (s *posthogSink) SendText(_ context.Context, message string) error {
	return s.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      "scraper.message",
		Properties: posthog.NewProperties().Set("message", message),
	})
}

func (s *posthogSink) SendStructured(_ context.Context, event string, payload any) error {
	return s.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: structuredProperties(event, payload),
	})
}

// structuredProperties flattens the payload one level so it lands as
// queryable properties rather than an opaque blob. A marshal failure is
// logged and the event goes out without properties.
func structuredProperties(event string, payload any) posthog.Properties {
	props := posthog.NewProperties()

	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("notification payload marshal failed")

		return props
	}

	var flat map[string]any
	if json.Unmarshal(data, &flat) == nil {
		for k, v := range flat {
			props = props.Set(k, v)
		}

		return props
	}

	return props.Set("payload", string(data))
}

func (s *posthogSink) Close() error {
	return s.client.Close()
}
