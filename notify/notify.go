// Package notify delivers operational messages (cycle reports, resource
// diagnostics) to an external sink. Delivery is fire-and-forget: a sink
// outage must never stall or crash the scrape loop, so callers go through
// the logged decorator which records failures and propagates nothing.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Sink is the outbound notification contract.
type Sink interface {
	SendText(ctx context.Context, message string) error
	SendStructured(ctx context.Context, event string, payload any) error
	Close() error
}

// NewFromEnv picks a sink from the environment: posthog when an API key
// is set, webhook when a URL is set, otherwise a no-op.
func NewFromEnv(posthogKey, posthogEndpoint, webhookURL string) Sink {
	switch {
	case posthogKey != "":
		sink, err := NewPostHog(posthogKey, posthogEndpoint)
		if err != nil {
			log.Warn().Err(err).Msg("posthog sink unavailable, notifications disabled")

			return NewNoop()
		}

		return sink
	case webhookURL != "":
		return NewWebhook(webhookURL)
	default:
		return NewNoop()
	}
}

type noopSink struct{}

// NewNoop returns a sink that discards everything.
func NewNoop() Sink {
	return noopSink{}
}

func (noopSink) SendText(context.Context, string) error { return nil }

func (noopSink) SendStructured(context.Context, string, any) error { return nil }

func (noopSink) Close() error { return nil }

type loggedSink struct {
	inner Sink
}

// NewLogged wraps a sink so every delivery failure is logged and
// swallowed. This is the variant handed to the scrape loop.
func NewLogged(inner Sink) Sink {
	return &loggedSink{inner: inner}
}

func (s *loggedSink) SendText(ctx context.Context, message string) error {
	if err := s.inner.SendText(ctx, message); err != nil {
		log.Warn().Err(err).Msg("notification text send failed")
	}

	return nil
}

func (s *loggedSink) SendStructured(ctx context.Context, event string, payload any) error {
	if err := s.inner.SendStructured(ctx, event, payload); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("notification event send failed")
	}

	return nil
}

func (s *loggedSink) Close() error {
	if err := s.inner.Close(); err != nil {
		log.Warn().Err(err).Msg("notification sink close failed")
	}

	return nil
}
