// Package redis provides Redis-based adapters for the mmk-jobs orchestrator.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/domain/model"
)

// EventHandler receives decoded lifecycle events. Returning an error stops the subscription.
type EventHandler func(ctx context.Context, evt model.JobEvent) error

// EventSubscriber consumes lifecycle events published by the progress cache.
type EventSubscriber struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewEventSubscriber creates a subscriber on core.EventsChannel.
func NewEventSubscriber(client redis.UniversalClient, logger *slog.Logger) *EventSubscriber {
	return NewEventSubscriberWithChannel(client, core.EventsChannel, logger)
}

// NewEventSubscriberWithChannel creates a subscriber on a custom channel.
func NewEventSubscriberWithChannel(client redis.UniversalClient, channel string, logger *slog.Logger) *EventSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSubscriber{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "event_subscriber"),
	}
}

// Run delivers events to fn until ctx is done or fn returns an error.
// Undecodable payloads are logged and skipped.
func (s *EventSubscriber) Run(ctx context.Context, fn EventHandler) error {
	if fn == nil {
		return errors.New("event handler is required")
	}

	sub := s.client.Subscribe(ctx, s.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			s.logger.DebugContext(ctx, "close subscription", "error", err)
		}
	}()

	// Receive blocks until the subscription is confirmed so no event published after Run
	// starts is missed.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt model.JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				s.logger.WarnContext(ctx, "skipping malformed job event", "error", err)
				continue
			}
			if err := fn(ctx, evt); err != nil {
				return err
			}
		}
	}
}
