package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/pkg/circuitbreaker"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventQualityAssessed EventType = "quality.assessed"
	EventQualityAdapted  EventType = "quality.adapted"
	EventSessionEnded    EventType = "session.ended"
)

const (
	queueSize      = 256
	publishTimeout = 2 * time.Second
)

// Event is the message published on the quality channel.
type Event struct {
	Type       EventType        `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	SessionID  domain.SessionID `json:"session_id"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// AdaptationPayload is the payload of a quality.adapted event.
type AdaptationPayload struct {
	Entry domain.AdaptationEntry `json:"entry"`
	State domain.AdaptationState `json:"state"`
}

// EventBus fans quality updates out to other instances over Redis pub/sub.
// Observer callbacks only enqueue; Run does the publishing, so a slow or
// failing Redis never stalls a monitor.
type EventBus struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.SugaredLogger
	clock      clock.Clock
	breaker    *circuitbreaker.CircuitBreaker

	queue   chan *Event
	dropped atomic.Uint64
}

var _ ports.QualityObserver = (*EventBus)(nil)

func NewEventBus(client *redis.Client, channel string, logger *zap.SugaredLogger, clk clock.Clock) *EventBus {
	if clk == nil {
		clk = clock.New()
	}
	eb := &EventBus{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     logger,
		clock:      clk,
		breaker:    circuitbreaker.New("redis-publish", circuitbreaker.DefaultConfig(), clk),
		queue:      make(chan *Event, queueSize),
	}
	eb.breaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		logger.Warnw("event bus circuit changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})
	return eb
}

func (eb *EventBus) InstanceID() string {
	return eb.instanceID
}

// Dropped counts events discarded because the queue was full.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}

func (eb *EventBus) OnAssessment(sessionID domain.SessionID, assessment domain.QualityAssessment) {
	eb.enqueue(EventQualityAssessed, sessionID, assessment)
}

func (eb *EventBus) OnAdaptation(sessionID domain.SessionID, entry domain.AdaptationEntry, state domain.AdaptationState) {
	eb.enqueue(EventQualityAdapted, sessionID, AdaptationPayload{Entry: entry, State: state})
}

func (eb *EventBus) enqueue(eventType EventType, sessionID domain.SessionID, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		eb.logger.Warnw("failed to marshal event payload", "type", eventType, "error", err)
		return
	}

	event := &Event{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: eb.clock.Now(),
		Payload:   data,
	}
	select {
	case eb.queue <- event:
	default:
		eb.dropped.Add(1)
	}
}

// Run publishes queued events until ctx is done.
func (eb *EventBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.queue:
			publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := eb.Publish(publishCtx, event)
			cancel()
			if err != nil && !errors.Is(err, circuitbreaker.ErrOpen) {
				eb.logger.Warnw("failed to publish event",
					"type", event.Type,
					"session_id", event.SessionID,
					"error", err,
				)
			}
		}
	}
}

// Publish stamps the event with this instance and sends it immediately.
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	if event.Timestamp.IsZero() {
		event.Timestamp = eb.clock.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = eb.breaker.Execute(ctx, func(ctx context.Context) error {
		return eb.client.Publish(ctx, eb.channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"session_id", event.SessionID,
	)
	return nil
}

// PublishSessionEnded announces that a session's monitor was removed.
func (eb *EventBus) PublishSessionEnded(ctx context.Context, sessionID domain.SessionID) error {
	return eb.Publish(ctx, &Event{
		Type:      EventSessionEnded,
		SessionID: sessionID,
	})
}

// Subscribe delivers events from other instances to handler until ctx is
// done. Events published by this instance are skipped.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}
