// Package infrastructure carries committed events to external systems
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"spinwheel/events"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const sourceService = "spinwheel"

// MapEventToSubject converts an event type to its NATS subject
func MapEventToSubject(eventType events.EventType) string {
	switch eventType {
	case events.EventTypeBalanceChange:
		return "spinwheel.users.balance_changed"
	}
	if name, ok := strings.CutPrefix(string(eventType), "wheel:"); ok {
		return "spinwheel.wheel." + name
	}
	return fmt.Sprintf("spinwheel.unknown.%s", strings.ReplaceAll(string(eventType), ":", "_"))
}

// EventEnvelope wraps every event published to NATS
type EventEnvelope struct {
	EventID       string           `json:"event_id"`
	EventType     events.EventType `json:"event_type"`
	Timestamp     time.Time        `json:"timestamp"`
	SourceService string           `json:"source_service"`
	Payload       json.RawMessage  `json:"payload"`
}

// messagePublisher is the part of *nats.Conn the publisher needs
type messagePublisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards committed events from the bus to NATS subjects
type NATSPublisher struct {
	conn  messagePublisher
	clock clockwork.Clock
}

func NewNATSPublisher(conn messagePublisher, clock clockwork.Clock) *NATSPublisher {
	return &NATSPublisher{conn: conn, clock: clock}
}

// Attach subscribes the publisher to every wheel event plus balance changes
func (p *NATSPublisher) Attach(bus *events.Bus) {
	bus.SubscribeOrdered(append([]events.EventType{events.EventTypeBalanceChange}, events.WheelEventTypes...), p.handle)
}

func (p *NATSPublisher) handle(ctx context.Context, event events.Event) {
	if err := p.Publish(event); err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to publish event to NATS")
	}
}

// Publish sends one event to its subject
func (p *NATSPublisher) Publish(event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope, err := json.Marshal(EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     event.Type(),
		Timestamp:     p.clock.Now().UTC(),
		SourceService: sourceService,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := MapEventToSubject(event.Type())
	if err := p.conn.Publish(subject, envelope); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"subject":   subject,
	}).Debug("Published event to NATS")
	return nil
}

// ConnectNATS opens a connection with reconnect handling and logrus hooks
func ConnectNATS(servers string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(sourceService),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			fields := log.Fields{"error": err}
			if sub != nil {
				fields["subject"] = sub.Subject
			}
			log.WithFields(fields).Error("NATS async error")
		}),
	}

	nc, err := nats.Connect(servers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.WithField("servers", servers).Info("Connected to NATS")
	return nc, nil
}
