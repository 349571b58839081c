package realtime

import (
	"context"
	"encoding/json"

	"spinwheel/events"

	log "github.com/sirupsen/logrus"
)

// Envelope is the JSON frame sent to sessions for every wheel event
type Envelope struct {
	Event   events.EventType `json:"event"`
	WheelID int64            `json:"wheel_id"`
	Payload events.Event     `json:"payload"`
}

// Broadcaster forwards committed wheel events from the bus to the hub
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Attach subscribes the broadcaster to every wheel lifecycle event.
// Frames reach sessions in the order the events were emitted.
func (b *Broadcaster) Attach(bus *events.Bus) {
	bus.SubscribeOrdered(events.WheelEventTypes, b.handle)
}

func (b *Broadcaster) handle(ctx context.Context, event events.Event) {
	wheelEvent, ok := event.(events.WheelEvent)
	if !ok {
		return
	}

	data, err := json.Marshal(Envelope{
		Event:   event.Type(),
		WheelID: wheelEvent.Room(),
		Payload: event,
	})
	if err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to marshal wheel event")
		return
	}

	delivered := b.hub.Publish(wheelEvent.Room(), data)
	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"wheelID":   wheelEvent.Room(),
		"delivered": delivered,
	}).Debug("Broadcast wheel event")
}
