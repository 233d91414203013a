// Package event is a small in-process pub/sub bus for engine
// notifications. Delivery is fire-and-forget: handlers must tolerate
// out-of-order delivery across topics, and a handler panic never reaches
// the publisher.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Meta carries standard information attached to every event.
type Meta struct {
	ID            string
	Timestamp     time.Time
	Source        string
	CorrelationID string
}

// Envelope is a published event: a topic plus its payload.
type Envelope struct {
	Topic   Topic
	Payload any
	Meta    Meta
}

// New builds an envelope with generated ID and current timestamp.
func New(topic Topic, payload any, source, correlationID string) Envelope {
	return Envelope{
		Topic:   topic,
		Payload: payload,
		Meta: Meta{
			ID:            uuid.NewString(),
			Timestamp:     time.Now(),
			Source:        source,
			CorrelationID: correlationID,
		},
	}
}
