package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentEnvelopeVersion is stamped on envelopes that do not name one.
const CurrentEnvelopeVersion = 1

// ActorRef identifies who produced the event.
type ActorRef struct {
	ActorID uuid.UUID `json:"actorId"`
	Role    string    `json:"role,omitempty"`
}

// PayloadEnvelope is the body of an outbox row and of the Pub/Sub message
// carrying it. Routing metadata travels in message attributes instead.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Seal marshals data into an envelope for eventID.
func Seal(eventID uuid.UUID, version int, occurredAt time.Time, actor *ActorRef, data any) (json.RawMessage, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	if version <= 0 {
		version = CurrentEnvelopeVersion
	}
	return json.Marshal(PayloadEnvelope{
		Version:    version,
		EventID:    eventID.String(),
		OccurredAt: occurredAt.UTC(),
		Actor:      actor,
		Data:       body,
	})
}

// Open decodes an envelope produced by Seal.
func Open(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}
	return env, nil
}
