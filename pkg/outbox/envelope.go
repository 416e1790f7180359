package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ActorSystem   = "system"
	ActorCustomer = "customer"
	ActorAdmin    = "admin"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	AdminID *uuid.UUID `json:"adminId,omitempty"`
	Role    string     `json:"role"`
}

// SystemActor is used by scheduled sweeps.
func SystemActor() *ActorRef {
	return &ActorRef{Role: ActorSystem}
}

// CustomerActor is used for storefront-initiated changes.
func CustomerActor() *ActorRef {
	return &ActorRef{Role: ActorCustomer}
}

// AdminActor is used for operator actions.
func AdminActor(adminID uuid.UUID) *ActorRef {
	if adminID == uuid.Nil {
		return &ActorRef{Role: ActorAdmin}
	}
	id := adminID
	return &ActorRef{AdminID: &id, Role: ActorAdmin}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a published message body.
func DecodeEnvelope(data []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return PayloadEnvelope{}, err
	}
	return envelope, nil
}
