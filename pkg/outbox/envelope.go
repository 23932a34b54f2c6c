package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/comanda-backend/pkg/types"
)

// EnvelopeVersion is written on every new row. Consumers reject higher versions.
const EnvelopeVersion = 1

// ActorRef names the staff member behind an event.
type ActorRef struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role,omitempty"`
}

// ActorFrom converts a domain actor into an envelope reference; system actors produce nil.
func ActorFrom(actor types.Actor) *ActorRef {
	if actor.IsSystem() {
		return nil
	}
	return &ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

// PayloadEnvelope is the JSON document stored in outbox_events.payload_json and
// published verbatim as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored row and checks the fields every consumer relies on.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > EnvelopeVersion {
		return PayloadEnvelope{}, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return PayloadEnvelope{}, fmt.Errorf("envelope %s has no data", env.EventID)
	}
	return env, nil
}
