package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind is the closed set of gateway webhook event kinds the engine acts
// on. Anything else parses as EventUnknown and is ignored downstream.
type EventKind string

const (
	EventChargeSucceeded   EventKind = "charge_succeeded"
	EventChargeFailed      EventKind = "charge_failed"
	EventTransferSucceeded EventKind = "transfer_succeeded"
	EventTransferFailed    EventKind = "transfer_failed"
	EventUnknown           EventKind = "unknown"
)

// GatewayEvent is the validated form of an asynchronous gateway delivery.
// ObjectID refers to a payment intent for charge events and a transfer for
// transfer events.
type GatewayEvent struct {
	ID       string
	Type     string
	Kind     EventKind
	ObjectID string
	Raw      json.RawMessage
}

type gatewayEventEnvelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	ObjectID string `json:"object_id"`
}

// ParseGatewayEvent validates a raw webhook body at the boundary. Unknown
// event types are not an error; they surface as Kind == EventUnknown so the
// reconciler can log and skip them.
func ParseGatewayEvent(body []byte) (*GatewayEvent, error) {
	var env gatewayEventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed gateway event: %w", err)
	}
	if env.ID == "" {
		return nil, NewMissingRequiredFieldError("event id")
	}
	if env.Type == "" {
		return nil, NewMissingRequiredFieldError("event type")
	}

	kind := EventUnknown
	switch EventKind(env.Type) {
	case EventChargeSucceeded, EventChargeFailed, EventTransferSucceeded, EventTransferFailed:
		kind = EventKind(env.Type)
		if env.ObjectID == "" {
			return nil, NewMissingRequiredFieldError("event object_id")
		}
	}

	return &GatewayEvent{
		ID:       env.ID,
		Type:     env.Type,
		Kind:     kind,
		ObjectID: env.ObjectID,
		Raw:      json.RawMessage(body),
	}, nil
}
