package eventing

import (
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps an event payload with delivery metadata.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	Actor         string          `json:"actor,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta provides envelope overrides.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	Actor         string
	SchemaVersion int
}

// BuildEnvelope constructs an envelope from an event and metadata.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, errors.New("eventing: nil event")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	occurredAt := meta.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = occurredAtOf(event)
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	eventID := meta.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	correlationID := meta.CorrelationID
	if correlationID == "" {
		correlationID = eventID
	}
	schemaVersion := meta.SchemaVersion
	if schemaVersion == 0 {
		schemaVersion = 1
	}

	return Envelope{
		EventID:       eventID,
		EventType:     EventType(event),
		OccurredAt:    occurredAt.UTC(),
		CorrelationID: correlationID,
		Actor:         meta.Actor,
		SchemaVersion: schemaVersion,
		Payload:       payload,
	}, nil
}

func occurredAtOf(event any) time.Time {
	value := reflect.ValueOf(event)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return time.Time{}
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return time.Time{}
	}
	field := value.FieldByName("OccurredAt")
	if !field.IsValid() {
		return time.Time{}
	}
	if t, ok := field.Interface().(time.Time); ok {
		return t
	}
	return time.Time{}
}
