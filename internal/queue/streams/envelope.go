package streams

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// envelopeField is the stream entry field holding the JSON envelope.
const envelopeField = "envelope"

var errNoEnvelope = errors.New("entry has no envelope field")

// Envelope wraps one pipeline event on the stream.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	PayloadVersion string          `json:"payload_version"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Data           json.RawMessage `json:"data"`
}

func newEnvelope(eventType string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		PayloadVersion: PayloadV1,
		OccurredAt:     time.Now().UTC(),
		Data:           data,
	}, nil
}

func (e Envelope) check() error {
	switch {
	case e.EventID == "":
		return errors.New("event_id is required")
	case e.EventType == "":
		return errors.New("event_type is required")
	case e.PayloadVersion == "":
		return errors.New("payload_version is required")
	case e.OccurredAt.IsZero():
		return errors.New("occurred_at is required")
	case len(e.Data) == 0:
		return errors.New("data is required")
	}
	return nil
}

// decodeEntry reads the envelope out of a stream entry's field map.
func decodeEntry(values map[string]interface{}) (Envelope, error) {
	var raw []byte
	switch v := values[envelopeField].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case nil:
		return Envelope{}, errNoEnvelope
	default:
		return Envelope{}, fmt.Errorf("envelope field has type %T", v)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.check(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Event decodes Data into *TicketsImported or *RunbookSynthesized.
func (e Envelope) Event() (interface{}, error) {
	var target interface{}
	switch e.EventType {
	case EventTicketsImported:
		target = &TicketsImported{}
	case EventRunbookSynthesized:
		target = &RunbookSynthesized{}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.EventType)
	}
	if err := json.Unmarshal(e.Data, target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.EventType, err)
	}
	return target, nil
}
