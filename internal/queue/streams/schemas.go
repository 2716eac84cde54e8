package streams

const (
	EventTicketsImported    = "tickets.imported"
	EventRunbookSynthesized = "runbook.synthesized"
	PayloadV1               = "v1"
)

// definition is the payload schema of one event version.
type definition struct {
	EventType string
	Version   string
	Schema    []byte
}

var baseDefinitions = []definition{
	{
		EventType: EventTicketsImported,
		Version:   PayloadV1,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["batch_id", "inserted", "updated", "skipped", "encoding"],
  "properties": {
    "batch_id": {"type": "string", "minLength": 1},
    "filename": {"type": "string"},
    "encoding": {"type": "string"},
    "inserted": {"type": "integer", "minimum": 0},
    "updated": {"type": "integer", "minimum": 0},
    "skipped": {"type": "integer", "minimum": 0},
    "classified": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": false
}`),
	},
	{
		EventType: EventRunbookSynthesized,
		Version:   PayloadV1,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["topic", "title", "outcome", "tickets_used"],
  "properties": {
    "topic": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "outcome": {"type": "string", "enum": ["parsed", "repaired", "fallback"]},
    "model": {"type": "string"},
    "tickets_used": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`),
	},
}
