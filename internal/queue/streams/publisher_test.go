package streams

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

type recordingAdder struct {
	args []*redis.XAddArgs
	err  error
}

func (r *recordingAdder) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	r.args = append(r.args, a)
	cmd := redis.NewStringCmd(ctx)
	if r.err != nil {
		cmd.SetErr(r.err)
	} else {
		cmd.SetVal("1700000000000-0")
	}
	return cmd
}

func TestPublishWrapsEnvelope(t *testing.T) {
	adder := &recordingAdder{}
	p := NewPublisher(adder, registry(t), "runbooker.events", 1000)
	id, err := p.Publish(context.Background(), EventRunbookSynthesized,
		RunbookSynthesized{Topic: "phishing", Title: "Phishing", Outcome: "parsed", TicketsUsed: 2})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id != "1700000000000-0" || len(adder.args) != 1 {
		t.Fatalf("unexpected publish result %q %d", id, len(adder.args))
	}
	args := adder.args[0]
	if args.Stream != "runbooker.events" || args.MaxLen != 1000 || !args.Approx {
		t.Fatalf("unexpected xadd args: %+v", args)
	}
	env, err := decodeEntry(args.Values.(map[string]interface{}))
	if err != nil {
		t.Fatalf("decodeEntry: %v", err)
	}
	if env.EventID == "" || env.EventType != EventRunbookSynthesized || env.PayloadVersion != PayloadV1 {
		t.Fatalf("envelope not populated: %+v", env)
	}
	ev, err := env.Event()
	if err != nil {
		t.Fatalf("Event: %v", err)
	}
	if rb, ok := ev.(*RunbookSynthesized); !ok || rb.Topic != "phishing" || rb.TicketsUsed != 2 {
		t.Fatalf("unexpected event %#v", ev)
	}
}

func TestPublishWithoutMaxLenDoesNotTrim(t *testing.T) {
	adder := &recordingAdder{}
	p := NewPublisher(adder, registry(t), "s", 0)
	if _, err := p.Publish(context.Background(), EventTicketsImported, TicketsImported{BatchID: "b", Encoding: "utf-8"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if adder.args[0].MaxLen != 0 || adder.args[0].Approx {
		t.Fatalf("unexpected trim args: %+v", adder.args[0])
	}
}

func TestPublishRejectsInvalidPayload(t *testing.T) {
	adder := &recordingAdder{}
	p := NewPublisher(adder, registry(t), "s", 0)
	_, err := p.Publish(context.Background(), EventTicketsImported, map[string]int{"inserted": 1})
	if err == nil {
		t.Fatalf("expected schema validation error")
	}
	if len(adder.args) != 0 {
		t.Fatalf("invalid payload must not reach redis")
	}
}

func TestStreamEmitterSwallowsErrors(t *testing.T) {
	adder := &recordingAdder{err: errors.New("connection refused")}
	e := NewStreamEmitter(NewPublisher(adder, registry(t), "s", 0))
	e.TicketsImported(context.Background(), TicketsImported{BatchID: "b", Encoding: "utf-8"})
	if len(adder.args) != 1 {
		t.Fatalf("expected one publish attempt, got %d", len(adder.args))
	}
}

func TestDecodeEntryRequiresEveryField(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"missing field": {"other": "x"},
		"wrong type":    {envelopeField: 42},
		"bad json":      {envelopeField: "{"},
		"no timestamp":  {envelopeField: `{"event_id":"1","event_type":"x","payload_version":"v1","data":{}}`},
		"no data":       {envelopeField: `{"event_id":"1","event_type":"x","payload_version":"v1","occurred_at":"2024-05-01T10:00:00Z"}`},
	}
	for name, values := range cases {
		if _, err := decodeEntry(values); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	env, err := decodeEntry(map[string]interface{}{
		envelopeField: `{"event_id":"1","event_type":"x","payload_version":"v1","occurred_at":"2024-05-01T10:00:00Z","data":{}}`,
	})
	if err != nil || env.EventID != "1" {
		t.Fatalf("expected valid envelope, got %+v %v", env, err)
	}
	if _, err := env.Event(); err == nil {
		t.Fatalf("unknown event type should not decode")
	}
}
