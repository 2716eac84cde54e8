package streams

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeGroupClient serves canned replies for the group commands and records
// what the consumer asked for.
type fakeGroupClient struct {
	createErr error
	created   []string

	reads   [][]redis.XStream
	readErr error
	readArg []*redis.XReadGroupArgs

	acked []string

	groups     []redis.XInfoGroup
	groupsErr  error
	pending    []redis.XPendingExt
	pendingErr error
	pendingArg []*redis.XPendingExtArgs
}

func (f *fakeGroupClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	f.created = append(f.created, stream+"/"+group+"@"+start)
	cmd := redis.NewStatusCmd(ctx)
	if f.createErr != nil {
		cmd.SetErr(f.createErr)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (f *fakeGroupClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.readArg = append(f.readArg, a)
	cmd := redis.NewXStreamSliceCmd(ctx)
	switch {
	case f.readErr != nil:
		cmd.SetErr(f.readErr)
	case len(f.reads) == 0:
		cmd.SetErr(redis.Nil)
	default:
		cmd.SetVal(f.reads[0])
		f.reads = f.reads[1:]
	}
	return cmd
}

func (f *fakeGroupClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.acked = append(f.acked, ids...)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeGroupClient) XInfoGroups(ctx context.Context, key string) *redis.XInfoGroupsCmd {
	cmd := redis.NewXInfoGroupsCmd(ctx, key)
	if f.groupsErr != nil {
		cmd.SetErr(f.groupsErr)
	} else {
		cmd.SetVal(f.groups)
	}
	return cmd
}

func (f *fakeGroupClient) XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd {
	f.pendingArg = append(f.pendingArg, a)
	cmd := redis.NewXPendingExtCmd(ctx)
	if f.pendingErr != nil {
		cmd.SetErr(f.pendingErr)
	} else {
		cmd.SetVal(f.pending)
	}
	return cmd
}

func entryFor(t *testing.T, id, eventType string, payload interface{}) redis.XMessage {
	t.Helper()
	raw, err := json.Marshal(envelopeFor(t, eventType, payload))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	// redis hands field values back as strings.
	return redis.XMessage{ID: id, Values: map[string]interface{}{envelopeField: string(raw)}}
}

func TestConsumerReadDecodesTypedEvents(t *testing.T) {
	fake := &fakeGroupClient{reads: [][]redis.XStream{{{
		Stream: "runbooker.events",
		Messages: []redis.XMessage{
			entryFor(t, "1-0", EventTicketsImported, TicketsImported{BatchID: "b-1", Encoding: "utf-8", Inserted: 3, Classified: 3}),
			entryFor(t, "2-0", EventRunbookSynthesized, RunbookSynthesized{Topic: "vpn_issue", Title: "VPN", Outcome: "repaired", TicketsUsed: 4}),
		},
	}}}}
	c := NewConsumer(fake, registry(t), "runbooker.events", "cli", "tail-1")
	msgs, err := c.Read(context.Background(), WithCount(10), WithBlock(time.Second))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	imported, ok := msgs[0].Event.(*TicketsImported)
	if !ok || imported.BatchID != "b-1" || imported.Inserted != 3 {
		t.Fatalf("unexpected first event %#v", msgs[0].Event)
	}
	synthesized, ok := msgs[1].Event.(*RunbookSynthesized)
	if !ok || synthesized.Topic != "vpn_issue" || synthesized.Outcome != "repaired" {
		t.Fatalf("unexpected second event %#v", msgs[1].Event)
	}
	args := fake.readArg[0]
	if args.Group != "cli" || args.Consumer != "tail-1" || args.Count != 10 || args.Block != time.Second {
		t.Fatalf("unexpected read args %+v", args)
	}
	if len(args.Streams) != 2 || args.Streams[0] != "runbooker.events" || args.Streams[1] != ">" {
		t.Fatalf("unexpected streams %v", args.Streams)
	}
	if len(fake.acked) != 0 {
		t.Fatalf("Read must not ack delivered messages, acked %v", fake.acked)
	}
}

func TestConsumerReadDropsAndAcksBadEntries(t *testing.T) {
	invalid := entryFor(t, "2-0", EventTicketsImported, map[string]int{"inserted": -1})
	unknown := entryFor(t, "3-0", "ticket.deleted", struct{}{})
	fake := &fakeGroupClient{reads: [][]redis.XStream{{{
		Stream: "s",
		Messages: []redis.XMessage{
			{ID: "1-0", Values: map[string]interface{}{"other": "x"}},
			invalid,
			unknown,
			entryFor(t, "4-0", EventTicketsImported, TicketsImported{BatchID: "b", Encoding: "utf-8"}),
		},
	}}}}
	c := NewConsumer(fake, registry(t), "s", "g", "n")
	msgs, err := c.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "4-0" {
		t.Fatalf("expected only 4-0 to survive, got %+v", msgs)
	}
	want := []string{"1-0", "2-0", "3-0"}
	if len(fake.acked) != len(want) {
		t.Fatalf("expected acks %v, got %v", want, fake.acked)
	}
	for i, id := range want {
		if fake.acked[i] != id {
			t.Fatalf("expected acks %v, got %v", want, fake.acked)
		}
	}
}

func TestConsumerReadEmptyAndErrors(t *testing.T) {
	fake := &fakeGroupClient{}
	c := NewConsumer(fake, registry(t), "s", "g", "n")
	msgs, err := c.Read(context.Background())
	if err != nil || msgs != nil {
		t.Fatalf("redis.Nil should read as empty, got %v %v", msgs, err)
	}
	fake.readErr = errors.New("connection reset")
	if _, err := c.Read(context.Background()); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := NewConsumer(fake, nil, "s", "", "n").Read(context.Background()); err == nil {
		t.Fatalf("expected error without a group")
	}
}

func TestConsumerEnsureGroup(t *testing.T) {
	fake := &fakeGroupClient{}
	c := NewConsumer(fake, nil, "s", "g", "n")
	if err := c.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	if len(fake.created) != 1 || fake.created[0] != "s/g@0" {
		t.Fatalf("unexpected create calls %v", fake.created)
	}
	fake.createErr = errors.New("BUSYGROUP Consumer Group name already exists")
	if err := c.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("existing group should not be an error: %v", err)
	}
	fake.createErr = errors.New("NOPERM")
	if err := c.EnsureGroup(context.Background()); err == nil {
		t.Fatalf("expected create error")
	}
}

func TestConsumerTailAcksHandledMessages(t *testing.T) {
	fake := &fakeGroupClient{reads: [][]redis.XStream{{{
		Stream: "s",
		Messages: []redis.XMessage{
			entryFor(t, "1-0", EventTicketsImported, TicketsImported{BatchID: "keep", Encoding: "utf-8"}),
			entryFor(t, "2-0", EventTicketsImported, TicketsImported{BatchID: "fail", Encoding: "utf-8"}),
		},
	}}}}
	c := NewConsumer(fake, registry(t), "s", "g", "n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []string
	err := c.Tail(ctx, func(m Message) error {
		ev := m.Event.(*TicketsImported)
		seen = append(seen, ev.BatchID)
		if len(seen) == 2 {
			cancel()
		}
		if ev.BatchID == "fail" {
			return errors.New("handler refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected both messages handled, got %v", seen)
	}
	if len(fake.acked) != 1 || fake.acked[0] != "1-0" {
		t.Fatalf("only the handled message should be acked, got %v", fake.acked)
	}
}
