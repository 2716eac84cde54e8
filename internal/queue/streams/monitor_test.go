package streams

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLagReportsConfiguredGroup(t *testing.T) {
	fake := &fakeGroupClient{
		groups: []redis.XInfoGroup{
			{Name: "other", Pending: 9, Lag: 9, Consumers: 1},
			{Name: "cli", Pending: 2, Lag: 5, Consumers: 3},
		},
		pending: []redis.XPendingExt{{ID: "1-0", Consumer: "tail-1", Idle: 90 * time.Second, RetryCount: 1}},
	}
	c := NewConsumer(fake, nil, "runbooker.events", "cli", "tail-1")
	report, err := c.Lag(context.Background())
	if err != nil {
		t.Fatalf("Lag: %v", err)
	}
	if report.Stream != "runbooker.events" || report.Group != "cli" {
		t.Fatalf("report not keyed by stream and group: %+v", report)
	}
	if report.Pending != 2 || report.Lag != 5 || report.Consumers != 3 || report.OldestIdle != 90*time.Second {
		t.Fatalf("unexpected report %+v", report)
	}
	args := fake.pendingArg[0]
	if args.Stream != "runbooker.events" || args.Group != "cli" || args.Count != 1 {
		t.Fatalf("unexpected pending args %+v", args)
	}
	if s := report.String(); !strings.Contains(s, "runbooker.events/cli") || !strings.Contains(s, "oldest_idle=1m30s") {
		t.Fatalf("unexpected report line %q", s)
	}
}

func TestLagSkipsPendingLookupWhenNothingPending(t *testing.T) {
	fake := &fakeGroupClient{groups: []redis.XInfoGroup{{Name: "cli", Lag: 0, Consumers: 1}}}
	report, err := Lag(context.Background(), fake, "s", "cli")
	if err != nil {
		t.Fatalf("Lag: %v", err)
	}
	if report.OldestIdle != 0 || len(fake.pendingArg) != 0 {
		t.Fatalf("pending should not be queried, got %+v %d", report, len(fake.pendingArg))
	}
}

func TestLagMissingGroup(t *testing.T) {
	fake := &fakeGroupClient{groups: []redis.XInfoGroup{{Name: "other"}}}
	_, err := Lag(context.Background(), fake, "s", "cli")
	if !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestLagErrors(t *testing.T) {
	if _, err := Lag(context.Background(), &fakeGroupClient{}, "", "cli"); err == nil {
		t.Fatalf("expected error without a stream")
	}
	fake := &fakeGroupClient{groupsErr: errors.New("ERR no such key")}
	if _, err := Lag(context.Background(), fake, "s", "cli"); err == nil {
		t.Fatalf("expected xinfo error")
	}
	fake = &fakeGroupClient{
		groups:     []redis.XInfoGroup{{Name: "cli", Pending: 1}},
		pendingErr: errors.New("timeout"),
	}
	if _, err := Lag(context.Background(), fake, "s", "cli"); err == nil {
		t.Fatalf("expected xpending error")
	}
}
