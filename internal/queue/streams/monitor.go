package streams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrGroupNotFound is returned when the stream has no such consumer group.
var ErrGroupNotFound = errors.New("consumer group not found")

// LagSource is the slice of the redis client a lag report needs.
type LagSource interface {
	XInfoGroups(ctx context.Context, key string) *redis.XInfoGroupsCmd
	XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd
}

// LagReport is how far one consumer group trails the event stream.
type LagReport struct {
	Stream     string
	Group      string
	Pending    int64
	Lag        int64
	Consumers  int64
	OldestIdle time.Duration
}

func (r LagReport) String() string {
	return fmt.Sprintf("%s/%s pending=%d lag=%d consumers=%d oldest_idle=%s",
		r.Stream, r.Group, r.Pending, r.Lag, r.Consumers, r.OldestIdle.Truncate(time.Millisecond))
}

// Lag reports on group's progress through stream. OldestIdle is only looked
// up when entries are pending.
func Lag(ctx context.Context, src LagSource, stream, group string) (LagReport, error) {
	if stream == "" || group == "" {
		return LagReport{}, errors.New("stream and group are required")
	}
	groups, err := src.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return LagReport{}, fmt.Errorf("xinfo groups %s: %w", stream, err)
	}
	report := LagReport{Stream: stream, Group: group}
	found := false
	for _, info := range groups {
		if info.Name == group {
			report.Pending = info.Pending
			report.Lag = info.Lag
			report.Consumers = info.Consumers
			found = true
			break
		}
	}
	if !found {
		return LagReport{}, fmt.Errorf("%s on %s: %w", group, stream, ErrGroupNotFound)
	}
	if report.Pending == 0 {
		return report, nil
	}
	pending, err := src.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return LagReport{}, fmt.Errorf("xpending %s: %w", stream, err)
	}
	if len(pending) > 0 {
		report.OldestIdle = pending[0].Idle
	}
	return report, nil
}
