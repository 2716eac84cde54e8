package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/runbooker/internal/synth"
	"github.com/mohammad-safakhou/runbooker/models"
)

// Refresher is the pipeline surface the scheduler drives.
type Refresher interface {
	StaleTopics(ctx context.Context) ([]models.Topic, error)
	Synthesize(ctx context.Context, topic models.Topic) (models.Runbook, error)
}

// Locker guards one topic refresh across replicas.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Scheduler re-synthesizes stale runbooks on a cron schedule.
type Scheduler struct {
	Pipeline Refresher
	Rdb      Locker
	Cron     string
	LockTTL  time.Duration
	Interval time.Duration
	Logger   *log.Logger

	last *time.Time
	now  func() time.Time
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.init()
	if _, err := cronexpr.Parse(s.Cron); err != nil {
		s.Logger.Printf("invalid refresh cron %q: %v; scheduler disabled", s.Cron, err)
		return
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func (s *Scheduler) init() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
}

// Tick refreshes every stale topic when the cron schedule is due.
func (s *Scheduler) Tick(ctx context.Context) int {
	s.init()
	now := time.Now()
	if s.now != nil {
		now = s.now()
	}
	if !isDue(s.Cron, s.last, now) {
		return 0
	}
	s.last = &now

	topics, err := s.Pipeline.StaleTopics(ctx)
	if err != nil {
		s.Logger.Printf("list stale topics: %v", err)
		return 0
	}
	refreshed := 0
	for _, topic := range topics {
		if !s.lock(ctx, topic) {
			continue
		}
		_, err := s.Pipeline.Synthesize(ctx, topic)
		s.unlock(ctx, topic)
		switch {
		case errors.Is(err, synth.ErrNoTickets):
			continue
		case err != nil:
			s.Logger.Printf("refresh %s: %v", topic, err)
			continue
		}
		refreshed++
	}
	if refreshed > 0 {
		s.Logger.Printf("refreshed %d/%d stale runbooks", refreshed, len(topics))
	}
	return refreshed
}

func (s *Scheduler) lockKey(topic models.Topic) string {
	return "runbooker:sched:lock:" + string(topic)
}

func (s *Scheduler) lock(ctx context.Context, topic models.Topic) bool {
	if s.Rdb == nil {
		return true
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ok, err := s.Rdb.SetNX(ctx, s.lockKey(topic), "1", ttl).Result()
	if err != nil {
		s.Logger.Printf("lock %s: %v", topic, err)
		return false
	}
	return ok
}

func (s *Scheduler) unlock(ctx context.Context, topic models.Topic) {
	if s.Rdb != nil {
		_ = s.Rdb.Del(ctx, s.lockKey(topic)).Err()
	}
}

// isDue reports whether cronSpec fires between last and now. A schedule that
// never ran is due immediately.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return false
	}
	if last == nil {
		return true
	}
	next := expr.Next(*last)
	return !next.IsZero() && !next.After(now)
}
