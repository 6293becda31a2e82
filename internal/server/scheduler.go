package server

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/curricula/internal/agent"
	"github.com/mohammad-safakhou/curricula/internal/session"
)

const janitorLockKey = "sched:lock:janitor"

// Janitor periodically reclaims per-session leftovers: idle turn locks in
// the engine, and cached state whose session row is gone (a delete whose
// redis cleanup was lost). Durable sessions are never pruned; they live
// until the user deletes them.
type Janitor struct {
	Store  session.Store
	Engine *agent.Engine
	Rdb    *redis.Client
	Cron   string
	Stop   chan struct{}
	Logger *log.Logger

	last time.Time
}

// Start runs the sweep loop until Stop is closed. The ticker is a minute so
// cron specs finer than hourly still fire close to schedule.
func (j *Janitor) Start() {
	j.last = time.Now()
	ticker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-j.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				if j.due(time.Now()) {
					j.sweep(context.Background())
				}
			}
		}
	}()
}

// due reports whether the cron schedule has fired since the last sweep and
// advances the marker when it has. An unparsable spec degrades to hourly.
func (j *Janitor) due(now time.Time) bool {
	spec := j.Cron
	if spec == "" {
		spec = "0 * * * *"
	}
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		if now.Sub(j.last) >= time.Hour {
			j.last = now
			return true
		}
		return false
	}
	if !expr.Next(j.last).After(now) {
		j.last = now
		return true
	}
	return false
}

// sweep does one pass. The redis lock keeps replicas from sweeping the same
// keys concurrently; without redis the lock-free engine prune still runs.
func (j *Janitor) sweep(ctx context.Context) {
	if j.Rdb != nil {
		ok, err := j.Rdb.SetNX(ctx, janitorLockKey, "1", 2*time.Minute).Result()
		if err != nil {
			j.logf("janitor lock: %v", err)
		} else if !ok {
			return
		}
	}

	if j.Engine != nil {
		if n := j.Engine.PruneIdleLocks(); n > 0 {
			j.logf("reclaimed %d idle session locks", n)
		}
	}
	if j.Rdb != nil && j.Store != nil {
		if n, err := j.sweepOrphans(ctx); err != nil {
			j.logf("orphan sweep: %v", err)
		} else if n > 0 {
			j.logf("dropped %d orphaned state keys", n)
		}
	}
}

// sweepOrphans walks the cached state keys and deletes the ones whose
// session no longer exists in the store.
func (j *Janitor) sweepOrphans(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		dropped int
	)
	for {
		keys, next, err := j.Rdb.Scan(ctx, cursor, session.StateKeyPrefix+"*", 100).Result()
		if err != nil {
			return dropped, err
		}
		for _, key := range keys {
			id := strings.TrimPrefix(key, session.StateKeyPrefix)
			_, err := j.Store.Get(ctx, id)
			if errors.Is(err, session.ErrNotFound) {
				if err := j.Rdb.Del(ctx, key).Err(); err == nil {
					dropped++
				}
			} else if err != nil {
				return dropped, err
			}
		}
		cursor = next
		if cursor == 0 {
			return dropped, nil
		}
	}
}

func (j *Janitor) logf(format string, args ...interface{}) {
	if j.Logger != nil {
		j.Logger.Printf(format, args...)
	}
}
