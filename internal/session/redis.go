package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateKeyPrefix namespaces cached engine state in redis. The janitor
// sweeps orphans under this prefix, so it is shared rather than private.
const StateKeyPrefix = "session:state:"

// StateKey returns the redis key caching the given session's state.
func StateKey(id string) string { return StateKeyPrefix + id }

// Cache layers a redis hot cache for engine state over a durable Store.
// State writes go through to the store and then refresh the cache; reads try
// the cache first. Redis trouble degrades to the store with a log line, it
// never fails a request. Everything except state access passes straight
// through.
type Cache struct {
	inner  Store
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCache wraps inner with a redis state cache. Entries expire after ttl so
// abandoned sessions age out of redis on their own.
func NewCache(inner Store, rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		inner:  inner,
		rdb:    rdb,
		ttl:    ttl,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}
}

func (c *Cache) Create(ctx context.Context, userID, clientID string) (Session, error) {
	return c.inner.Create(ctx, userID, clientID)
}

func (c *Cache) Get(ctx context.Context, id string) (Session, error) {
	return c.inner.Get(ctx, id)
}

func (c *Cache) List(ctx context.Context, f Filter) ([]Session, int, error) {
	return c.inner.List(ctx, f)
}

func (c *Cache) Update(ctx context.Context, id string, upd Update) error {
	return c.inner.Update(ctx, id, upd)
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, StateKey(id)).Err(); err != nil {
		c.logger.Printf("drop cached state %s: %v", id, err)
	}
	return nil
}

func (c *Cache) LoadState(ctx context.Context, id string) (State, error) {
	raw, err := c.rdb.Get(ctx, StateKey(id)).Bytes()
	if err == nil {
		var st State
		if err := json.Unmarshal(raw, &st); err == nil {
			return st, nil
		}
		// Corrupt cache entry: fall through to the store and rewrite it.
		c.logger.Printf("cached state %s unreadable, reloading from store", id)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Printf("state cache read %s: %v", id, err)
	}

	st, err := c.inner.LoadState(ctx, id)
	if err != nil {
		return State{}, err
	}
	c.fill(ctx, id, st)
	return st, nil
}

func (c *Cache) SaveState(ctx context.Context, id string, st State) error {
	if err := c.inner.SaveState(ctx, id, st); err != nil {
		return err
	}
	c.fill(ctx, id, st)
	return nil
}

func (c *Cache) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	return c.inner.AppendMessage(ctx, msg)
}

func (c *Cache) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	return c.inner.Messages(ctx, sessionID)
}

func (c *Cache) fill(ctx context.Context, id string, st State) {
	raw, err := json.Marshal(st)
	if err != nil {
		c.logger.Printf("encode state %s for cache: %v", id, err)
		return
	}
	if err := c.rdb.Set(ctx, StateKey(id), raw, c.ttl).Err(); err != nil {
		c.logger.Printf("state cache write %s: %v", id, err)
	}
}

// Connect opens and pings a redis client with the given settings.
func Connect(ctx context.Context, addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: timeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", addr, err)
	}
	return rdb, nil
}
