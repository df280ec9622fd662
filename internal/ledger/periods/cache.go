package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through store for gate decisions. Entries are tagged with a
// per-company generation counter; bumping the generation on any calendar
// change orphans every cached decision at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) generation(ctx context.Context, companyID int64) (int64, error) {
	gen, err := c.client.Get(ctx, fmt.Sprintf("fiscal:%d:gen", companyID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return gen, nil
}

// Get returns a cached window for the date, if present.
func (c *Cache) Get(ctx context.Context, companyID int64, date time.Time) (PostingWindow, bool) {
	if c == nil {
		return PostingWindow{}, false
	}
	gen, err := c.generation(ctx, companyID)
	if err != nil {
		return PostingWindow{}, false
	}
	key := c.entryKey(companyID, gen, date)
	var yearID, periodID int64
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return PostingWindow{}, false
	}
	if _, err := fmt.Sscanf(raw, "%d:%d", &yearID, &periodID); err != nil {
		return PostingWindow{}, false
	}
	return PostingWindow{YearID: yearID, PeriodID: periodID}, true
}

// Put stores an allowed gate decision.
func (c *Cache) Put(ctx context.Context, companyID int64, date time.Time, window PostingWindow) {
	if c == nil {
		return
	}
	gen, err := c.generation(ctx, companyID)
	if err != nil {
		return
	}
	key := c.entryKey(companyID, gen, date)
	_ = c.client.Set(ctx, key, fmt.Sprintf("%d:%d", window.YearID, window.PeriodID), c.ttl).Err()
}

// Invalidate bumps the company generation, discarding all cached decisions.
func (c *Cache) Invalidate(ctx context.Context, companyID int64) {
	if c == nil {
		return
	}
	_ = c.client.Incr(ctx, fmt.Sprintf("fiscal:%d:gen", companyID)).Err()
}

func (c *Cache) entryKey(companyID, gen int64, date time.Time) string {
	return fmt.Sprintf("fiscal:%d:%d:%s", companyID, gen, date.Format("2006-01-02"))
}
