package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/krobus00/rebate-sync/internal/constant"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultRolloverCheckInterval = time.Second

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithLocation(loc *time.Location) Option {
	return func(c *Cache) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithCheckInterval(interval time.Duration) Option {
	return func(c *Cache) {
		if interval > 0 {
			c.checkInterval = interval
		}
	}
}

// Cache remembers which records were already forwarded today. It is cleared
// at midnight in its location and is never persisted.
type Cache struct {
	mu            sync.Mutex
	keys          map[string]struct{}
	now           func() time.Time
	loc           *time.Location
	day           string
	checkInterval time.Duration
}

func NewCache(opts ...Option) *Cache {
	c := &Cache{
		keys:          make(map[string]struct{}),
		now:           time.Now,
		loc:           time.Local,
		checkInterval: defaultRolloverCheckInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.day = c.today()

	return c
}

func (c *Cache) Has(exchange entity.ExchangeName, record entity.CommissionRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rolloverLocked()
	_, ok := c.keys[record.DedupKey(exchange)]

	return ok
}

func (c *Cache) Add(exchange entity.ExchangeName, record entity.CommissionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rolloverLocked()
	c.keys[record.DedupKey(exchange)] = struct{}{}
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.keys = make(map[string]struct{})
	c.day = c.today()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.keys)
}

// Run checks for the midnight boundary every check interval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.rolloverLocked()
			c.mu.Unlock()
		}
	}
}

func (c *Cache) rolloverLocked() bool {
	today := c.today()
	if today == c.day {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"previous_day": c.day,
		"day":          today,
		"cleared":      len(c.keys),
	}).Info("dedup cache reset at day boundary")

	c.keys = make(map[string]struct{})
	c.day = today

	return true
}

func (c *Cache) today() string {
	return c.now().In(c.loc).Format(constant.TradeDateLayout)
}
