package killswitch

import (
	"container/list"
	"sync"
	"time"
)

// ReplayCache rejects a command_id it has already seen. Entries persist for
// at least horizon before they become eligible for eviction (spec §3: "kill
// switch command IDs persist for at least the replay-cache horizon").
type ReplayCache struct {
	mu      sync.Mutex
	maxSize int
	horizon time.Duration
	now     func() time.Time

	order   *list.List
	entries map[string]*list.Element
}

type replayEntry struct {
	commandID string
	seenAt    time.Time
}

// NewReplayCache constructs a cache bounded to maxSize entries, each valid
// for at least horizon.
func NewReplayCache(maxSize int, horizon time.Duration) *ReplayCache {
	if maxSize <= 0 {
		maxSize = 100_000
	}
	return &ReplayCache{
		maxSize: maxSize,
		horizon: horizon,
		now:     func() time.Time { return time.Now().UTC() },
		order:   list.New(),
		entries: make(map[string]*list.Element, maxSize),
	}
}

// SeenBefore reports whether commandID was already recorded, and records it
// if not. It is the single gate against replay (spec §4.4 step 4).
func (c *ReplayCache) SeenBefore(commandID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[commandID]; ok {
		_ = el
		return true
	}

	el := c.order.PushFront(&replayEntry{commandID: commandID, seenAt: c.now()})
	c.entries[commandID] = el
	c.evictExpired()
	return false
}

// evictExpired drops entries older than horizon once the cache is over
// capacity, oldest first. Entries within horizon are never evicted even if
// over capacity, to preserve the replay-protection guarantee; callers must
// size maxSize for their expected command rate.
func (c *ReplayCache) evictExpired() {
	for c.order.Len() > c.maxSize {
		back := c.order.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*replayEntry)
		if c.now().Sub(entry.seenAt) < c.horizon {
			return
		}
		c.order.Remove(back)
		delete(c.entries, entry.commandID)
	}
}
