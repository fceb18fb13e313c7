package preview

import (
	"fmt"
	"sync"
	"time"
)

// defaultCacheCapacity bounds the cache when no capacity is configured.
const defaultCacheCapacity = 50

// SourceKind records how a cache entry's thumbnail was obtained.
type SourceKind int

// Source kinds.
const (
	// SourceRaw means the thumbnail came from a RAW file processed
	// standalone (decoder capability or embedded-preview extraction).
	SourceRaw SourceKind = iota

	// SourceCompanion means a companion JPEG was decoded directly with
	// no RAW sibling seen.
	SourceCompanion

	// SourcePaired means the RAW and companion were matched inside the
	// pairing window; the thumbnail is companion-derived.
	SourcePaired
)

// String returns the lowercase kind name.
func (k SourceKind) String() string {
	switch k {
	case SourceCompanion:
		return "companion"
	case SourcePaired:
		return "paired"
	default:
		return "raw"
	}
}

// Entry is one displayable preview. Entries are immutable once stored:
// Thumbnail is never written after Put, so readers may hold the slice
// without copying.
type Entry struct {
	// LogicalID is the capture's base identifier (file name without
	// extension, shared by a RAW/companion pair).
	LogicalID string

	// Thumbnail is the ready-to-display JPEG with rotation baked in.
	Thumbnail []byte

	// RotationDegrees is the clockwise rotation applied at creation.
	RotationDegrees int

	// Source records how the thumbnail was obtained.
	Source SourceKind

	// InsertionSeq is the monotonic insertion sequence; the lowest
	// sequence is the oldest entry and is evicted first.
	InsertionSeq uint64

	// IngestedAt is when the entry was created.
	IngestedAt time.Time
}

// Meta is an Entry without its payload, for listings.
type Meta struct {
	LogicalID       string    `json:"logical_id"`
	RotationDegrees int       `json:"rotation_degrees"`
	Source          string    `json:"source"`
	InsertionSeq    uint64    `json:"insertion_seq"`
	IngestedAt      time.Time `json:"ingested_at"`
	Bytes           int       `json:"bytes"`
	Current         bool      `json:"current"`
}

// UpdateCallback is notified after an entry is stored or replaced.
type UpdateCallback func(logicalID string)

// Cache is the bounded, navigable preview store. Insertion order defines
// the navigation order; a cursor supports previous/next traversal with
// no wraparound at either boundary.
//
// Writes come from the ingestion pipeline; reads may come from any
// goroutine. Entries are value-copied out with their immutable payload
// shared, so no reader ever observes mutation.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]*Entry
	order    []string
	cursor   int
	seq      uint64

	onUpdated UpdateCallback
}

// NewCache creates a cache bounded to capacity entries. Zero or negative
// capacity selects the default.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*Entry, capacity),
		cursor:   -1,
	}
}

// SetOnUpdated registers a callback invoked after every Put. Must be set
// before the pipeline starts.
func (c *Cache) SetOnUpdated(fn UpdateCallback) {
	c.mu.Lock()
	c.onUpdated = fn
	c.mu.Unlock()
}

// Put stores an entry. An existing logical ID is replaced in place,
// keeping its navigation position and insertion sequence. A new entry
// appends to the navigation order and may evict the oldest entry to
// stay within capacity. The cursor belongs to navigation: data arrival
// never steals it, eviction adjusts it per evictOldestLocked, and the
// first entry into an empty cache initialises it.
func (c *Cache) Put(entry Entry) {
	c.mu.Lock()

	entry.IngestedAt = orNow(entry.IngestedAt)

	if existing, ok := c.entries[entry.LogicalID]; ok {
		entry.InsertionSeq = existing.InsertionSeq
		c.entries[entry.LogicalID] = &entry
		fn := c.onUpdated
		c.mu.Unlock()
		if fn != nil {
			fn(entry.LogicalID)
		}
		return
	}

	c.seq++
	entry.InsertionSeq = c.seq
	c.entries[entry.LogicalID] = &entry
	c.order = append(c.order, entry.LogicalID)

	if c.cursor < 0 {
		c.cursor = 0
	}

	if len(c.order) > c.capacity {
		c.evictOldestLocked()
	}

	fn := c.onUpdated
	c.mu.Unlock()
	if fn != nil {
		fn(entry.LogicalID)
	}
}

// evictOldestLocked removes the entry with the lowest insertion
// sequence, which is always the head of the order slice. The cursor
// tracks its target entry across the shift; if the target itself was
// evicted the cursor lands on the new oldest entry.
func (c *Cache) evictOldestLocked() {
	oldest := c.order[0]
	delete(c.entries, oldest)
	c.order = c.order[1:]

	if c.cursor > 0 {
		c.cursor--
	}
	if len(c.order) == 0 {
		c.cursor = -1
	} else if c.cursor >= len(c.order) {
		c.cursor = len(c.order) - 1
	}
}

// Get returns the entry for a logical ID.
func (c *Cache) Get(logicalID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[logicalID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Current returns the cursor target.
func (c *Cache) Current() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.atLocked(c.cursor)
}

// Next advances the cursor and returns the new target. At the newest
// entry it stays put and returns the current one; there is no
// wraparound.
func (c *Cache) Next() (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor >= 0 && c.cursor < len(c.order)-1 {
		c.cursor++
	}
	return c.atLocked(c.cursor)
}

// Previous moves the cursor back and returns the new target. At the
// oldest entry it stays put and returns the current one; there is no
// wraparound.
func (c *Cache) Previous() (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor > 0 {
		c.cursor--
	}
	return c.atLocked(c.cursor)
}

// Latest jumps the cursor to the newest entry and returns it. This is
// the "follow the shoot" action a viewer takes after browsing back.
func (c *Cache) Latest() (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) > 0 {
		c.cursor = len(c.order) - 1
	}
	return c.atLocked(c.cursor)
}

func (c *Cache) atLocked(idx int) (Entry, bool) {
	if idx < 0 || idx >= len(c.order) {
		return Entry{}, false
	}
	return *c.entries[c.order[idx]], true
}

// Len returns the entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Capacity returns the configured bound.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Snapshot returns listing metadata for every entry in navigation
// order. Payloads are not included.
func (c *Cache) Snapshot() []Meta {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metas := make([]Meta, 0, len(c.order))
	for i, id := range c.order {
		e := c.entries[id]
		metas = append(metas, Meta{
			LogicalID:       e.LogicalID,
			RotationDegrees: e.RotationDegrees,
			Source:          e.Source.String(),
			InsertionSeq:    e.InsertionSeq,
			IngestedAt:      e.IngestedAt,
			Bytes:           len(e.Thumbnail),
			Current:         i == c.cursor,
		})
	}
	return metas
}

// String describes the cache population for logging.
func (c *Cache) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("preview cache %d/%d entries", len(c.order), c.capacity)
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
