package cache

import (
	"sync"
)

// DefaultChecksumHistory is how many frames ChecksumCache keeps when no limit is given.
const DefaultChecksumHistory = 128

// ChecksumCache remembers the checksum computed for recent frames so a later
// run of the same frame (a rollback replay, or a remote peer's report) can be
// compared against it. Frames older than the history limit are forgotten.
type ChecksumCache struct {
	m       sync.Mutex
	limit   int
	entries map[int32]uint32
	order   []int32
}

func NewChecksumCache(limit int) *ChecksumCache {
	if limit <= 0 {
		limit = DefaultChecksumHistory
	}
	return &ChecksumCache{
		limit:   limit,
		entries: make(map[int32]uint32, limit),
	}
}

func (c *ChecksumCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.entries = make(map[int32]uint32, c.limit)
	c.order = c.order[:0]
}

// Set records the checksum for a frame, replacing an earlier value.
func (c *ChecksumCache) Set(frame int32, checksum uint32) {
	c.m.Lock()
	defer c.m.Unlock()
	if _, ok := c.entries[frame]; !ok {
		c.order = append(c.order, frame)
	}
	c.entries[frame] = checksum
	for len(c.order) > c.limit {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *ChecksumCache) Get(frame int32) (uint32, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	v, ok := c.entries[frame]
	return v, ok
}

// Compare reports whether remote matches the cached checksum for frame.
// known is false when the frame is not (or no longer) cached.
func (c *ChecksumCache) Compare(frame int32, remote uint32) (local uint32, match, known bool) {
	local, known = c.Get(frame)
	return local, known && local == remote, known
}

func (c *ChecksumCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.entries)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
