package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumCache_NewChecksumCache(t *testing.T) {
	c := NewChecksumCache(0)

	require.NotNil(t, c)
	assert.Equal(t, DefaultChecksumHistory, c.limit)
	assert.Equal(t, 0, c.Len())
}

func TestChecksumCache_SetAndGet(t *testing.T) {
	c := NewChecksumCache(4)

	c.Set(10, 0xdeadbeef)

	got, ok := c.Get(10)
	require.True(t, ok, "expected frame 10 to be cached")
	assert.Equal(t, uint32(0xdeadbeef), got)

	_, ok = c.Get(11)
	assert.False(t, ok)
}

func TestChecksumCache_OverwriteKeepsSingleEntry(t *testing.T) {
	c := NewChecksumCache(2)

	c.Set(1, 100)
	c.Set(1, 200)
	c.Set(2, 300)

	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint32(200), got)
	assert.Equal(t, 2, c.Len())
}

func TestChecksumCache_EvictsOldest(t *testing.T) {
	c := NewChecksumCache(3)

	for f := int32(1); f <= 5; f++ {
		c.Set(f, uint32(f*10))
	}

	assert.Equal(t, 3, c.Len())
	for _, f := range []int32{1, 2} {
		_, ok := c.Get(f)
		assert.False(t, ok, "frame %d should be evicted", f)
	}
	for _, f := range []int32{3, 4, 5} {
		v, ok := c.Get(f)
		assert.True(t, ok, "frame %d should be cached", f)
		assert.Equal(t, uint32(f*10), v)
	}
}

func TestChecksumCache_Compare(t *testing.T) {
	c := NewChecksumCache(8)
	c.Set(7, 42)

	tests := []struct {
		name      string
		frame     int32
		remote    uint32
		wantLocal uint32
		wantMatch bool
		wantKnown bool
	}{
		{"match", 7, 42, 42, true, true},
		{"mismatch", 7, 43, 42, false, true},
		{"unknown frame", 8, 42, 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, match, known := c.Compare(tt.frame, tt.remote)
			assert.Equal(t, tt.wantLocal, local)
			assert.Equal(t, tt.wantMatch, match)
			assert.Equal(t, tt.wantKnown, known)
		})
	}
}

func TestChecksumCache_Reset(t *testing.T) {
	c := NewChecksumCache(8)
	c.Set(1, 1)
	c.Set(2, 2)

	c.Reset()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(3, 3)
	assert.Equal(t, 1, c.Len())
}

func TestChecksumCache_ConcurrentAccess(t *testing.T) {
	c := NewChecksumCache(64)
	var wg sync.WaitGroup

	for i := range 8 {
		wg.Add(1)
		go func(base int32) {
			defer wg.Done()
			for f := base; f < base+100; f++ {
				c.Set(f, uint32(f))
				c.Get(f)
				c.Compare(f, uint32(f))
			}
		}(int32(i * 100))
	}

	wg.Wait()
	assert.Equal(t, 64, c.Len())
}

func TestSafeCounter(t *testing.T) {
	counter := &SafeCounter{}

	assert.Equal(t, 0, counter.Value())

	counter.Inc()
	assert.Equal(t, 1, counter.Value())

	counter.Set(10)
	assert.Equal(t, 10, counter.Value())

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counter.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, 110, counter.Value())
}
