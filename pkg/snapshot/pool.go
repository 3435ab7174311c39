package snapshot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vectorwar/arena/pkg/arena"
)

var ErrPoolExhausted = errors.New("snapshot buffers exhausted")

// Buffer is one captured state image handed to the scheduler. It stays valid
// until passed back to Pool.Release.
type Buffer struct {
	Frame    int32
	Data     []byte
	Checksum uint32

	released bool
}

// Len returns the number of valid bytes in Data.
func (b *Buffer) Len() int { return len(b.Data) }

// Pool recycles fixed-size snapshot buffers and caps how many may be held by
// the scheduler at once. A rollback window of N frames needs about N+2.
type Pool struct {
	mu          sync.Mutex
	limit       int
	outstanding int
	free        []*Buffer
}

// NewPool returns a pool that allows at most limit outstanding buffers.
// A limit of 0 or less means unbounded.
func NewPool(limit int) *Pool {
	return &Pool{limit: limit}
}

func (p *Pool) get() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limit > 0 && p.outstanding >= p.limit {
		return nil, fmt.Errorf("%w: %d in use", ErrPoolExhausted, p.outstanding)
	}
	p.outstanding++

	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		b.released = false
		return b, nil
	}
	return &Buffer{Data: make([]byte, Size)}, nil
}

// Release returns a buffer to the pool. Releasing nil or an already released
// buffer is a no-op.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if b.released {
		return
	}
	b.released = true

	if p.outstanding > 0 {
		p.outstanding--
	}
	if cap(b.Data) < Size {
		return
	}
	b.Data = b.Data[:Size]
	b.Frame = 0
	b.Checksum = 0
	p.free = append(p.free, b)
}

// Outstanding reports how many buffers are currently held by callers.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Capture writes a's image into a pooled buffer and checksums it.
func (p *Pool) Capture(a *arena.Arena) (*Buffer, error) {
	b, err := p.get()
	if err != nil {
		return nil, err
	}
	if err := Encode(b.Data, a); err != nil {
		p.Release(b)
		return nil, err
	}
	b.Frame = a.FrameNumber
	b.Checksum = Fletcher32(b.Data)
	return b, nil
}

// Checksum returns the checksum a snapshot of a would carry, without
// touching the pool.
func Checksum(a *arena.Arena) uint32 {
	return Fletcher32(Marshal(a))
}
