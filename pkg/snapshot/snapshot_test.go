package snapshot

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorwar/arena/pkg/arena"
)

func playedArena(t *testing.T, frames int) *arena.Arena {
	t.Helper()
	a, err := arena.New(640, 480, 2)
	require.NoError(t, err)
	script := []arena.Input{
		arena.InputThrust | arena.InputFire,
		arena.InputRotateLeft | arena.InputFire,
		arena.InputBrake | arena.InputRotateRight,
	}
	for i := range frames {
		a.Advance([]arena.Input{script[i%len(script)], script[(i+1)%len(script)]}, 0)
	}
	return a
}

func TestSizeIsEven(t *testing.T) {
	assert.Equal(t, 4560, Size)
	assert.Zero(t, Size%2)
}

func TestRoundTrip(t *testing.T) {
	a := playedArena(t, 75)
	data := Marshal(a)

	restored, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, a.Equal(restored))
	assert.Equal(t, data, Marshal(restored))
}

func TestRestoreOverwritesAllState(t *testing.T) {
	saved := playedArena(t, 20)
	data := Marshal(saved)

	a := playedArena(t, 90)
	require.NoError(t, Restore(a, data))
	assert.True(t, a.Equal(saved))
	assert.Equal(t, int32(20), a.FrameNumber)
}

func TestRestoreThenReplayMatches(t *testing.T) {
	a := playedArena(t, 10)
	data := Marshal(a)
	inputs := []arena.Input{arena.InputFire | arena.InputThrust, arena.InputRotateRight}

	for range 30 {
		a.Advance(inputs, 0)
	}
	want := Checksum(a)

	require.NoError(t, Restore(a, data))
	for range 30 {
		a.Advance(inputs, 0)
	}
	assert.Equal(t, want, Checksum(a))
}

func TestRestoreRejectsBadImages(t *testing.T) {
	good := Marshal(playedArena(t, 5))

	withVersion := bytes.Clone(good)
	binary.LittleEndian.PutUint16(withVersion[4:], 99)

	withShips := bytes.Clone(good)
	binary.LittleEndian.PutUint32(withShips[headerSize+20:], 9)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrSizeMismatch},
		{"short", good[:Size-2], ErrSizeMismatch},
		{"long", append(bytes.Clone(good), 0, 0), ErrSizeMismatch},
		{"magic", append([]byte("XXXX"), good[4:]...), ErrBadMagic},
		{"version", withVersion, ErrUnsupportedVersion},
		{"ship count", withShips, ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := playedArena(t, 40)
			before := a.Clone()

			err := Restore(a, tt.data)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, a.Equal(before), "arena must be untouched")
		})
	}
}

func TestFletcher32KnownValues(t *testing.T) {
	ramp := make([]byte, 0, 1024)
	for range 4 {
		for i := range 256 {
			ramp = append(ramp, byte(i))
		}
	}

	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", nil, 0xffffffff},
		{"abcdef", []byte("abcdef"), 0x56502d2a},
		{"abcdefgh", []byte("abcdefgh"), 0xebe19591},
		{"odd byte ignored", []byte("abcdefg"), 0x56502d2a},
		{"multiple blocks", ramp, 0x1615ff00},
		{"high bit words are unsigned", []byte{0x00, 0x80}, 0x80008000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fletcher32(tt.data))
		})
	}
}

func TestChecksumStable(t *testing.T) {
	a := playedArena(t, 33)
	assert.Equal(t, Checksum(a), Checksum(a.Clone()))
	assert.Equal(t, Checksum(a), Checksum(playedArena(t, 33)))
}

func TestChecksumDetectsSingleBitFlips(t *testing.T) {
	data := Marshal(playedArena(t, 12))
	sum := Fletcher32(data)

	for bit := 0; bit < Size*8; bit += 7 {
		data[bit/8] ^= 1 << (bit % 8)
		assert.NotEqual(t, sum, Fletcher32(data), "bit %d", bit)
		data[bit/8] ^= 1 << (bit % 8)
	}
}

func TestPoolCapture(t *testing.T) {
	p := NewPool(2)
	a := playedArena(t, 8)

	b1, err := p.Capture(a)
	require.NoError(t, err)
	assert.Equal(t, Size, b1.Len())
	assert.Equal(t, int32(8), b1.Frame)
	assert.Equal(t, Checksum(a), b1.Checksum)

	b2, err := p.Capture(a)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Outstanding())

	_, err = p.Capture(a)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	p.Release(b1)
	assert.Equal(t, 1, p.Outstanding())

	b3, err := p.Capture(a)
	require.NoError(t, err)
	assert.Equal(t, b2.Data, b3.Data)

	p.Release(b2)
	p.Release(b3)
	p.Release(nil)
	assert.Zero(t, p.Outstanding())
}

func TestPoolIgnoresRepeatedRelease(t *testing.T) {
	p := NewPool(4)
	a := playedArena(t, 3)

	b, err := p.Capture(a)
	require.NoError(t, err)
	p.Release(b)
	p.Release(b)
	assert.Zero(t, p.Outstanding())

	x, err := p.Capture(a)
	require.NoError(t, err)
	a.Advance(nil, 0)
	y, err := p.Capture(a)
	require.NoError(t, err)

	assert.NotSame(t, x, y)
	assert.Equal(t, int32(3), x.Frame)
	assert.Equal(t, int32(4), y.Frame)
	assert.Equal(t, 2, p.Outstanding())

	// A recycled buffer can be released again once it has been handed out.
	p.Release(x)
	p.Release(y)
	assert.Zero(t, p.Outstanding())
}

func TestFallbackStateRoundTrips(t *testing.T) {
	a, err := arena.New(640, 480, 2, arena.WithFallbackPolicy(arena.TurningPolicy{Step: -5}))
	require.NoError(t, err)
	a.Ships[0].Heading = 0

	for range 10 {
		a.Advance(nil, 1<<0)
	}
	assert.Equal(t, int32(310), a.Ships[0].Heading)

	image := Marshal(a)
	b, err := Decode(image)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Equal(t, Fletcher32(image), Checksum(b))
}

func TestUnboundedPool(t *testing.T) {
	p := NewPool(0)
	a := playedArena(t, 1)
	for range 50 {
		_, err := p.Capture(a)
		require.NoError(t, err)
	}
	assert.Equal(t, 50, p.Outstanding())
}

func TestDump(t *testing.T) {
	a := playedArena(t, 3)
	var sb strings.Builder
	require.NoError(t, Dump(&sb, Marshal(a)))

	out := sb.String()
	assert.True(t, strings.HasPrefix(out, "GameState object.\n"))
	assert.Contains(t, out, "  frame: 3.\n")
	assert.Contains(t, out, "  bounds: 16,16 x 624,464.\n")
	assert.Contains(t, out, "  num_ships: 2.\n")
	assert.Contains(t, out, "  ship 1 radius:    15.\n")
	assert.Contains(t, out, "  ship 1 bullet 29: 0.00 0.00 -> 0.00 0.00.\n")
	assert.NotContains(t, out, "ship 2 ")
}

func TestDumpFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.log")
	require.NoError(t, DumpFile(path, Marshal(playedArena(t, 4))))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ship 0 heading:")

	assert.ErrorIs(t, DumpFile(path, []byte{1, 2, 3}), ErrSizeMismatch)
}
