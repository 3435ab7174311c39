// Package snapshot serializes an arena into a fixed-size, versioned byte
// image and back, and computes the Fletcher-32 checksum peers compare to
// detect desyncs.
//
// Layout (little-endian, no padding beyond what is listed):
//
//	header   magic "VWAR" [4]byte, version uint16, reserved uint16
//	frame    int32
//	bounds   left, top, right, bottom int32
//	ships    int32
//	ship[4]  x, y, dx, dy float64; radius, heading, health, cooldown, score int32
//	         bullet[30] active uint32; x, y, dx, dy float64
//
// Every slot is written whether or not it is in use, so Size is constant.
//
// The checksum sums the image as unsigned 16-bit words.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/vectorwar/arena/pkg/arena"
)

const (
	Version uint16 = 1

	headerSize = 8
	bulletSize = 4 + 4*8
	shipSize   = 4*8 + 5*4 + arena.MaxBullets*bulletSize
	stateSize  = 4 + 4*4 + 4 + arena.MaxShips*shipSize

	// Size is the length of every snapshot image.
	Size = headerSize + stateSize
)

var magic = [4]byte{'V', 'W', 'A', 'R'}

var (
	ErrSizeMismatch       = errors.New("snapshot size mismatch")
	ErrBadMagic           = errors.New("not an arena snapshot")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrCorrupt            = errors.New("corrupt snapshot")
)

var le = binary.LittleEndian

type writer struct {
	buf []byte
	off int
}

func (w *writer) u16(v uint16) {
	le.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *writer) i32(v int32) {
	le.PutUint32(w.buf[w.off:], uint32(v))
	w.off += 4
}

func (w *writer) f64(v float64) {
	le.PutUint64(w.buf[w.off:], math.Float64bits(v))
	w.off += 8
}

func (w *writer) flag(v bool) {
	var u int32
	if v {
		u = 1
	}
	w.i32(u)
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) u16() uint16 {
	v := le.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) i32() int32 {
	v := int32(le.Uint32(r.buf[r.off:]))
	r.off += 4
	return v
}

func (r *reader) f64() float64 {
	v := math.Float64frombits(le.Uint64(r.buf[r.off:]))
	r.off += 8
	return v
}

// Encode writes the image of a into dst, which must be exactly Size bytes.
func Encode(dst []byte, a *arena.Arena) error {
	if len(dst) != Size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(dst), Size)
	}

	w := &writer{buf: dst}
	copy(w.buf, magic[:])
	w.off = len(magic)
	w.u16(Version)
	w.u16(0)

	w.i32(a.FrameNumber)
	w.i32(a.Bounds.Left)
	w.i32(a.Bounds.Top)
	w.i32(a.Bounds.Right)
	w.i32(a.Bounds.Bottom)
	w.i32(a.NumShips)

	for i := range a.Ships {
		s := &a.Ships[i]
		w.f64(s.Position.X)
		w.f64(s.Position.Y)
		w.f64(s.Velocity.DX)
		w.f64(s.Velocity.DY)
		w.i32(s.Radius)
		w.i32(s.Heading)
		w.i32(s.Health)
		w.i32(s.Cooldown)
		w.i32(s.Score)
		for j := range s.Bullets {
			b := &s.Bullets[j]
			w.flag(b.Active)
			w.f64(b.Position.X)
			w.f64(b.Position.Y)
			w.f64(b.Velocity.DX)
			w.f64(b.Velocity.DY)
		}
	}
	return nil
}

// Marshal returns a freshly allocated image of a.
func Marshal(a *arena.Arena) []byte {
	buf := make([]byte, Size)
	_ = Encode(buf, a)
	return buf
}

// Decode parses an image into a new Arena. The input is fully validated
// before anything is returned.
func Decode(data []byte) (*arena.Arena, error) {
	if len(data) != Size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(data), Size)
	}
	if [4]byte(data[:4]) != magic {
		return nil, ErrBadMagic
	}

	r := &reader{buf: data, off: len(magic)}
	if v := r.u16(); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	r.u16()

	a := &arena.Arena{}
	a.FrameNumber = r.i32()
	a.Bounds.Left = r.i32()
	a.Bounds.Top = r.i32()
	a.Bounds.Right = r.i32()
	a.Bounds.Bottom = r.i32()
	a.NumShips = r.i32()
	if a.NumShips < 0 || a.NumShips > arena.MaxShips {
		return nil, fmt.Errorf("%w: ship count %d", ErrCorrupt, a.NumShips)
	}

	for i := range a.Ships {
		s := &a.Ships[i]
		s.Position.X = r.f64()
		s.Position.Y = r.f64()
		s.Velocity.DX = r.f64()
		s.Velocity.DY = r.f64()
		s.Radius = r.i32()
		s.Heading = r.i32()
		s.Health = r.i32()
		s.Cooldown = r.i32()
		s.Score = r.i32()
		if s.Heading < 0 || s.Heading >= 360 || s.Cooldown < 0 {
			return nil, fmt.Errorf("%w: ship %d heading %d cooldown %d", ErrCorrupt, i, s.Heading, s.Cooldown)
		}
		for j := range s.Bullets {
			b := &s.Bullets[j]
			switch active := r.i32(); active {
			case 0:
			case 1:
				b.Active = true
			default:
				return nil, fmt.Errorf("%w: ship %d bullet %d active flag %d", ErrCorrupt, i, j, active)
			}
			b.Position.X = r.f64()
			b.Position.Y = r.f64()
			b.Velocity.DX = r.f64()
			b.Velocity.DY = r.f64()
		}
	}
	return a, nil
}

// Restore overwrites a with the state held in data. On error a is untouched.
func Restore(a *arena.Arena, data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	a.CopyStateFrom(decoded)
	return nil
}
