// Package inputlog stores the inputs of a session as a msgpack stream so a
// run can be replayed frame for frame.
package inputlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vectorwar/arena/pkg/arena"
)

const (
	Magic   = "VWIL"
	Version = 1
)

var ErrBadHeader = errors.New("not an input log")

// Header opens every log.
type Header struct {
	Magic        string `msgpack:"magic"`
	Version      int    `msgpack:"version"`
	Participants int    `msgpack:"participants"`
	Seed         uint64 `msgpack:"seed"`
}

// Frame is one tick of recorded inputs.
type Frame struct {
	Number         int32   `msgpack:"n"`
	Inputs         []uint8 `msgpack:"in"`
	DisconnectMask uint32  `msgpack:"dc,omitempty"`
}

// ArenaInputs converts the stored bytes to arena inputs.
func (f Frame) ArenaInputs() []arena.Input {
	out := make([]arena.Input, len(f.Inputs))
	for i, v := range f.Inputs {
		out[i] = arena.Input(v)
	}
	return out
}

// NewFrame builds a frame record from arena inputs.
func NewFrame(number int32, inputs []arena.Input, disconnectMask uint32) Frame {
	raw := make([]uint8, len(inputs))
	for i, in := range inputs {
		raw[i] = uint8(in)
	}
	return Frame{Number: number, Inputs: raw, DisconnectMask: disconnectMask}
}

// Writer appends frames to a log.
type Writer struct {
	buf    *bufio.Writer
	enc    *msgpack.Encoder
	closer io.Closer
	frames int
}

// NewWriter writes the header and returns a writer for the frames that follow.
func NewWriter(w io.Writer, participants int, seed uint64) (*Writer, error) {
	buf := bufio.NewWriter(w)
	lw := &Writer{buf: buf, enc: msgpack.NewEncoder(buf)}
	if c, ok := w.(io.Closer); ok {
		lw.closer = c
	}
	h := Header{Magic: Magic, Version: Version, Participants: participants, Seed: seed}
	if err := lw.enc.Encode(&h); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return lw, nil
}

// Create opens path for writing and returns a Writer that closes it.
func Create(path string, participants int, seed uint64) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create input log: %w", err)
	}
	w, err := NewWriter(f, participants, seed)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends one frame.
func (w *Writer) Write(f Frame) error {
	if err := w.enc.Encode(&f); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", f.Number, err)
	}
	w.frames++
	return nil
}

// Frames is the number of frames written.
func (w *Writer) Frames() int {
	return w.frames
}

// Close flushes buffered frames and closes the underlying file, if any.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush input log: %w", err)
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Reader reads frames back in order.
type Reader struct {
	Header Header
	dec    *msgpack.Decoder
	closer io.Closer
}

// NewReader reads and validates the header.
func NewReader(r io.Reader) (*Reader, error) {
	lr := &Reader{dec: msgpack.NewDecoder(bufio.NewReader(r))}
	if c, ok := r.(io.Closer); ok {
		lr.closer = c
	}
	if err := lr.dec.Decode(&lr.Header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	if lr.Header.Magic != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadHeader, lr.Header.Magic)
	}
	if lr.Header.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, lr.Header.Version)
	}
	return lr, nil
}

// Open opens an input log file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input log: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Read returns the next frame, or io.EOF after the last one.
func (r *Reader) Read() (Frame, error) {
	var f Frame
	if err := r.dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return f, io.EOF
		}
		return f, fmt.Errorf("failed to read frame: %w", err)
	}
	return f, nil
}

// Next returns the inputs for the next frame. Frames missing inputs for some
// participants are padded with zero.
func (r *Reader) Next(int32) ([]arena.Input, uint32, error) {
	f, err := r.Read()
	if err != nil {
		return nil, 0, err
	}
	inputs := f.ArenaInputs()
	for len(inputs) < r.Header.Participants {
		inputs = append(inputs, 0)
	}
	return inputs, f.DisconnectMask, nil
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
