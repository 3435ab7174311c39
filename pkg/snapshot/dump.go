package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/vectorwar/arena/pkg/arena"
)

// WriteText renders a human-readable description of a, used when comparing
// two states after a desync.
func WriteText(w io.Writer, a *arena.Arena) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "GameState object.\n")
	fmt.Fprintf(bw, "  frame: %d.\n", a.FrameNumber)
	fmt.Fprintf(bw, "  bounds: %d,%d x %d,%d.\n", a.Bounds.Left, a.Bounds.Top, a.Bounds.Right, a.Bounds.Bottom)
	fmt.Fprintf(bw, "  num_ships: %d.\n", a.NumShips)

	for i := 0; i < int(a.NumShips); i++ {
		s := &a.Ships[i]
		fmt.Fprintf(bw, "  ship %d position:  %.4f, %.4f\n", i, s.Position.X, s.Position.Y)
		fmt.Fprintf(bw, "  ship %d velocity:  %.4f, %.4f\n", i, s.Velocity.DX, s.Velocity.DY)
		fmt.Fprintf(bw, "  ship %d radius:    %d.\n", i, s.Radius)
		fmt.Fprintf(bw, "  ship %d heading:   %d.\n", i, s.Heading)
		fmt.Fprintf(bw, "  ship %d health:    %d.\n", i, s.Health)
		fmt.Fprintf(bw, "  ship %d cooldown:  %d.\n", i, s.Cooldown)
		fmt.Fprintf(bw, "  ship %d score:     %d.\n", i, s.Score)
		for j := range s.Bullets {
			b := &s.Bullets[j]
			fmt.Fprintf(bw, "  ship %d bullet %d: %.2f %.2f -> %.2f %.2f.\n",
				i, j, b.Position.X, b.Position.Y, b.Velocity.DX, b.Velocity.DY)
		}
	}
	return bw.Flush()
}

// Dump decodes an image and writes its text rendering to w.
func Dump(w io.Writer, data []byte) error {
	a, err := Decode(data)
	if err != nil {
		return err
	}
	return WriteText(w, a)
}

// DumpFile writes the text rendering of an image to filename, replacing any
// existing file.
func DumpFile(filename string, data []byte) error {
	a, err := Decode(data)
	if err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}
	if err := WriteText(f, a); err != nil {
		f.Close()
		return fmt.Errorf("write dump file: %w", err)
	}
	return f.Close()
}
