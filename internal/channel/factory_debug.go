//go:build debug

package channel

// New creates a new channel
// In debug builds the buffer holds a single item so overflow paths run early.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](1)
}
