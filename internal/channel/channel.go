// Package channel provides generic channel interfaces for decoupled communication.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
	Cap() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
	// TrySend reports false instead of blocking when the buffer is full.
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
