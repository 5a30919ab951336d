package core

import "errors"

// Frame is a raw encoded message (one JSON document).
type Frame []byte

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: it enqueues or fails with ErrBackpressure.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
