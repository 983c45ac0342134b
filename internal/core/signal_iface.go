package core

// Frame is one encoded signaling message as it travels the wire.
type Frame []byte

// SignalConnection abstracts the per-endpoint messaging transport.
// TrySend must never block: a full outbound queue is an error, not a
// wait. Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
