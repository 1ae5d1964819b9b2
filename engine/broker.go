// Package engine is the core of the audio workstation: the authoritative
// project model on the control thread, the realtime player on the audio
// thread, and the message broker between them. The player never allocates,
// locks or blocks; everything it needs arrives as messages or as immutable
// graph snapshots swapped at callback boundaries.
package engine

import (
	"sync"
	"time"

	haven "github.com/AivinJoy/haven-daw"
)

type (
	// Broker carries messages between the model, the player and the
	// recorder. Communication is many-to-one, one bounded channel per
	// recipient, and every send from the audio thread is non-blocking.
	// Additionally the broker owns a sync.Pool of *haven.AudioBuffer so the
	// capture path can pass buffers around without allocating fresh memory
	// each block.
	Broker struct {
		ToPlayer chan any
		ToModel  chan MsgToModel

		bufferPool sync.Pool
	}

	// MsgToModel is a message sent from the player to the model. Retired
	// graph snapshots ride back here so their memory is released on the
	// control thread, never on the audio thread.
	MsgToModel struct {
		RetiredGraph *Graph
	}
)

const brokerQueueSize = 1024

func NewBroker() *Broker {
	return &Broker{
		ToPlayer:   make(chan any, brokerQueueSize),
		ToModel:    make(chan MsgToModel, brokerQueueSize),
		bufferPool: sync.Pool{New: func() any { return &haven.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an empty audio buffer from the pool. Return it with
// PutAudioBuffer once done.
func (b *Broker) GetAudioBuffer() *haven.AudioBuffer {
	return b.bufferPool.Get().(*haven.AudioBuffer)
}

// PutAudioBuffer returns a buffer to the pool, resetting its length but
// keeping its capacity.
func (b *Broker) PutAudioBuffer(buf *haven.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// TrySend sends v to c if the channel has room. It is guaranteed to be
// non-blocking; returns false if the value was dropped.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value arrives or the timeout passes. ok is
// false on timeout or when the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
