// Package transport provides a small in-process publish/subscribe CAN FD
// bus used by cmd/cbs-demo to connect one Server and several Clients without
// any external broker or kernel CAN driver.
package transport

import (
	"sync"
)

// Frame is an in-process CAN FD frame. Len bounds the valid prefix of Data,
// mirroring cbs.PDU/cbs.RxSDU's own Len-bounded [64]byte layout.
type Frame struct {
	ID   uint32
	Len  uint8
	Data [64]byte
}

// Bytes returns the valid portion of the frame payload.
func (f Frame) Bytes() []byte { return f.Data[:f.Len] }

// NewFrame builds a Frame from a CAN ID and payload, which must fit in 64 bytes.
func NewFrame(id uint32, payload []byte) Frame {
	var f Frame
	f.ID = id
	f.Len = uint8(copy(f.Data[:], payload))
	return f
}

// FrameListener receives frames delivered by a Bus. Handle must not block:
// it runs on the sender's goroutine, synchronously, for every subscriber in
// turn, the same contract the teacher's bus_manager.go places on its own
// FrameHandler/FrameListener.
type FrameListener interface {
	Handle(frame Frame)
}

type subscriber struct {
	id       uint64
	callback FrameListener
}

// Bus is a broadcast medium: every Send is delivered to every current
// subscriber, own frames included, the same way a real CAN bus is a shared
// wire rather than a point-to-point link. Subscribers are expected to filter
// frames addressed to someone else themselves, exactly as the CBS header's
// Gid/Sid fields let a Server/Client ignore traffic not meant for it.
type Bus struct {
	mu          sync.Mutex
	subscribers []subscriber
	nextSubID   uint64
	closed      bool
}

// NewBus returns a ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers callback to receive every frame sent on the bus from
// now on. The returned cancel func removes the subscription; calling it more
// than once is a no-op.
func (b *Bus) Subscribe(callback FrameListener) (cancel func()) {
	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subscribers = append(b.subscribers, subscriber{id: id, callback: callback})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.subscribers {
				if sub.id == id {
					b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// Send delivers frame to every subscriber currently registered. Delivery is
// synchronous and in subscriber-registration order; a panic in one
// listener's Handle would take down the sender's goroutine, same as the
// teacher's BusManager.Handle dispatch, so listeners must not panic.
func (b *Bus) Send(frame Frame) error {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return ErrBusClosed
	}
	for _, sub := range subs {
		sub.callback.Handle(frame)
	}
	return nil
}

// Close marks the bus closed; further Send calls fail. Existing
// subscriptions are left registered but will no longer receive anything.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
