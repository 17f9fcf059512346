package transport_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/cbs/pkg/transport"
)

type recorder struct {
	mu     sync.Mutex
	frames []transport.Frame
}

func (r *recorder) Handle(f transport.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recorder) received() []transport.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]transport.Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

func TestNewFrameCopiesPayloadAndLen(t *testing.T) {
	f := transport.NewFrame(42, []byte("hello"))
	assert.Equal(t, uint32(42), f.ID)
	assert.Equal(t, "hello", string(f.Bytes()))
}

func TestSendDeliversToEverySubscriber(t *testing.T) {
	bus := transport.NewBus()
	a, b := &recorder{}, &recorder{}
	bus.Subscribe(a)
	bus.Subscribe(b)

	require.NoError(t, bus.Send(transport.NewFrame(1, []byte("x"))))

	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
}

func TestSendDeliversToSenderTooBroadcastSemantics(t *testing.T) {
	bus := transport.NewBus()
	self := &recorder{}
	bus.Subscribe(self)

	require.NoError(t, bus.Send(transport.NewFrame(7, []byte("own"))))

	assert.Len(t, self.received(), 1)
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := transport.NewBus()
	a := &recorder{}
	cancel := bus.Subscribe(a)

	require.NoError(t, bus.Send(transport.NewFrame(1, []byte("first"))))
	cancel()
	require.NoError(t, bus.Send(transport.NewFrame(1, []byte("second"))))

	assert.Len(t, a.received(), 1)
}

func TestCancelIsIdempotent(t *testing.T) {
	bus := transport.NewBus()
	a := &recorder{}
	cancel := bus.Subscribe(a)
	cancel()
	assert.NotPanics(t, cancel)
}

func TestSendAfterCloseFails(t *testing.T) {
	bus := transport.NewBus()
	require.NoError(t, bus.Close())
	err := bus.Send(transport.NewFrame(1, []byte("x")))
	assert.Equal(t, transport.ErrBusClosed, err)
}

func TestMultipleSubscribersOnlyOneUnsubscribed(t *testing.T) {
	bus := transport.NewBus()
	a, b := &recorder{}, &recorder{}
	cancelA := bus.Subscribe(a)
	bus.Subscribe(b)

	cancelA()
	require.NoError(t, bus.Send(transport.NewFrame(3, []byte("y"))))

	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
}
