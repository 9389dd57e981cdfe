package websocket

import (
	"sync"
)

const defaultSendBufferSize = 256

type outboundEvent struct {
	data    []byte
	durable bool
}

// Outbox is a bounded per-connection send queue. Push never blocks: when the
// queue is full the oldest best-effort event is evicted, or the oldest event
// of any kind when everything queued is durable.
type Outbox struct {
	mu      sync.Mutex
	items   []outboundEvent
	size    int
	closed  bool
	dropped int64

	ready chan struct{}
	done  chan struct{}
}

func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = defaultSendBufferSize
	}
	return &Outbox{
		items: make([]outboundEvent, 0, size),
		size:  size,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push enqueues data. It returns false once the outbox is closed.
func (o *Outbox) Push(data []byte, durable bool) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	if len(o.items) >= o.size {
		o.evictLocked()
	}
	o.items = append(o.items, outboundEvent{data: data, durable: durable})
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return true
}

func (o *Outbox) evictLocked() {
	victim := 0
	for i, ev := range o.items {
		if !ev.durable {
			victim = i
			break
		}
	}
	copy(o.items[victim:], o.items[victim+1:])
	o.items[len(o.items)-1] = outboundEvent{}
	o.items = o.items[:len(o.items)-1]
	o.dropped++
}

// Drain removes and returns everything queued, oldest first.
func (o *Outbox) Drain() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.items) == 0 {
		return nil
	}
	out := make([][]byte, len(o.items))
	for i, ev := range o.items {
		out[i] = ev.data
		o.items[i] = outboundEvent{}
	}
	o.items = o.items[:0]
	return out
}

// Ready fires after a push; Done is closed by Close.
func (o *Outbox) Ready() <-chan struct{} { return o.ready }
func (o *Outbox) Done() <-chan struct{}  { return o.done }

// Close rejects further pushes. Already queued events stay drainable.
func (o *Outbox) Close() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.closed = true
	close(o.done)
	return true
}

func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

func (o *Outbox) Dropped() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
