package protocol

import "sync"

// pendingRead is one queued expectation: a byte count and the handler to
// invoke once that many bytes have accumulated.
type pendingRead struct {
	n  int
	fn func([]byte)
}

// Demux dispatches an inbound byte stream of arbitrary chunking to an
// ordered queue of fixed-size expectations. The transport delivers bytes in
// whatever chunk sizes it likes; the DAC answers strictly in request order,
// so a FIFO queue of "I need N bytes next" entries is sufficient to pair
// responses with commands. There is no message-ID correlation and no
// timeout at this layer.
type Demux struct {
	mu          sync.Mutex
	buf         []byte
	queue       []pendingRead
	dispatching bool
}

// NewDemux creates an empty demultiplexer.
func NewDemux() *Demux {
	return &Demux{}
}

// Expect queues a handler to receive exactly n bytes once they have
// arrived. Handlers run in registration order, one at a time, each with
// exactly its requested byte count. If enough bytes are already buffered
// the handler may run before Expect returns.
func (d *Demux) Expect(n int, fn func([]byte)) {
	d.mu.Lock()
	d.queue = append(d.queue, pendingRead{n: n, fn: fn})
	d.dispatchLocked()
}

// Feed appends bytes from the transport and satisfies as many queued
// expectations as the accumulated bytes allow. One large Feed may satisfy
// several expectations.
func (d *Demux) Feed(p []byte) {
	d.mu.Lock()
	d.buf = append(d.buf, p...)
	d.dispatchLocked()
}

// dispatchLocked drains the head of the queue while enough bytes are
// buffered. Must be entered with d.mu held; releases the lock before
// returning. Handlers are invoked without the lock so they may call Expect.
// The dispatching flag keeps concurrent Feed/Expect calls from starting a
// second drain loop while a handler is running, which would break FIFO
// ordering; the active loop re-checks the queue after every handler and
// picks up anything added in the meantime.
func (d *Demux) dispatchLocked() {
	if d.dispatching {
		d.mu.Unlock()
		return
	}
	d.dispatching = true
	for len(d.queue) > 0 && len(d.buf) >= d.queue[0].n {
		head := d.queue[0]
		d.queue = d.queue[1:]

		chunk := make([]byte, head.n)
		copy(chunk, d.buf)
		d.buf = d.buf[head.n:]

		d.mu.Unlock()
		head.fn(chunk)
		d.mu.Lock()
	}
	d.dispatching = false
	d.mu.Unlock()
}

// Reset discards all buffered bytes and pending expectations. Dropped
// handlers are never invoked.
func (d *Demux) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = nil
	d.queue = nil
}

// Pending reports the number of unsatisfied expectations.
func (d *Demux) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Buffered reports the number of accumulated bytes not yet dispatched.
func (d *Demux) Buffered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}
