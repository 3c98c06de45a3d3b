package trafficfeed

import "sync"

// frameQueue is a bounded FIFO with drop-oldest backpressure: pushing into a
// full queue evicts the oldest frame instead of blocking the producer.
type frameQueue struct {
	mu    sync.Mutex
	buf   []Frame
	cap   int
	drops int64
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity <= 0 {
		capacity = 10
	}
	return &frameQueue{cap: capacity}
}

// push enqueues f, evicting the oldest frame when full. Returns true when an
// eviction happened.
func (q *frameQueue) push(f Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := false
	if len(q.buf) >= q.cap {
		q.buf = q.buf[1:]
		q.drops++
		dropped = true
	}
	q.buf = append(q.buf, f)
	return dropped
}

// pop removes and returns the oldest frame without blocking.
func (q *frameQueue) pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return Frame{}, false
	}
	f := q.buf[0]
	q.buf = q.buf[1:]
	return f, true
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *frameQueue) dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}
