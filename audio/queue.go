package audio

import "sync"

// AudioPacket is one decoded frame waiting for playback.
type AudioPacket struct {
	// Samples holds interleaved samples. Only the first Count*channels are valid.
	Samples []float32
	// Count is the number of samples per channel.
	Count int
}

// frameQueue is a bounded FIFO of decoded frames. When full, the oldest
// frame is dropped so playback latency stays bounded.
type frameQueue struct {
	mu      sync.Mutex
	packets []*AudioPacket
	limit   int
	free    []*AudioPacket
}

func newFrameQueue(limit int) *frameQueue {
	return &frameQueue{
		packets: make([]*AudioPacket, 0, limit),
		limit:   limit,
	}
}

// get returns a recycled packet with room for n samples, if any.
func (q *frameQueue) get(n int) *AudioPacket {
	q.mu.Lock()
	defer q.mu.Unlock()

	if last := len(q.free) - 1; last >= 0 {
		p := q.free[last]
		q.free = q.free[:last]
		if cap(p.Samples) >= n {
			p.Samples = p.Samples[:n]
			return p
		}
	}
	return &AudioPacket{Samples: make([]float32, n)}
}

// push appends p and reports whether an old frame had to be dropped.
func (q *frameQueue) push(p *AudioPacket) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.packets) >= q.limit {
		q.recycleLocked(q.packets[0])
		copy(q.packets, q.packets[1:])
		q.packets = q.packets[:len(q.packets)-1]
		dropped = true
	}
	q.packets = append(q.packets, p)
	return dropped
}

// pop removes the oldest frame, or returns nil when empty.
func (q *frameQueue) pop() *AudioPacket {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.packets) == 0 {
		return nil
	}
	p := q.packets[0]
	copy(q.packets, q.packets[1:])
	q.packets = q.packets[:len(q.packets)-1]
	return p
}

// recycle returns a played packet for reuse.
func (q *frameQueue) recycle(p *AudioPacket) {
	q.mu.Lock()
	q.recycleLocked(p)
	q.mu.Unlock()
}

func (q *frameQueue) recycleLocked(p *AudioPacket) {
	if p != nil && len(q.free) < q.limit {
		q.free = append(q.free, p)
	}
}

// drain drops every queued frame and returns how many there were.
func (q *frameQueue) drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.packets)
	for _, p := range q.packets {
		q.recycleLocked(p)
	}
	q.packets = q.packets[:0]
	return n
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}
