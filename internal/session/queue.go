package session

import "github.com/voxline/voxline/pkg/audio"

// outboundQueue buffers encoded microphone chunks captured while the engine
// channel is still connecting. It is bounded; on overflow the oldest chunks
// are evicted so the engine receives the most recent audio once the channel
// opens.
//
// Not safe for concurrent use on its own; the controller's mutex guards it.
type outboundQueue struct {
	limit  int
	chunks []audio.EncodedChunk
}

func newOutboundQueue(limit int) *outboundQueue {
	return &outboundQueue{limit: limit}
}

// push appends chunk in arrival order, evicting from the front when the
// queue exceeds its limit. Returns the number of evicted chunks. The
// surviving entries are copied into a fresh slice so evicted payloads do not
// pin the old backing array.
func (q *outboundQueue) push(chunk audio.EncodedChunk) int {
	q.chunks = append(q.chunks, chunk)
	if len(q.chunks) <= q.limit {
		return 0
	}
	evicted := len(q.chunks) - q.limit
	remaining := make([]audio.EncodedChunk, q.limit)
	copy(remaining, q.chunks[evicted:])
	q.chunks = remaining
	return evicted
}

// drain returns all buffered chunks in arrival order and empties the queue.
// A nil queue (torn down by a racing disconnect) drains to nothing.
func (q *outboundQueue) drain() []audio.EncodedChunk {
	if q == nil {
		return nil
	}
	out := q.chunks
	q.chunks = nil
	return out
}

// size returns the number of buffered chunks.
func (q *outboundQueue) size() int { return len(q.chunks) }
