package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/agentradio/radio/internal/ttypes"
)

var (
	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrNilSegment is returned when a nil segment is enqueued
	ErrNilSegment = errors.New("segment is nil")

	// ErrDuplicateSegment is returned when a segment is enqueued twice
	ErrDuplicateSegment = errors.New("segment already queued")
)

// LowWaterMark is the depth below which the station replenishes the queue.
const LowWaterMark = 2

// SegmentQueue holds ready segments in arrival order.
// All operations are safe for concurrent use. Dequeue never blocks: playback
// decides what to do with an empty queue, the queue does not wait for it.
type SegmentQueue struct {
	items []*ttypes.Segment

	// IDs of every segment ever accepted, so a segment cannot be queued twice
	seen map[string]struct{}

	mu     sync.RWMutex
	closed bool
	stats  Stats
}

// Stats tracks queue activity
type Stats struct {
	TotalEnqueued   int64
	TotalDequeued   int64
	TotalReleased   int64
	TotalRejected   int64
	CurrentSize     int
	PeakSize        int
	QueuedBytes     int64
	LastEnqueue     time.Time
	LastDequeue     time.Time
	AverageWaitTime time.Duration

	totalWait time.Duration
}

// NewSegmentQueue creates an empty queue.
func NewSegmentQueue() *SegmentQueue {
	return &SegmentQueue{
		items: make([]*ttypes.Segment, 0, LowWaterMark*2),
		seen:  make(map[string]struct{}),
	}
}

// Enqueue appends a segment to the tail of the queue.
func (q *SegmentQueue) Enqueue(seg *ttypes.Segment) error {
	if seg == nil {
		return ErrNilSegment
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.stats.TotalRejected++
		return ErrQueueClosed
	}

	if _, ok := q.seen[seg.ID]; ok {
		q.stats.TotalRejected++
		return ErrDuplicateSegment
	}
	q.seen[seg.ID] = struct{}{}

	q.items = append(q.items, seg)

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	q.stats.QueuedBytes += int64(seg.Size())
	q.stats.CurrentSize = len(q.items)
	if q.stats.CurrentSize > q.stats.PeakSize {
		q.stats.PeakSize = q.stats.CurrentSize
	}

	return nil
}

// Dequeue removes and returns the head of the queue.
// The second return value is false when the queue is empty or closed.
func (q *SegmentQueue) Dequeue() (*ttypes.Segment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.items) == 0 {
		return nil, false
	}

	seg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	now := time.Now()
	q.stats.TotalDequeued++
	q.stats.LastDequeue = now
	q.stats.QueuedBytes -= int64(seg.Size())
	q.stats.CurrentSize = len(q.items)
	if !seg.CreatedAt.IsZero() {
		q.stats.totalWait += now.Sub(seg.CreatedAt)
	}

	return seg, true
}

// Peek returns the head of the queue without removing it.
func (q *SegmentQueue) Peek() (*ttypes.Segment, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Len returns the number of ready segments.
func (q *SegmentQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.items)
}

// NeedsReplenish reports whether the depth is below the low-water mark.
func (q *SegmentQueue) NeedsReplenish() bool {
	return q.Len() < LowWaterMark
}

// Clear releases and removes every queued segment.
// It returns the number of segments dropped.
func (q *SegmentQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.clearLocked()
}

func (q *SegmentQueue) clearLocked() int {
	n := len(q.items)
	for i, seg := range q.items {
		seg.Release()
		q.items[i] = nil
	}
	q.items = q.items[:0]

	q.stats.TotalReleased += int64(n)
	q.stats.QueuedBytes = 0
	q.stats.CurrentSize = 0

	return n
}

// GetStats returns current queue statistics.
func (q *SegmentQueue) GetStats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	if q.stats.TotalDequeued > 0 {
		stats.AverageWaitTime = q.stats.totalWait / time.Duration(q.stats.TotalDequeued)
	}
	return stats
}

// Close releases queued segments and rejects further operations.
func (q *SegmentQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.clearLocked()
	q.closed = true

	return nil
}
