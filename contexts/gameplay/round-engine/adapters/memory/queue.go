package memory

import (
	"context"
	"sync"
)

// Queue keeps named FIFO lists in process memory.
type Queue struct {
	mu     sync.Mutex
	queues map[string][]string
}

func NewQueue() *Queue {
	return &Queue{queues: make(map[string][]string)}
}

func (q *Queue) Push(_ context.Context, queue string, itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[queue] = append(q.queues[queue], itemID)
	return nil
}

func (q *Queue) Pop(_ context.Context, queue string) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.queues[queue]
	if len(entries) == 0 {
		return "", false, nil
	}
	head := entries[0]
	q.queues[queue] = entries[1:]
	return head, true, nil
}

func (q *Queue) PopBatch(_ context.Context, queue string, n int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.queues[queue]
	if len(entries) == 0 || n <= 0 {
		return nil, nil
	}
	if n > len(entries) {
		n = len(entries)
	}
	batch := make([]string, n)
	copy(batch, entries[:n])
	q.queues[queue] = entries[n:]
	return batch, nil
}

// Remove deletes the first occurrence of itemID; absent items are ignored.
func (q *Queue) Remove(_ context.Context, queue string, itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.queues[queue]
	for i, entry := range entries {
		if entry == itemID {
			q.queues[queue] = append(entries[:i:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *Queue) Length(_ context.Context, queue string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queue]), nil
}
