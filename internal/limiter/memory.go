package limiter

import (
	"context"
	"sync"
)

// Memory is an in-process limiter used when Redis is not configured.
// Counts are per process, so it only bounds a single server instance.
type Memory struct {
	mu     sync.Mutex
	max    int64
	counts map[string]int64
}

// NewMemory constructs an in-process limiter. max <= 0 uses DefaultMaxConcurrent.
func NewMemory(max int64) *Memory {
	if max <= 0 {
		max = DefaultMaxConcurrent
	}
	return &Memory{max: max, counts: make(map[string]int64)}
}

func (l *Memory) Acquire(_ context.Context, userID string) (bool, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.counts[userID]
	if n >= l.max {
		return false, n, nil
	}
	l.counts[userID] = n + 1
	return true, n + 1, nil
}

func (l *Memory) Release(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := l.counts[userID]; n > 1 {
		l.counts[userID] = n - 1
	} else {
		delete(l.counts, userID)
	}
	return nil
}

// Count returns the number of slots userID holds.
func (l *Memory) Count(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[userID]
}
