package counter

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sweepInterval is how often the background sweeper drops expired entries.
const sweepInterval = time.Minute

// MemoryStore implements ports.CounterStore as a process-local fallback when
// Redis is unreachable or disabled. Counters are not shared across replicas
// and survive only for the process lifetime — degraded protection, but
// protection nonetheless.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	logger  *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

type memoryEntry struct {
	count     int64
	windowEnd time.Time
}

// NewMemoryStore builds the fallback store and starts its expiry sweeper.
// Call Close when done to stop the sweeper goroutine.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Increment adds one to the key's counter, starting a fresh window when the
// key is new or its window has elapsed. A negative stored count can only
// mean a corrupted entry; it is reset to zero before the increment rather
// than propagated.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[key]
	if e == nil || now.After(e.windowEnd) {
		e = &memoryEntry{windowEnd: now.Add(window)}
		s.entries[key] = e
	}
	if e.count < 0 {
		if s.logger != nil {
			s.logger.Warn("resetting corrupted counter", "key", key, "count", e.count)
		}
		e.count = 0
	}
	e.count++
	return e.count, e.windowEnd, nil
}

// Decrement subtracts one, clamping the returned value at zero.
func (s *MemoryStore) Decrement(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[key]
	if e == nil {
		return 0, nil
	}
	e.count--
	return max(e.count, 0), nil
}

// Get reads the current count without mutating it. Expired keys read as zero.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, time.Time, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[key]
	if e == nil || now.After(e.windowEnd) {
		return 0, now, nil
	}
	return max(e.count, 0), e.windowEnd, nil
}

// Reset deletes the key.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len reports the number of live (unexpired) keys.
func (s *MemoryStore) Len() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if !now.After(e.windowEnd) {
			n++
		}
	}
	return n
}

// Close stops the expiry sweeper. Idempotent.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, e := range s.entries {
				if now.After(e.windowEnd) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
