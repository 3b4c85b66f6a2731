package store

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Memory is a mutex-guarded in-process Store with lazy TTL expiry. Used by
// tests and single-node local runs; it honors the same SetIfAbsent semantics
// as the Redis implementation.
type Memory struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// NewMemoryWithClock lets tests control expiry.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		data: make(map[string]entry),
		now:  now,
	}
}

func (s *Memory) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || s.expired(e) {
		delete(s.data, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = entry{value: value, expiresAt: s.deadline(ttl)}
	return nil
}

func (s *Memory) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[key]; ok && !s.expired(e) {
		return false, nil
	}
	s.data[key] = entry{value: value, expiresAt: s.deadline(ttl)}
	return true, nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *Memory) expired(e entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}
