package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// lruStore is a size-bounded LRU with per-entry expiry.
type lruStore struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List // front is most recently used
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero never expires
}

func newLRUStore(maxSize int) *lruStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &lruStore{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (s *lruStore) get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(*lruEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.remove(elem)
		return nil, nil
	}
	s.order.MoveToFront(elem)
	return entry.value, nil
}

func (s *lruStore) set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiry(ttl)
		s.order.MoveToFront(elem)
		return nil
	}

	s.items[key] = s.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expiry(ttl)})
	for s.order.Len() > s.maxSize {
		s.remove(s.order.Back())
	}
	return nil
}

func (s *lruStore) remove(elem *list.Element) {
	s.order.Remove(elem)
	delete(s.items, elem.Value.(*lruEntry).key)
}

func (s *lruStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *lruStore) ping(context.Context) error { return nil }

func (s *lruStore) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.order.Init()
	return nil
}
