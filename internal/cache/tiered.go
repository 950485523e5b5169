package cache

import (
	"context"
	"fmt"
	"time"
)

// tieredStore reads through a fast local store to a shared remote one.
// Local entries live at most localTTL, so other instances' writes show up
// within that bound.
type tieredStore struct {
	local    store
	remote   store
	localTTL time.Duration
}

func newTieredStore(local, remote store, localTTL time.Duration) *tieredStore {
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	return &tieredStore{local: local, remote: remote, localTTL: localTTL}
}

func (s *tieredStore) get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.local.get(ctx, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = s.remote.get(ctx, key)
	if err != nil || val == nil {
		return nil, err
	}
	_ = s.local.set(ctx, key, val, s.localTTL)
	return val, nil
}

func (s *tieredStore) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	localTTL := s.localTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	if err := s.local.set(ctx, key, value, localTTL); err != nil {
		return err
	}
	return s.remote.set(ctx, key, value, ttl)
}

func (s *tieredStore) ping(ctx context.Context) error {
	if err := s.local.ping(ctx); err != nil {
		return fmt.Errorf("local cache: %w", err)
	}
	if err := s.remote.ping(ctx); err != nil {
		return fmt.Errorf("remote cache: %w", err)
	}
	return nil
}

func (s *tieredStore) close() error {
	_ = s.local.close()
	return s.remote.close()
}
