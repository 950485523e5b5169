// Package cache provides the score replay and drift verdict caches.
//
// A Cache encodes values as JSON over a byte store: an in-process LRU
// (Community tier), Redis (Pro tier), or both tiered with the LRU in front.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/metrics"
)

var errTenantRequired = fmt.Errorf("%w: tenantID is required", domain.ErrValidation)

const verdictKey = "drift:verdict"

// store is a byte-oriented key/value backend. get returns nil, nil on a miss.
// A ttl <= 0 never expires.
type store interface {
	get(ctx context.Context, key string) ([]byte, error)
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	ping(ctx context.Context) error
	close() error
}

// Cache implements domain.Cache over a store.
type Cache struct {
	store store
}

// New creates a cache based on configuration.
// "memory" is an LRU; "redis" is Redis, fronted by an LRU with EnableTwoPhase.
func New(cfg domain.CacheConfig) (*Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemory(cfg.LocalMaxSize), nil
	case "redis":
		remote, err := newRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return &Cache{store: remote}, nil
		}
		return &Cache{store: newTieredStore(newLRUStore(cfg.LocalMaxSize), remote, cfg.LocalTTL)}, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// NewMemory creates an in-process cache holding at most maxSize entries.
func NewMemory(maxSize int) *Cache {
	return &Cache{store: newLRUStore(maxSize)}
}

func scoreKey(tenantID, requestID string) string {
	return tenantID + ":score:" + requestID
}

// GetScore retrieves a replayable score response.
func (c *Cache) GetScore(ctx context.Context, tenantID string, requestID string) (*domain.ScoreResponse, error) {
	if tenantID == "" {
		return nil, errTenantRequired
	}
	if requestID == "" {
		return nil, fmt.Errorf("%w: requestID is required", domain.ErrValidation)
	}

	var resp domain.ScoreResponse
	ok, err := c.getJSON(ctx, "score", scoreKey(tenantID, requestID), &resp)
	if err != nil || !ok {
		return nil, err
	}
	return &resp, nil
}

// SetScore caches a score response for replay.
func (c *Cache) SetScore(ctx context.Context, tenantID string, requestID string, resp *domain.ScoreResponse, ttl time.Duration) error {
	if tenantID == "" {
		return errTenantRequired
	}
	if requestID == "" {
		return fmt.Errorf("%w: requestID is required", domain.ErrValidation)
	}
	return c.setJSON(ctx, scoreKey(tenantID, requestID), resp, ttl)
}

// GetVerdict retrieves the latest drift verdict.
func (c *Cache) GetVerdict(ctx context.Context) (*domain.VerdictSummary, error) {
	var v domain.VerdictSummary
	ok, err := c.getJSON(ctx, "verdict", verdictKey, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// SetVerdict caches the latest drift verdict.
func (c *Cache) SetVerdict(ctx context.Context, v *domain.VerdictSummary, ttl time.Duration) error {
	return c.setJSON(ctx, verdictKey, v, ttl)
}

// Ping checks the backing store.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.ping(ctx)
}

// Close releases the backing store.
func (c *Cache) Close() error {
	return c.store.close()
}

func (c *Cache) getJSON(ctx context.Context, kind, key string, out any) (bool, error) {
	data, err := c.store.get(ctx, key)
	if err != nil {
		return false, err
	}
	metrics.RecordCacheLookup(kind, data != nil)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", kind, err)
	}
	return true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.store.set(ctx, key, data, ttl)
}
