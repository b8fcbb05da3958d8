package types

import "time"

// Cache defines the contract the optimizer requires from a cache store.
type Cache interface {
	Get(key string, ttlOverride time.Duration) (any, bool)
	Set(key string, value any, ttl time.Duration) (bool, error)
	Delete(key string) bool
	Clear()
	Size() int64
	Stats() CacheStats
	Close()
}
