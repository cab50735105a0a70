package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching parsed artifacts
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	Clear()
}

// Key generates a cache key for a source text of the given kind
// (e.g. "selector", "pattern")
func Key(kind, text string) string {
	hash := sha256.Sum256([]byte(text))
	return "invariant:v1:" + kind + ":" + hex.EncodeToString(hash[:])
}

// Disabled is a cache that never stores anything
type Disabled struct{}

func (Disabled) Get(string) (interface{}, bool)         { return nil, false }
func (Disabled) Set(string, interface{}, time.Duration) {}
func (Disabled) Delete(string)                          {}
func (Disabled) Clear()                                 {}

// New returns a memory cache, or a disabled one when enabled is false
func New(enabled bool, ttl time.Duration) Cache {
	if !enabled {
		return Disabled{}
	}
	return NewMemoryCache(ttl, 2*ttl)
}
