// Package keyring defines the minimal credential store contract the engine
// needs: per-provider API keys with get/set semantics. Encryption and
// durable storage are the host application's concern; the in-memory
// implementation here serves tests and desktop embedding where the host
// supplies keys at startup.
package keyring

import "sync"

// Store holds provider API keys.
type Store interface {
	// Get returns the key for a provider and whether one is set.
	Get(provider string) (string, bool)
	// Set stores the key for a provider.
	Set(provider, key string)
}

// InMemory is a volatile Store safe for concurrent use.
type InMemory struct {
	mu   sync.RWMutex
	keys map[string]string
}

var _ Store = (*InMemory)(nil)

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{keys: make(map[string]string)}
}

// Get returns the key for a provider and whether one is set.
func (s *InMemory) Get(provider string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[provider]
	return key, ok && key != ""
}

// Set stores the key for a provider.
func (s *InMemory) Set(provider, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[provider] = key
}
