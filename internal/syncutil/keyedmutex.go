// Package syncutil provides the per-user locking primitive used to serialize
// trust-state read-modify-write cycles.
package syncutil

import (
	"context"
	"hash/fnv"
	"sync"
)

// KeyedMutex is a fixed-size pool of channel-based mutexes keyed by string.
// Concurrent operations on the same key are serialized; operations on
// different keys proceed in parallel (modulo shard collisions). Because the
// mutexes are channels, callers can stop waiting when their context expires
// instead of blocking forever behind a slow holder.
type KeyedMutex struct {
	shards [128]chan struct{}
	once   sync.Once
}

// NewKeyedMutex creates a keyed mutex with all shards unlocked.
func NewKeyedMutex() *KeyedMutex {
	m := &KeyedMutex{}
	m.init()
	return m
}

func (m *KeyedMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i] = make(chan struct{}, 1)
			m.shards[i] <- struct{}{} // start unlocked
		}
	})
}

// Lock acquires the mutex for key, respecting context cancellation.
// On success it returns an unlock function that the caller MUST invoke.
// On cancellation it returns nil and the context error.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.init()
	shard := m.shards[m.shardIdx(key)]

	select {
	case <-shard:
		return func() { shard <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) shardIdx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % uint32(len(m.shards))
}
