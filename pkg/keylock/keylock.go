// Package keylock provides a sharded per-key mutex. Consent, profile and gate
// operations for the same (actor, subject, capability) key must be
// read-then-write atomic, while unrelated keys proceed independently; a
// sharded lock gives that serialization point without a global lock.
package keylock

import (
	"strings"
	"sync"
)

// numShards balances memory against contention under concurrent load.
const numShards = 128

// KeyLock serializes operations that share a logical key. Keys hash onto a
// fixed set of mutex shards, so two distinct keys may occasionally share a
// shard; that widens the critical section but never narrows it.
type KeyLock struct {
	shards [numShards]sync.Mutex
}

func New() *KeyLock {
	return &KeyLock{}
}

// Lock acquires the shard for the joined key parts and returns the unlock
// function. Callers must not acquire a second key while holding one unless
// the acquisition order is fixed across the codebase.
func (l *KeyLock) Lock(parts ...string) func() {
	shard := &l.shards[shardFor(strings.Join(parts, "|"))]
	shard.Lock()
	return shard.Unlock
}

// shardFor uses FNV-1a for cheap, well-distributed shard selection.
func shardFor(key string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime
	}
	return h % numShards
}
