package lock

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash"
)

// shardCount bounds contention on any single resource-type's map without
// paying for a shard per logical CPU; 32 stripes keeps memory overhead
// bounded for resource types with few live resources while still
// de-contending the hot ones.
const shardCount = 32

// shardedMap is a linearizable resource-id -> lock-instance map, striped
// across shardCount buckets keyed by xxhash of the resource id. Each
// bucket is guarded by its own RWMutex, so operations on unrelated
// resource ids never contend.
type shardedMap struct {
	shards [shardCount]shard
}

type shard struct {
	mu sync.RWMutex
	m  map[int64]any // *SharedLock or *ExclusiveLock
}

func newShardedMap() *shardedMap {
	sm := &shardedMap{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[int64]any)
	}
	return sm
}

func shardIndex(id int64) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return int(xxhash.Sum64(buf[:]) % uint64(shardCount))
}

func (sm *shardedMap) shardFor(id int64) *shard {
	return &sm.shards[shardIndex(id)]
}

// Get returns the current entry for id, or nil if absent.
func (sm *shardedMap) Get(id int64) any {
	sh := sm.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.m[id]
}

// PutIfAbsent installs value at id iff no entry is present, returning the
// entry that was already there (nil on success).
func (sm *shardedMap) PutIfAbsent(id int64, value any) any {
	sh := sm.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.m[id]; ok {
		return existing
	}
	sh.m[id] = value
	return nil
}

// Remove deletes the entry at id unconditionally.
func (sm *shardedMap) Remove(id int64) {
	sh := sm.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.m, id)
}

// Replace installs value at id unconditionally, used by the exclusive-to-
// shared downgrade transition which must not leave a window where the
// entry is absent.
func (sm *shardedMap) Replace(id int64, value any) {
	sh := sm.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.m[id] = value
}

// CompareAndRemove deletes the entry at id only if it currently equals
// expect, returning whether the removal happened. Used to pull a SharedLock
// out of the table only if it is still the same dead instance the caller
// just emptied (guards against a concurrent replace racing the removal).
func (sm *shardedMap) CompareAndRemove(id int64, expect any) bool {
	sh := sm.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.m[id] != expect {
		return false
	}
	delete(sh.m, id)
	return true
}
