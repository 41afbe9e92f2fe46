package lock

// LockTable is an array, indexed by resource-type id, of concurrent maps
// from resource id to the lock instance currently resident for that
// resource. The table never iterates resources globally — every operation
// is addressed through a specific (typeID, resourceID) pair, reached only
// through a Client.
type LockTable struct {
	types []*shardedMap
}

// NewLockTable allocates a table for typeCount resource types.
func NewLockTable(typeCount int) *LockTable {
	t := &LockTable{types: make([]*shardedMap, typeCount)}
	for i := range t.types {
		t.types[i] = newShardedMap()
	}
	return t
}

func (t *LockTable) mapFor(typeID int) *shardedMap {
	return t.types[typeID]
}

// Get returns the current entry (*SharedLock, *ExclusiveLock, or nil).
func (t *LockTable) Get(typeID int, resourceID int64) any {
	return t.mapFor(typeID).Get(resourceID)
}

// PutIfAbsent installs value iff no entry is present, returning whatever
// was already there.
func (t *LockTable) PutIfAbsent(typeID int, resourceID int64, value any) any {
	return t.mapFor(typeID).PutIfAbsent(resourceID, value)
}

// Remove deletes the entry unconditionally.
func (t *LockTable) Remove(typeID int, resourceID int64) {
	t.mapFor(typeID).Remove(resourceID)
}

// Replace installs value unconditionally (exclusive-to-shared downgrade).
func (t *LockTable) Replace(typeID int, resourceID int64, value any) {
	t.mapFor(typeID).Replace(resourceID, value)
}

// CompareAndRemove removes the entry only if it is still expect.
func (t *LockTable) CompareAndRemove(typeID int, resourceID int64, expect any) bool {
	return t.mapFor(typeID).CompareAndRemove(resourceID, expect)
}
